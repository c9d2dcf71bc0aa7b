package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"nexuspos/internal/catalog"
	"nexuspos/internal/describe"
	"nexuspos/internal/domain"
	"nexuspos/internal/store"
)

// ListProducts returns the catalog narrowed to category. An empty category means All.
func (s *Service) ListProducts(ctx context.Context, category domain.Category) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if category == "" {
		category = domain.CategoryAll
	}
	return catalog.FilterByCategory(products, category), nil
}

func (s *Service) Categories() []domain.Category {
	return catalog.Categories()
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Product{}, err
	}
	product, err := s.productFromInput(ctx, in)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.audit(ctx, "product_create", map[string]any{"product_id": created.ID, "sku": created.SKU})
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, in domain.ProductInput) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Product{}, err
	}
	if _, err := s.repo.GetProduct(ctx, id); err != nil {
		return domain.Product{}, err
	}
	product, err := s.productFromInput(ctx, in)
	if err != nil {
		return domain.Product{}, err
	}
	product.ID = id

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.audit(ctx, "product_update", map[string]any{"product_id": id})
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "product_delete", map[string]any{"product_id": id})
	return nil
}

// AdjustStock overwrites a product's on-hand count after a manual count.
func (s *Service) AdjustStock(ctx context.Context, id int64, req domain.StockAdjustRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Product{}, err
	}
	if req.Stock < 0 {
		return domain.Product{}, invalid("stock cannot be negative")
	}
	before, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	updated, err := s.repo.SetStock(ctx, id, req.Stock)
	if err != nil {
		return domain.Product{}, err
	}
	s.audit(ctx, "stock_adjust", map[string]any{
		"product_id": id,
		"from":       before.Stock,
		"to":         updated.Stock,
		"note":       req.Note,
	})
	return *updated, nil
}

// DescribeProduct asks the description generator for marketing copy. It always
// returns text, never an error.
func (s *Service) DescribeProduct(ctx context.Context, name string) string {
	if s.describer == nil {
		return describe.MissingKeyMessage
	}
	return s.describer.Generate(ctx, name)
}

func (s *Service) productFromInput(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	price, err := decimal.NewFromString(trimmed(in.Price))
	if err != nil || price.IsNegative() {
		return domain.Product{}, invalid("price must be a non-negative decimal")
	}
	if !in.Category.Valid() {
		return domain.Product{}, invalid("unknown category %q", in.Category)
	}
	if in.Stock < 0 {
		return domain.Product{}, invalid("stock cannot be negative")
	}
	sku := trimmed(in.SKU)
	name := trimmed(in.Name)
	if sku == "" || name == "" {
		return domain.Product{}, invalid("sku and name are required")
	}
	if in.DepartmentID != nil {
		if _, err := s.repo.GetDepartment(ctx, *in.DepartmentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Product{}, invalid("unknown department %d", *in.DepartmentID)
			}
			return domain.Product{}, err
		}
	}

	return domain.Product{
		SKU:          sku,
		Name:         name,
		Price:        price,
		Category:     in.Category,
		ImageURL:     trimmed(in.ImageURL),
		Stock:        in.Stock,
		Description:  trimmed(in.Description),
		DepartmentID: in.DepartmentID,
	}, nil
}

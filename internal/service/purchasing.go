package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"nexuspos/internal/domain"
	"nexuspos/internal/store"
)

func (s *Service) ListPurchaseOrders(ctx context.Context, status domain.PurchaseOrderStatus) ([]domain.PurchaseOrder, error) {
	switch status {
	case "", domain.POStatusPending, domain.POStatusReceived, domain.POStatusCancelled:
	default:
		return nil, invalid("unknown purchase order status %q", status)
	}
	return s.repo.ListPurchaseOrders(ctx, status)
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (domain.PurchaseOrder, error) {
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, in domain.PurchaseOrderInput) (domain.PurchaseOrder, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.purchaseOrderFromInput(ctx, in)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	created, err := s.repo.CreatePurchaseOrder(ctx, po)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.audit(ctx, "purchase_order_create", map[string]any{
		"purchase_order_id": created.ID,
		"supplier_id":       created.SupplierID,
		"total_cost":        created.TotalCost.String(),
	})
	return *created, nil
}

// UpdatePurchaseOrder replaces an order that has not been received yet.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, id int64, in domain.PurchaseOrderInput) (domain.PurchaseOrder, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.purchaseOrderFromInput(ctx, in)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	po.ID = id
	updated, err := s.repo.UpdatePurchaseOrder(ctx, po)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.audit(ctx, "purchase_order_update", map[string]any{"purchase_order_id": id, "status": string(updated.Status)})
	return *updated, nil
}

func (s *Service) DeletePurchaseOrder(ctx context.Context, id int64) error {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeletePurchaseOrder(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "purchase_order_delete", map[string]any{"purchase_order_id": id})
	return nil
}

// ReceivePurchaseOrder adds a pending order's quantities to stock.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id int64) (domain.PurchaseOrder, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.PurchaseOrder{}, err
	}
	received, err := s.repo.ReceivePurchaseOrder(ctx, id, s.now())
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	units := 0
	for _, item := range received.Items {
		units += item.Quantity
	}
	s.audit(ctx, "purchase_order_receive", map[string]any{"purchase_order_id": id, "units": units})
	return *received, nil
}

func (s *Service) purchaseOrderFromInput(ctx context.Context, in domain.PurchaseOrderInput) (domain.PurchaseOrder, error) {
	if len(in.Items) == 0 {
		return domain.PurchaseOrder{}, invalid("purchase order needs at least one item")
	}
	status := in.Status
	if status == "" {
		status = domain.POStatusPending
	}
	if status != domain.POStatusPending && status != domain.POStatusCancelled {
		return domain.PurchaseOrder{}, invalid("status must be Pending or Cancelled")
	}
	if _, err := s.repo.GetSupplier(ctx, in.SupplierID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PurchaseOrder{}, invalid("unknown supplier %d", in.SupplierID)
		}
		return domain.PurchaseOrder{}, err
	}

	date := trimmed(in.Date)
	if date == "" {
		date = s.now().Format(dayLayout)
	}

	items := make([]domain.PurchaseOrderItem, 0, len(in.Items))
	total := decimal.Zero
	for _, line := range in.Items {
		if line.Quantity < 1 {
			return domain.PurchaseOrder{}, invalid("quantity must be positive for product %d", line.ProductID)
		}
		cost, err := decimal.NewFromString(trimmed(line.CostPrice))
		if err != nil || cost.IsNegative() {
			return domain.PurchaseOrder{}, invalid("cost price must be a non-negative decimal for product %d", line.ProductID)
		}
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.PurchaseOrder{}, invalid("unknown product %d", line.ProductID)
			}
			return domain.PurchaseOrder{}, err
		}
		items = append(items, domain.PurchaseOrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			CostPrice:   cost,
		})
		total = total.Add(cost.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	return domain.PurchaseOrder{
		SupplierID: in.SupplierID,
		Date:       date,
		Status:     status,
		Items:      items,
		TotalCost:  total,
	}, nil
}

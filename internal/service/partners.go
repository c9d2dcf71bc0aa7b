package service

import (
	"context"

	"nexuspos/internal/domain"
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *c, nil
}

func (s *Service) CreateCustomer(ctx context.Context, in domain.CustomerInput) (domain.Customer, error) {
	customer, err := customerFromInput(in)
	if err != nil {
		return domain.Customer{}, err
	}
	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.audit(ctx, "customer_create", map[string]any{"customer_id": created.ID})
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, in domain.CustomerInput) (domain.Customer, error) {
	customer, err := customerFromInput(in)
	if err != nil {
		return domain.Customer{}, err
	}
	customer.ID = id
	updated, err := s.repo.UpdateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "customer_delete", map[string]any{"customer_id": id})
	return nil
}

func customerFromInput(in domain.CustomerInput) (domain.Customer, error) {
	name := trimmed(in.Name)
	if name == "" {
		return domain.Customer{}, invalid("customer name is required")
	}
	return domain.Customer{
		Name:    name,
		Email:   trimmed(in.Email),
		Phone:   trimmed(in.Phone),
		Address: trimmed(in.Address),
	}, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (domain.Supplier, error) {
	sup, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *sup, nil
}

func (s *Service) CreateSupplier(ctx context.Context, in domain.SupplierInput) (domain.Supplier, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Supplier{}, err
	}
	supplier, err := supplierFromInput(in)
	if err != nil {
		return domain.Supplier{}, err
	}
	created, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.audit(ctx, "supplier_create", map[string]any{"supplier_id": created.ID})
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, in domain.SupplierInput) (domain.Supplier, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Supplier{}, err
	}
	supplier, err := supplierFromInput(in)
	if err != nil {
		return domain.Supplier{}, err
	}
	supplier.ID = id
	updated, err := s.repo.UpdateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *updated, nil
}

// DeleteSupplier refuses suppliers that still have purchase orders.
func (s *Service) DeleteSupplier(ctx context.Context, id int64) error {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteSupplier(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "supplier_delete", map[string]any{"supplier_id": id})
	return nil
}

func supplierFromInput(in domain.SupplierInput) (domain.Supplier, error) {
	name := trimmed(in.Name)
	if name == "" {
		return domain.Supplier{}, invalid("supplier name is required")
	}
	return domain.Supplier{
		Name:          name,
		ContactPerson: trimmed(in.ContactPerson),
		Email:         trimmed(in.Email),
		Phone:         trimmed(in.Phone),
	}, nil
}

func (s *Service) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	return s.repo.ListDepartments(ctx)
}

func (s *Service) CreateDepartment(ctx context.Context, in domain.DepartmentInput) (domain.Department, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Department{}, err
	}
	name := trimmed(in.Name)
	if name == "" {
		return domain.Department{}, invalid("department name is required")
	}
	created, err := s.repo.CreateDepartment(ctx, domain.Department{Name: name, Description: trimmed(in.Description)})
	if err != nil {
		return domain.Department{}, err
	}
	s.audit(ctx, "department_create", map[string]any{"department_id": created.ID})
	return *created, nil
}

func (s *Service) UpdateDepartment(ctx context.Context, id int64, in domain.DepartmentInput) (domain.Department, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Department{}, err
	}
	name := trimmed(in.Name)
	if name == "" {
		return domain.Department{}, invalid("department name is required")
	}
	updated, err := s.repo.UpdateDepartment(ctx, domain.Department{ID: id, Name: name, Description: trimmed(in.Description)})
	if err != nil {
		return domain.Department{}, err
	}
	return *updated, nil
}

// DeleteDepartment detaches the department's products rather than deleting them.
func (s *Service) DeleteDepartment(ctx context.Context, id int64) error {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteDepartment(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "department_delete", map[string]any{"department_id": id})
	return nil
}

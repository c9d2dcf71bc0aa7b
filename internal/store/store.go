package store

import (
	"context"
	"errors"
	"time"

	"nexuspos/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
)

// SalesFilter narrows ListSales. Zero values mean unbounded.
type SalesFilter struct {
	From       time.Time
	To         time.Time
	TerminalID string
	Limit      int
}

func (f SalesFilter) Matches(sale domain.Sale) bool {
	if !f.From.IsZero() && sale.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !sale.CreatedAt.Before(f.To) {
		return false
	}
	if f.TerminalID != "" && sale.TerminalID != f.TerminalID {
		return false
	}
	return true
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	SetStock(ctx context.Context, productID int64, qty int) (*domain.Product, error)

	// CommitSale applies the sale to the stock ledger, flooring stock at zero, and
	// records it. Both happen or neither does.
	CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SalesFilter) ([]domain.Sale, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error

	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id int64) error

	ListDepartments(ctx context.Context) ([]domain.Department, error)
	GetDepartment(ctx context.Context, id int64) (*domain.Department, error)
	CreateDepartment(ctx context.Context, department domain.Department) (*domain.Department, error)
	UpdateDepartment(ctx context.Context, department domain.Department) (*domain.Department, error)
	DeleteDepartment(ctx context.Context, id int64) error

	ListPurchaseOrders(ctx context.Context, status domain.PurchaseOrderStatus) ([]domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	DeletePurchaseOrder(ctx context.Context, id int64) error
	// ReceivePurchaseOrder adds the ordered quantities to stock and marks the order
	// received. Only pending orders can be received.
	ReceivePurchaseOrder(ctx context.Context, id int64, receivedAt time.Time) (*domain.PurchaseOrder, error)

	GetSettings(ctx context.Context) (domain.StoreSettings, error)
	SaveSettings(ctx context.Context, settings domain.StoreSettings) error

	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUser(ctx context.Context, id int64) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	// UpdateUser keeps the stored password hash when user.PasswordHash is empty.
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	DeleteUser(ctx context.Context, id int64) error
}

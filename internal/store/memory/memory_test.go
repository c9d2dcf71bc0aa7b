package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuspos/internal/domain"
	"nexuspos/internal/store"
)

func lineFor(t *testing.T, s *Store, id int64, qty int) domain.LineItem {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return domain.LineItem{Product: *p, Quantity: qty}
}

func TestNewSeededKeepsCatalogOrder(t *testing.T) {
	s := NewSeeded()
	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 15)
	for i, p := range products {
		assert.Equal(t, int64(i+1), p.ID)
	}

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.NotEqual(t, "manager-demo-pass", users[0].PasswordHash)
}

func TestCommitSaleFloorsStockAndRecords(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	require.NoError(t, func() error { _, err := s.SetStock(ctx, 12, 2); return err }())

	sale := domain.Sale{ID: "TXN-1", Items: []domain.LineItem{lineFor(t, s, 12, 5), lineFor(t, s, 8, 3)}}
	recorded, err := s.CommitSale(ctx, sale)
	require.NoError(t, err)
	assert.False(t, recorded.CreatedAt.IsZero())

	laptop, _ := s.GetProduct(ctx, 12)
	espresso, _ := s.GetProduct(ctx, 8)
	assert.Equal(t, 0, laptop.Stock)
	assert.Equal(t, 97, espresso.Stock)

	_, err = s.CommitSale(ctx, sale)
	assert.ErrorIs(t, err, store.ErrConflict)

	sales, err := s.ListSales(ctx, store.SalesFilter{})
	require.NoError(t, err)
	require.Len(t, sales, 1)
}

func TestListSalesNewestFirstWithFilter(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, terminal := range []string{"a", "b", "a"} {
		_, err := s.CommitSale(ctx, domain.Sale{
			ID:         "TXN-" + string(rune('1'+i)),
			TerminalID: terminal,
			Items:      []domain.LineItem{lineFor(t, s, 9, 1)},
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	all, err := s.ListSales(ctx, store.SalesFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"TXN-3", "TXN-2", "TXN-1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	onA, err := s.ListSales(ctx, store.SalesFilter{TerminalID: "a", Limit: 1})
	require.NoError(t, err)
	require.Len(t, onA, 1)
	assert.Equal(t, "TXN-3", onA[0].ID)

	window, err := s.ListSales(ctx, store.SalesFilter{From: base.Add(30 * time.Minute), To: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "TXN-2", window[0].ID)
}

func TestReceivePurchaseOrderOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: 1,
		Status:     domain.POStatusPending,
		Items:      []domain.PurchaseOrderItem{{ProductID: 5, Quantity: 10, CostPrice: decimal.RequireFromString("9.50")}},
	})
	require.NoError(t, err)

	received, err := s.ReceivePurchaseOrder(ctx, po.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, received.Status)
	require.NotNil(t, received.ReceivedAt)

	salmon, _ := s.GetProduct(ctx, 5)
	assert.Equal(t, 30, salmon.Stock)

	_, err = s.ReceivePurchaseOrder(ctx, po.ID, time.Time{})
	assert.ErrorIs(t, err, store.ErrInvalidState)
	_, err = s.UpdatePurchaseOrder(ctx, *received)
	assert.ErrorIs(t, err, store.ErrInvalidState)
	salmon, _ = s.GetProduct(ctx, 5)
	assert.Equal(t, 30, salmon.Stock)

	assert.ErrorIs(t, s.DeleteSupplier(ctx, 1), store.ErrConflict)
}

func TestCancelledPurchaseOrderCannotBeReceived(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: 2,
		Status:     domain.POStatusCancelled,
		Items:      []domain.PurchaseOrderItem{{ProductID: 10, Quantity: 1, CostPrice: decimal.NewFromInt(100)}},
	})
	require.NoError(t, err)
	_, err = s.ReceivePurchaseOrder(ctx, po.ID, time.Time{})
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestProductValidationAndSKUConflict(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	_, err := s.CreateProduct(ctx, domain.Product{SKU: "APP-001", Name: "Copy", Category: domain.CategoryAppetizers})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CreateProduct(ctx, domain.Product{SKU: "NEW-1", Name: "Odd", Category: "Hardware"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	created, err := s.CreateProduct(ctx, domain.Product{SKU: "NEW-1", Name: "Affogato", Category: domain.CategoryDesserts, Price: decimal.NewFromInt(6), Stock: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(16), created.ID)

	require.NoError(t, s.DeleteProduct(ctx, created.ID))
	assert.ErrorIs(t, s.DeleteProduct(ctx, created.ID), store.ErrNotFound)
}

func TestDeleteDepartmentDetachesProducts(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	require.NoError(t, s.DeleteDepartment(ctx, 2))

	espresso, err := s.GetProduct(ctx, 8)
	require.NoError(t, err)
	assert.Nil(t, espresso.DepartmentID)
}

func TestUserEmailUniqueAndPasswordKept(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	_, err := s.CreateUser(ctx, domain.UserAccount{
		User:         domain.User{Name: "Dup", Email: "CASHIER@nexus.pos", Role: domain.RoleCashier},
		PasswordHash: "x",
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	existing, err := s.GetUserByEmail(ctx, "cashier@NEXUS.pos")
	require.NoError(t, err)
	existing.Name = "Renamed"
	existing.PasswordHash = ""
	updated, err := s.UpdateUser(ctx, *existing)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.NotEmpty(t, updated.PasswordHash)
}

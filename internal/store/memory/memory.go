package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"nexuspos/internal/domain"
	"nexuspos/internal/ledger"
	"nexuspos/internal/seed"
	"nexuspos/internal/store"
)

type Store struct {
	mu             sync.RWMutex
	products       []domain.Product
	sales          []domain.Sale
	customers      map[int64]domain.Customer
	suppliers      map[int64]domain.Supplier
	departments    map[int64]domain.Department
	purchaseOrders map[int64]domain.PurchaseOrder
	usersByID      map[int64]domain.UserAccount
	settings       domain.StoreSettings
	nextID         map[string]int64
	now            func() time.Time
}

// New builds a store from catalog. Seeded user passwords are bcrypt-hashed here.
func New(catalog seed.Catalog) (*Store, error) {
	now := func() time.Time { return time.Now().UTC() }
	s := &Store{
		products:       slices.Clone(catalog.Products),
		customers:      make(map[int64]domain.Customer),
		suppliers:      make(map[int64]domain.Supplier),
		departments:    make(map[int64]domain.Department),
		purchaseOrders: make(map[int64]domain.PurchaseOrder),
		usersByID:      make(map[int64]domain.UserAccount),
		settings:       catalog.Settings,
		nextID:         make(map[string]int64),
		now:            now,
	}
	slices.SortFunc(s.products, func(a, b domain.Product) int { return cmp.Compare(a.ID, b.ID) })
	for _, p := range s.products {
		s.bump("product", p.ID)
	}
	for _, d := range catalog.Departments {
		s.departments[d.ID] = d
		s.bump("department", d.ID)
	}
	for _, c := range catalog.Customers {
		c.CreatedAt = now()
		s.customers[c.ID] = c
		s.bump("customer", c.ID)
	}
	for _, sup := range catalog.Suppliers {
		sup.CreatedAt = now()
		s.suppliers[sup.ID] = sup
		s.bump("supplier", sup.ID)
	}
	for _, u := range catalog.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.Email, err)
		}
		id := s.allocate("user")
		s.usersByID[id] = domain.UserAccount{
			User:         domain.User{ID: id, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: now()},
			PasswordHash: string(hash),
		}
	}
	return s, nil
}

// NewSeeded returns a store holding the embedded demo catalog.
func NewSeeded() *Store {
	catalog, err := seed.Default()
	if err != nil {
		panic(fmt.Sprintf("memory: embedded seed catalog is invalid: %v", err))
	}
	s, err := New(catalog)
	if err != nil {
		panic(fmt.Sprintf("memory: %v", err))
	}
	return s
}

func (s *Store) bump(kind string, id int64) {
	if id > s.nextID[kind] {
		s.nextID[kind] = id
	}
}

func (s *Store) allocate(kind string) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

func (s *Store) productIndex(id int64) int {
	return slices.IndexFunc(s.products, func(p domain.Product) bool { return p.ID == id })
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.products), nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.productIndex(id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	product := s.products[i]
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProduct(product, 0); err != nil {
		return nil, err
	}
	product.ID = s.allocate("product")
	s.products = append(s.products, product)
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.productIndex(product.ID)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	if err := s.checkProduct(product, product.ID); err != nil {
		return nil, err
	}
	s.products[i] = product
	updated := product
	return &updated, nil
}

func (s *Store) checkProduct(product domain.Product, selfID int64) error {
	if product.SKU == "" || product.Name == "" || !product.Category.Valid() || product.Price.IsNegative() || product.Stock < 0 {
		return store.ErrInvalidInput
	}
	if product.DepartmentID != nil {
		if _, ok := s.departments[*product.DepartmentID]; !ok {
			return fmt.Errorf("%w: unknown department %d", store.ErrInvalidInput, *product.DepartmentID)
		}
	}
	for _, existing := range s.products {
		if existing.ID != selfID && strings.EqualFold(existing.SKU, product.SKU) {
			return fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
		}
	}
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.productIndex(id)
	if i < 0 {
		return store.ErrNotFound
	}
	s.products = slices.Delete(s.products, i, i+1)
	return nil
}

func (s *Store) SetStock(_ context.Context, productID int64, qty int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 0 {
		return nil, store.ErrInvalidInput
	}
	i := s.productIndex(productID)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	s.products[i].Stock = qty
	updated := s.products[i]
	return &updated, nil
}

func (s *Store) CommitSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.sales {
		if existing.ID == sale.ID {
			return nil, fmt.Errorf("%w: sale %s already recorded", store.ErrConflict, sale.ID)
		}
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}

	s.products = ledger.ApplySale(s.products, sale.Items)
	recorded := cloneSale(sale)
	s.sales = append(s.sales, recorded)
	out := cloneSale(recorded)
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, filter store.SalesFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0)
	for i := len(s.sales) - 1; i >= 0; i-- {
		if !filter.Matches(s.sales[i]) {
			continue
		}
		out = append(out, cloneSale(s.sales[i]))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.customers, func(c domain.Customer) int64 { return c.ID }), nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	customer.ID = s.allocate("customer")
	customer.CreatedAt = s.now()
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	customer.CreatedAt = existing.CreatedAt
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.suppliers, func(sup domain.Supplier) int64 { return sup.ID }), nil
}

func (s *Store) GetSupplier(_ context.Context, id int64) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &supplier, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	supplier.ID = s.allocate("supplier")
	supplier.CreatedAt = s.now()
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.suppliers[supplier.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	supplier.CreatedAt = existing.CreatedAt
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

// DeleteSupplier refuses suppliers that purchase orders still reference.
func (s *Store) DeleteSupplier(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[id]; !ok {
		return store.ErrNotFound
	}
	for _, po := range s.purchaseOrders {
		if po.SupplierID == id {
			return fmt.Errorf("%w: supplier %d has purchase orders", store.ErrConflict, id)
		}
	}
	delete(s.suppliers, id)
	return nil
}

func (s *Store) ListDepartments(_ context.Context) ([]domain.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.departments, func(d domain.Department) int64 { return d.ID }), nil
}

func (s *Store) GetDepartment(_ context.Context, id int64) (*domain.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	department, ok := s.departments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &department, nil
}

func (s *Store) CreateDepartment(_ context.Context, department domain.Department) (*domain.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if department.Name == "" {
		return nil, store.ErrInvalidInput
	}
	department.ID = s.allocate("department")
	s.departments[department.ID] = department
	return &department, nil
}

func (s *Store) UpdateDepartment(_ context.Context, department domain.Department) (*domain.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.departments[department.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if department.Name == "" {
		return nil, store.ErrInvalidInput
	}
	s.departments[department.ID] = department
	return &department, nil
}

// DeleteDepartment detaches the department's products before removing it.
func (s *Store) DeleteDepartment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.departments[id]; !ok {
		return store.ErrNotFound
	}
	for i := range s.products {
		if s.products[i].DepartmentID != nil && *s.products[i].DepartmentID == id {
			s.products[i].DepartmentID = nil
		}
	}
	delete(s.departments, id)
	return nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status domain.PurchaseOrderStatus) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.PurchaseOrder, 0, len(s.purchaseOrders))
	for _, po := range s.purchaseOrders {
		if status != "" && po.Status != status {
			continue
		}
		orders = append(orders, clonePurchaseOrder(po))
	}
	slices.SortFunc(orders, func(a, b domain.PurchaseOrder) int { return cmp.Compare(b.ID, a.ID) })
	return orders, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id int64) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clonePurchaseOrder(po)
	return &out, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPurchaseOrder(po); err != nil {
		return nil, err
	}
	po.ID = s.allocate("purchase_order")
	po.CreatedAt = s.now()
	po.ReceivedAt = nil
	s.purchaseOrders[po.ID] = clonePurchaseOrder(po)
	out := clonePurchaseOrder(po)
	return &out, nil
}

// UpdatePurchaseOrder only edits orders that have not been received.
func (s *Store) UpdatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.purchaseOrders[po.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Status == domain.POStatusReceived {
		return nil, fmt.Errorf("%w: purchase order %d already received", store.ErrInvalidState, po.ID)
	}
	if err := s.checkPurchaseOrder(po); err != nil {
		return nil, err
	}
	po.CreatedAt = existing.CreatedAt
	po.ReceivedAt = nil
	s.purchaseOrders[po.ID] = clonePurchaseOrder(po)
	out := clonePurchaseOrder(po)
	return &out, nil
}

func (s *Store) checkPurchaseOrder(po domain.PurchaseOrder) error {
	if len(po.Items) == 0 || po.Status == domain.POStatusReceived {
		return store.ErrInvalidInput
	}
	if _, ok := s.suppliers[po.SupplierID]; !ok {
		return fmt.Errorf("%w: unknown supplier %d", store.ErrInvalidInput, po.SupplierID)
	}
	for _, item := range po.Items {
		if item.Quantity < 1 || item.CostPrice.IsNegative() || s.productIndex(item.ProductID) < 0 {
			return fmt.Errorf("%w: invalid item for product %d", store.ErrInvalidInput, item.ProductID)
		}
	}
	return nil
}

func (s *Store) DeletePurchaseOrder(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.purchaseOrders[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.purchaseOrders, id)
	return nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, id int64, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.POStatusPending {
		return nil, fmt.Errorf("%w: purchase order %d is %s", store.ErrInvalidState, id, po.Status)
	}
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	s.products = ledger.ApplyReceipt(s.products, po.Items)

	po.Status = domain.POStatusReceived
	po.ReceivedAt = &receivedAt
	s.purchaseOrders[id] = po
	out := clonePurchaseOrder(po)
	return &out, nil
}

func (s *Store) GetSettings(_ context.Context) (domain.StoreSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.StoreSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.usersByID, func(u domain.UserAccount) int64 { return u.ID }), nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.usersByID {
		if strings.EqualFold(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" || !user.Role.Valid() {
		return nil, store.ErrInvalidInput
	}
	if s.emailTaken(user.Email, 0) {
		return nil, fmt.Errorf("%w: email %s already registered", store.ErrConflict, user.Email)
	}
	user.ID = s.allocate("user")
	user.CreatedAt = s.now()
	s.usersByID[user.ID] = user
	return &user, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.usersByID[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || !user.Role.Valid() {
		return nil, store.ErrInvalidInput
	}
	if s.emailTaken(user.Email, user.ID) {
		return nil, fmt.Errorf("%w: email %s already registered", store.ErrConflict, user.Email)
	}
	if user.PasswordHash == "" {
		user.PasswordHash = existing.PasswordHash
	}
	user.CreatedAt = existing.CreatedAt
	s.usersByID[user.ID] = user
	return &user, nil
}

func (s *Store) emailTaken(email string, selfID int64) bool {
	for id, user := range s.usersByID {
		if id != selfID && strings.EqualFold(user.Email, email) {
			return true
		}
	}
	return false
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.usersByID, id)
	return nil
}

func sortedValues[T any](m map[int64]T, id func(T) int64) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b T) int { return cmp.Compare(id(a), id(b)) })
	return out
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = slices.Clone(src.Items)
	if src.FiscalSync != nil {
		result := *src.FiscalSync
		dup.FiscalSync = &result
	}
	return dup
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	dup.Items = slices.Clone(src.Items)
	if src.ReceivedAt != nil {
		at := *src.ReceivedAt
		dup.ReceivedAt = &at
	}
	return dup
}

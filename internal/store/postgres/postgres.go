package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"

	"nexuspos/internal/domain"
	"nexuspos/internal/ledger"
	"nexuspos/internal/seed"
	"nexuspos/internal/store"
)

type Store struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SeedIfEmpty loads catalog into a database that has no products yet. It reports
// whether anything was written.
func (s *Store) SeedIfEmpty(ctx context.Context, catalog seed.Catalog) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products`).Scan(&count); err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range catalog.Departments {
		if _, err := tx.ExecContext(ctx, `INSERT INTO departments (id, name, description) VALUES ($1,$2,$3)`, d.ID, d.Name, d.Description); err != nil {
			return false, fmt.Errorf("seed department %d: %w", d.ID, err)
		}
	}
	for _, p := range catalog.Products {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, sku, name, price, category, image_url, stock, description, department_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, p.ID, p.SKU, p.Name, p.Price, string(p.Category), p.ImageURL, p.Stock, p.Description, p.DepartmentID); err != nil {
			return false, fmt.Errorf("seed product %d: %w", p.ID, err)
		}
	}
	for _, c := range catalog.Customers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO customers (id, name, email, phone, address) VALUES ($1,$2,$3,$4,$5)`,
			c.ID, c.Name, c.Email, c.Phone, c.Address); err != nil {
			return false, fmt.Errorf("seed customer %d: %w", c.ID, err)
		}
	}
	for _, sup := range catalog.Suppliers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO suppliers (id, name, contact_person, email, phone) VALUES ($1,$2,$3,$4,$5)`,
			sup.ID, sup.Name, sup.ContactPerson, sup.Email, sup.Phone); err != nil {
			return false, fmt.Errorf("seed supplier %d: %w", sup.ID, err)
		}
	}
	for _, u := range catalog.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return false, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (name, email, role, password_hash) VALUES ($1,$2,$3,$4)
			ON CONFLICT (email) DO NOTHING
		`, u.Name, u.Email, string(u.Role), string(hash)); err != nil {
			return false, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	if err := saveSettings(ctx, tx, catalog.Settings, false); err != nil {
		return false, err
	}
	for _, table := range []string{"departments", "products", "customers", "suppliers"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE((SELECT MAX(id) FROM %[1]s), 0) + 1, false)`, table)); err != nil {
			return false, fmt.Errorf("reset %s sequence: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

const productColumns = `id, sku, name, price, category, image_url, stock, description, department_id`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var category string
	var departmentID sql.NullInt64
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &category, &p.ImageURL, &p.Stock, &p.Description, &departmentID); err != nil {
		return domain.Product{}, err
	}
	p.Category = domain.Category(category)
	if departmentID.Valid {
		id := departmentID.Int64
		p.DepartmentID = &id
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func validProduct(product domain.Product) bool {
	return product.SKU != "" && product.Name != "" && product.Category.Valid() && !product.Price.IsNegative() && product.Stock >= 0
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if !validProduct(product) {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (sku, name, price, category, image_url, stock, description, department_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, product.SKU, product.Name, product.Price, string(product.Category), product.ImageURL, product.Stock, product.Description, product.DepartmentID).Scan(&product.ID)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if !validProduct(product) {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET sku = $2, name = $3, price = $4, category = $5, image_url = $6, stock = $7, description = $8, department_id = $9
		WHERE id = $1
	`, product.ID, product.SKU, product.Name, product.Price, string(product.Category), product.ImageURL, product.Stock, product.Description, product.DepartmentID)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "products", id)
}

func (s *Store) SetStock(ctx context.Context, productID int64, qty int) (*domain.Product, error) {
	if qty < 0 {
		return nil, store.ErrInvalidInput
	}
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products SET stock = $2 WHERE id = $1
		RETURNING `+productColumns, productID, qty))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}
	var fiscal []byte
	if sale.FiscalSync != nil {
		if fiscal, err = json.Marshal(sale.FiscalSync); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sold := make(map[int64]int, len(sale.Items))
	ids := make([]int64, 0, len(sale.Items))
	for _, item := range sale.Items {
		if _, seen := sold[item.Product.ID]; !seen {
			ids = append(ids, item.Product.ID)
		}
		sold[item.Product.ID] += item.Quantity
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, stock FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	next := make(map[int64]int, len(ids))
	for rows.Next() {
		var id int64
		var stock int
		if err := rows.Scan(&id, &stock); err != nil {
			_ = rows.Close()
			return nil, err
		}
		next[id] = ledger.SaleStock(stock, sold[id])
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for id, stock := range next {
		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = $2 WHERE id = $1`, id, stock); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, terminal_id, cashier, payment_method, tax_rate_percent, subtotal, tax, total, items, fiscal_sync, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.TerminalID, sale.Cashier, string(sale.PaymentMethod), sale.TaxRatePercent,
		sale.Subtotal, sale.Tax, sale.Total, items, nullJSON(fiscal), sale.CreatedAt); err != nil {
		return nil, mapWriteErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	recorded := sale
	return &recorded, nil
}

func (s *Store) ListSales(ctx context.Context, filter store.SalesFilter) ([]domain.Sale, error) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if filter.TerminalID != "" {
		args = append(args, filter.TerminalID)
		clauses = append(clauses, fmt.Sprintf("terminal_id = $%d", len(args)))
	}

	query := `SELECT id, terminal_id, cashier, payment_method, tax_rate_percent, subtotal, tax, total, items, fiscal_sync, created_at FROM sales`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		var sale domain.Sale
		var method string
		var items, fiscal []byte
		if err := rows.Scan(&sale.ID, &sale.TerminalID, &sale.Cashier, &method, &sale.TaxRatePercent,
			&sale.Subtotal, &sale.Tax, &sale.Total, &items, &fiscal, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.PaymentMethod = domain.PaymentMethod(method)
		if err := json.Unmarshal(items, &sale.Items); err != nil {
			return nil, fmt.Errorf("decode sale %s items: %w", sale.ID, err)
		}
		if len(fiscal) > 0 {
			var result domain.FiscalResult
			if err := json.Unmarshal(fiscal, &result); err != nil {
				return nil, fmt.Errorf("decode sale %s fiscal sync: %w", sale.ID, err)
			}
			sale.FiscalSync = &result
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, phone, address, created_at FROM customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email, phone, address, created_at FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, email, phone, address) VALUES ($1,$2,$3,$4)
		RETURNING id, created_at
	`, customer.Name, customer.Email, customer.Phone, customer.Address).Scan(&customer.ID, &customer.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers SET name = $2, email = $3, phone = $4, address = $5 WHERE id = $1
		RETURNING created_at
	`, customer.ID, customer.Name, customer.Email, customer.Phone, customer.Address).Scan(&customer.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &customer, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "customers", id)
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, contact_person, email, phone, created_at FROM suppliers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.ContactPerson, &sup.Email, &sup.Phone, &sup.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

func (s *Store) GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `SELECT id, name, contact_person, email, phone, created_at FROM suppliers WHERE id = $1`, id).
		Scan(&sup.ID, &sup.Name, &sup.ContactPerson, &sup.Email, &sup.Phone, &sup.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &sup, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, contact_person, email, phone) VALUES ($1,$2,$3,$4)
		RETURNING id, created_at
	`, supplier.Name, supplier.ContactPerson, supplier.Email, supplier.Phone).Scan(&supplier.ID, &supplier.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &supplier, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		UPDATE suppliers SET name = $2, contact_person = $3, email = $4, phone = $5 WHERE id = $1
		RETURNING created_at
	`, supplier.ID, supplier.Name, supplier.ContactPerson, supplier.Email, supplier.Phone).Scan(&supplier.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &supplier, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "suppliers", id)
}

func (s *Store) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description FROM departments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	departments := make([]domain.Department, 0, 8)
	for rows.Next() {
		var d domain.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description); err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

func (s *Store) GetDepartment(ctx context.Context, id int64) (*domain.Department, error) {
	var d domain.Department
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description FROM departments WHERE id = $1`, id).Scan(&d.ID, &d.Name, &d.Description)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (s *Store) CreateDepartment(ctx context.Context, department domain.Department) (*domain.Department, error) {
	if department.Name == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `INSERT INTO departments (name, description) VALUES ($1,$2) RETURNING id`,
		department.Name, department.Description).Scan(&department.ID)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &department, nil
}

func (s *Store) UpdateDepartment(ctx context.Context, department domain.Department) (*domain.Department, error) {
	if department.Name == "" {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `UPDATE departments SET name = $2, description = $3 WHERE id = $1`,
		department.ID, department.Name, department.Description)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return &department, nil
}

func (s *Store) DeleteDepartment(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "departments", id)
}

const purchaseOrderColumns = `id, supplier_id, order_date, status, total_cost, received_at, created_at`

func scanPurchaseOrder(row rowScanner) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var status string
	var receivedAt sql.NullTime
	if err := row.Scan(&po.ID, &po.SupplierID, &po.Date, &status, &po.TotalCost, &receivedAt, &po.CreatedAt); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po.Status = domain.PurchaseOrderStatus(status)
	if receivedAt.Valid {
		at := receivedAt.Time.UTC()
		po.ReceivedAt = &at
	}
	return po, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadPurchaseOrderItems(ctx context.Context, q querier, orders []domain.PurchaseOrder) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, po := range orders {
		ids[i] = po.ID
		index[po.ID] = i
		orders[i].Items = make([]domain.PurchaseOrderItem, 0, 4)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT purchase_order_id, product_id, product_name, quantity, cost_price
		FROM purchase_order_items
		WHERE purchase_order_id = ANY($1)
		ORDER BY purchase_order_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var poID int64
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&poID, &item.ProductID, &item.ProductName, &item.Quantity, &item.CostPrice); err != nil {
			return err
		}
		i := index[poID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status domain.PurchaseOrderStatus) ([]domain.PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.PurchaseOrder, 0, 16)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := loadPurchaseOrderItems(ctx, s.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	orders := []domain.PurchaseOrder{po}
	if err := loadPurchaseOrderItems(ctx, s.db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func validPurchaseOrder(po domain.PurchaseOrder) bool {
	if len(po.Items) == 0 || po.Status == domain.POStatusReceived {
		return false
	}
	for _, item := range po.Items {
		if item.Quantity < 1 || item.CostPrice.IsNegative() {
			return false
		}
	}
	return true
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if !validPurchaseOrder(po) {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO purchase_orders (supplier_id, order_date, status, total_cost)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at
	`, po.SupplierID, po.Date, string(po.Status), po.TotalCost).Scan(&po.ID, &po.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	if err := insertPurchaseOrderItems(ctx, tx, po); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	po.ReceivedAt = nil
	return &po, nil
}

func (s *Store) UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if !validPurchaseOrder(po) {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM purchase_orders WHERE id = $1 FOR UPDATE`, po.ID).Scan(&current); err != nil {
		return nil, notFound(err)
	}
	if domain.PurchaseOrderStatus(current) == domain.POStatusReceived {
		return nil, fmt.Errorf("%w: purchase order %d already received", store.ErrInvalidState, po.ID)
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE purchase_orders SET supplier_id = $2, order_date = $3, status = $4, total_cost = $5
		WHERE id = $1
		RETURNING created_at
	`, po.ID, po.SupplierID, po.Date, string(po.Status), po.TotalCost).Scan(&po.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM purchase_order_items WHERE purchase_order_id = $1`, po.ID); err != nil {
		return nil, err
	}
	if err := insertPurchaseOrderItems(ctx, tx, po); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	po.ReceivedAt = nil
	return &po, nil
}

func insertPurchaseOrderItems(ctx context.Context, tx *sql.Tx, po domain.PurchaseOrder) error {
	for i, item := range po.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, line_no, product_id, product_name, quantity, cost_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, po.ID, i+1, item.ProductID, item.ProductName, item.Quantity, item.CostPrice); err != nil {
			return mapWriteErr(err)
		}
	}
	return nil
}

func (s *Store) DeletePurchaseOrder(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "purchase_orders", id)
}

func (s *Store) ReceivePurchaseOrder(ctx context.Context, id int64, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	po, err := scanPurchaseOrder(tx.QueryRowContext(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if po.Status != domain.POStatusPending {
		return nil, fmt.Errorf("%w: purchase order %d is %s", store.ErrInvalidState, id, po.Status)
	}
	orders := []domain.PurchaseOrder{po}
	if err := loadPurchaseOrderItems(ctx, tx, orders); err != nil {
		return nil, err
	}
	po = orders[0]

	for _, item := range po.Items {
		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock + $2 WHERE id = $1`, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE purchase_orders SET status = $2, received_at = $3 WHERE id = $1`,
		id, string(domain.POStatusReceived), receivedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	po.Status = domain.POStatusReceived
	po.ReceivedAt = &receivedAt
	return &po, nil
}

func (s *Store) GetSettings(ctx context.Context) (domain.StoreSettings, error) {
	var settings domain.StoreSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT store_name, contact_email, tax_rate_percent, currency_symbol, currency_code,
		       fiscal_enabled, fiscal_endpoint, fiscal_sync_on_sale
		FROM store_settings WHERE id = 1
	`).Scan(&settings.Business.StoreName, &settings.Business.ContactEmail, &settings.TaxRatePercent,
		&settings.Currency.Symbol, &settings.Currency.Code,
		&settings.Fiscalization.Enabled, &settings.Fiscalization.EndpointURL, &settings.Fiscalization.SyncOnSale)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultStoreSettings(), nil
	}
	if err != nil {
		return domain.StoreSettings{}, err
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.StoreSettings) error {
	return saveSettings(ctx, s.db, settings, true)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveSettings(ctx context.Context, db execer, settings domain.StoreSettings, overwrite bool) error {
	conflict := `DO NOTHING`
	if overwrite {
		conflict = `DO UPDATE SET
			store_name = EXCLUDED.store_name,
			contact_email = EXCLUDED.contact_email,
			tax_rate_percent = EXCLUDED.tax_rate_percent,
			currency_symbol = EXCLUDED.currency_symbol,
			currency_code = EXCLUDED.currency_code,
			fiscal_enabled = EXCLUDED.fiscal_enabled,
			fiscal_endpoint = EXCLUDED.fiscal_endpoint,
			fiscal_sync_on_sale = EXCLUDED.fiscal_sync_on_sale`
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO store_settings (id, store_name, contact_email, tax_rate_percent, currency_symbol, currency_code,
		                            fiscal_enabled, fiscal_endpoint, fiscal_sync_on_sale)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) `+conflict,
		settings.Business.StoreName, settings.Business.ContactEmail, settings.TaxRatePercent,
		settings.Currency.Symbol, settings.Currency.Code,
		settings.Fiscalization.Enabled, settings.Fiscalization.EndpointURL, settings.Fiscalization.SyncOnSale)
	return err
}

const userColumns = `id, name, email, role, password_hash, created_at`

func scanUser(row rowScanner) (domain.UserAccount, error) {
	var u domain.UserAccount
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.PasswordHash, &u.CreatedAt); err != nil {
		return domain.UserAccount{}, err
	}
	u.Role = domain.Role(role)
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.UserAccount, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1)`, strings.TrimSpace(email)))
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" || !user.Role.Valid() {
		return nil, store.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, role, password_hash) VALUES ($1,$2,$3,$4)
		RETURNING id, created_at
	`, user.Name, user.Email, string(user.Role), user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || !user.Role.Valid() {
		return nil, store.ErrInvalidInput
	}
	updated, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, role = $4, password_hash = COALESCE(NULLIF($5, ''), password_hash)
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.Name, user.Email, string(user.Role), user.PasswordHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapWriteErr(err)
	}
	return &updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "users", id)
}

// deleteByID is only called with table names from this file.
func (s *Store) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// mapWriteErr translates constraint violations into store errors.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	case "23503":
		if strings.HasPrefix(pgErr.Message, "update or delete") {
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
		}
		return fmt.Errorf("%w: %s", store.ErrInvalidInput, pgErr.ConstraintName)
	case "23514", "22P02":
		return fmt.Errorf("%w: %s", store.ErrInvalidInput, pgErr.ConstraintName)
	}
	return err
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

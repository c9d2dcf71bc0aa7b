// Package seed loads the demo catalog the in-memory repository starts from.
package seed

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"nexuspos/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type file struct {
	Settings    *settingsEntry    `yaml:"settings"`
	Departments []departmentEntry `yaml:"departments"`
	Products    []productEntry    `yaml:"products"`
	Customers   []customerEntry   `yaml:"customers"`
	Suppliers   []supplierEntry   `yaml:"suppliers"`
	Users       []userEntry       `yaml:"users"`
}

type settingsEntry struct {
	StoreName      string `yaml:"store_name"`
	ContactEmail   string `yaml:"contact_email"`
	TaxRatePercent string `yaml:"tax_rate_percent"`
	CurrencySymbol string `yaml:"currency_symbol"`
	CurrencyCode   string `yaml:"currency_code"`
}

type departmentEntry struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type productEntry struct {
	ID           int64  `yaml:"id"`
	SKU          string `yaml:"sku"`
	Name         string `yaml:"name"`
	Price        string `yaml:"price"`
	Category     string `yaml:"category"`
	ImageURL     string `yaml:"image_url"`
	Stock        int    `yaml:"stock"`
	Description  string `yaml:"description"`
	DepartmentID *int64 `yaml:"department_id"`
}

type customerEntry struct {
	ID      int64  `yaml:"id"`
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
	Address string `yaml:"address"`
}

type supplierEntry struct {
	ID            int64  `yaml:"id"`
	Name          string `yaml:"name"`
	ContactPerson string `yaml:"contact_person"`
	Email         string `yaml:"email"`
	Phone         string `yaml:"phone"`
}

type userEntry struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Role     string `yaml:"role"`
	Password string `yaml:"password"`
}

// User is a seeded account with its plaintext password, hashed by the repository.
type User struct {
	Name     string
	Email    string
	Role     domain.Role
	Password string
}

type Catalog struct {
	Settings    domain.StoreSettings
	Departments []domain.Department
	Products    []domain.Product
	Customers   []domain.Customer
	Suppliers   []domain.Supplier
	Users       []User
}

// Default returns the embedded demo catalog.
func Default() (Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, falling back to the embedded one when path is empty.
func Load(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog. Every problem is reported, not just the first.
func Parse(data []byte) (Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Catalog{}, fmt.Errorf("decode seed catalog: %w", err)
	}

	var errs error
	catalog := Catalog{Settings: domain.DefaultStoreSettings()}

	if s := f.Settings; s != nil {
		if s.StoreName != "" {
			catalog.Settings.Business.StoreName = s.StoreName
		}
		if s.ContactEmail != "" {
			catalog.Settings.Business.ContactEmail = s.ContactEmail
		}
		if s.TaxRatePercent != "" {
			rate, err := decimal.NewFromString(s.TaxRatePercent)
			if err != nil || rate.IsNegative() {
				errs = multierr.Append(errs, fmt.Errorf("settings: invalid tax rate %q", s.TaxRatePercent))
			} else {
				catalog.Settings.TaxRatePercent = rate
			}
		}
		if s.CurrencySymbol != "" {
			catalog.Settings.Currency.Symbol = s.CurrencySymbol
		}
		if s.CurrencyCode != "" {
			catalog.Settings.Currency.Code = strings.ToUpper(s.CurrencyCode)
		}
	}

	departmentIDs := map[int64]bool{}
	for i, d := range f.Departments {
		if d.ID < 1 || d.Name == "" || departmentIDs[d.ID] {
			errs = multierr.Append(errs, fmt.Errorf("departments[%d]: id must be unique and positive and name is required", i))
			continue
		}
		departmentIDs[d.ID] = true
		catalog.Departments = append(catalog.Departments, domain.Department{ID: d.ID, Name: d.Name, Description: d.Description})
	}

	productIDs := map[int64]bool{}
	skus := map[string]bool{}
	for i, p := range f.Products {
		product, err := p.toDomain()
		if err == nil && (productIDs[p.ID] || skus[p.SKU]) {
			err = fmt.Errorf("duplicate id %d or sku %q", p.ID, p.SKU)
		}
		if err == nil && p.DepartmentID != nil && !departmentIDs[*p.DepartmentID] {
			err = fmt.Errorf("unknown department %d", *p.DepartmentID)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("products[%d]: %w", i, err))
			continue
		}
		productIDs[p.ID] = true
		skus[p.SKU] = true
		catalog.Products = append(catalog.Products, product)
	}

	for i, c := range f.Customers {
		if c.ID < 1 || c.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("customers[%d]: id and name are required", i))
			continue
		}
		catalog.Customers = append(catalog.Customers, domain.Customer{ID: c.ID, Name: c.Name, Email: c.Email, Phone: c.Phone, Address: c.Address})
	}

	for i, s := range f.Suppliers {
		if s.ID < 1 || s.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("suppliers[%d]: id and name are required", i))
			continue
		}
		catalog.Suppliers = append(catalog.Suppliers, domain.Supplier{ID: s.ID, Name: s.Name, ContactPerson: s.ContactPerson, Email: s.Email, Phone: s.Phone})
	}

	for i, u := range f.Users {
		role := domain.Role(u.Role)
		if u.Email == "" || u.Password == "" || !role.Valid() {
			errs = multierr.Append(errs, fmt.Errorf("users[%d]: email, password and a known role are required", i))
			continue
		}
		catalog.Users = append(catalog.Users, User{Name: u.Name, Email: strings.ToLower(u.Email), Role: role, Password: u.Password})
	}

	if errs != nil {
		return Catalog{}, errs
	}
	return catalog, nil
}

func (p productEntry) toDomain() (domain.Product, error) {
	if p.ID < 1 || p.SKU == "" || p.Name == "" {
		return domain.Product{}, fmt.Errorf("id, sku and name are required")
	}
	price, err := decimal.NewFromString(p.Price)
	if err != nil || price.IsNegative() {
		return domain.Product{}, fmt.Errorf("invalid price %q", p.Price)
	}
	category := domain.Category(p.Category)
	if !category.Valid() {
		return domain.Product{}, fmt.Errorf("unknown category %q", p.Category)
	}
	if p.Stock < 0 {
		return domain.Product{}, fmt.Errorf("negative stock %d", p.Stock)
	}
	return domain.Product{
		ID:           p.ID,
		SKU:          p.SKU,
		Name:         p.Name,
		Price:        price,
		Category:     category,
		ImageURL:     p.ImageURL,
		Stock:        p.Stock,
		Description:  p.Description,
		DepartmentID: p.DepartmentID,
	}, nil
}

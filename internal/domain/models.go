package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryAll         Category = "All"
	CategoryAppetizers  Category = "Appetizers"
	CategoryMainCourses Category = "Main Courses"
	CategoryDesserts    Category = "Desserts"
	CategoryBeverages   Category = "Beverages"
	CategoryElectronics Category = "Electronics"
	CategoryApparel     Category = "Apparel"
)

// ProductCategories lists the assignable categories in display order. CategoryAll is a
// filter sentinel and never stored on a product.
var ProductCategories = []Category{
	CategoryAppetizers,
	CategoryMainCourses,
	CategoryDesserts,
	CategoryBeverages,
	CategoryElectronics,
	CategoryApparel,
}

func (c Category) Valid() bool {
	for _, known := range ProductCategories {
		if c == known {
			return true
		}
	}
	return false
}

type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Category     Category        `json:"category"`
	ImageURL     string          `json:"image_url"`
	Stock        int             `json:"stock"`
	Description  string          `json:"description,omitempty"`
	DepartmentID *int64          `json:"department_id,omitempty"`
}

type ProductInput struct {
	SKU          string   `json:"sku" validate:"required,max=64"`
	Name         string   `json:"name" validate:"required,max=200"`
	Price        string   `json:"price" validate:"required"`
	Category     Category `json:"category" validate:"required"`
	ImageURL     string   `json:"image_url" validate:"omitempty,url"`
	Stock        int      `json:"stock" validate:"gte=0"`
	Description  string   `json:"description" validate:"max=2000"`
	DepartmentID *int64   `json:"department_id,omitempty"`
}

type StockAdjustRequest struct {
	Stock int    `json:"stock" validate:"gte=0"`
	Note  string `json:"note" validate:"max=500"`
}

type DescribeRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type DescribeResponse struct {
	Description string `json:"description"`
}

// LineItem is a product snapshot plus the quantity rung up for it. The snapshot's
// Stock is the ceiling the quantity is clamped to.
type LineItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

func (l LineItem) LineTotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Pricing struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCash PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentCash
}

type PaymentRequest struct {
	AmountDue decimal.Decimal `json:"amount_due"`
	Pricing   Pricing         `json:"pricing"`
	// TaxRatePercent is the rate Pricing was computed with.
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	Methods        []PaymentMethod `json:"methods"`
}

// FiscalPayload is the body posted to the fiscal endpoint. The field names follow the
// fiscal service's wire format.
type FiscalPayload struct {
	TransactionID string          `json:"transactionId"`
	Timestamp     string          `json:"timestamp"`
	Items         []FiscalItem    `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
}

// FiscalItem is one sold line on the fiscal wire: the product fields flattened next
// to the quantity.
type FiscalItem struct {
	ID       int64           `json:"id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category Category        `json:"category"`
	ImageURL string          `json:"imageUrl"`
	Stock    int             `json:"stock"`
	Quantity int             `json:"quantity"`
}

func NewFiscalItem(item LineItem) FiscalItem {
	return FiscalItem{
		ID:       item.Product.ID,
		SKU:      item.Product.SKU,
		Name:     item.Product.Name,
		Price:    item.Product.Price,
		Category: item.Product.Category,
		ImageURL: item.Product.ImageURL,
		Stock:    item.Product.Stock,
		Quantity: item.Quantity,
	}
}

type FiscalResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Sale struct {
	ID             string          `json:"id"`
	TerminalID     string          `json:"terminal_id"`
	Cashier        string          `json:"cashier"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	Items          []LineItem      `json:"items"`
	FiscalSync     *FiscalResult   `json:"fiscal_sync,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Receipt struct {
	Sale       Sale          `json:"sale"`
	Display    DisplayTotals `json:"display"`
	FiscalSync *FiscalResult `json:"fiscal_sync,omitempty"`
}

// DisplayTotals carries the currency-formatted amounts shown to the cashier.
type DisplayTotals struct {
	Currency string `json:"currency"`
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

type CartView struct {
	TerminalID string        `json:"terminal_id"`
	State      string        `json:"state"`
	Items      []LineItem    `json:"items"`
	Pricing    Pricing       `json:"pricing"`
	Display    DisplayTotals `json:"display"`
}

type CartAddRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

type CartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type ConfirmPaymentRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=card cash"`
}

type SalesSummary struct {
	From            string                 `json:"from"`
	To              string                 `json:"to"`
	Transactions    int                    `json:"transactions"`
	Revenue         decimal.Decimal        `json:"revenue"`
	Tax             decimal.Decimal        `json:"tax"`
	AverageTicket   decimal.Decimal        `json:"average_ticket"`
	ItemsSold       int                    `json:"items_sold"`
	ByPaymentMethod []SalesSummaryBucket   `json:"by_payment_method"`
	ByCategory      []SalesSummaryBucket   `json:"by_category"`
	TopProducts     []SalesSummaryProduct  `json:"top_products"`
	Daily           []SalesSummaryDayTotal `json:"daily"`
}

type SalesSummaryBucket struct {
	Key          string          `json:"key"`
	Transactions int             `json:"transactions"`
	Total        decimal.Decimal `json:"total"`
}

type SalesSummaryProduct struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type SalesSummaryDayTotal struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
}

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=40"`
	Address string `json:"address" validate:"max=500"`
}

type Supplier struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	CreatedAt     time.Time `json:"created_at"`
}

type SupplierInput struct {
	Name          string `json:"name" validate:"required,max=200"`
	ContactPerson string `json:"contact_person" validate:"max=200"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"max=40"`
}

type Department struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type DepartmentInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
}

type PurchaseOrderStatus string

const (
	POStatusPending   PurchaseOrderStatus = "Pending"
	POStatusReceived  PurchaseOrderStatus = "Received"
	POStatusCancelled PurchaseOrderStatus = "Cancelled"
)

type PurchaseOrderItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	CostPrice   decimal.Decimal `json:"cost_price"`
}

type PurchaseOrder struct {
	ID         int64               `json:"id"`
	SupplierID int64               `json:"supplier_id"`
	Date       string              `json:"date"`
	Status     PurchaseOrderStatus `json:"status"`
	Items      []PurchaseOrderItem `json:"items"`
	TotalCost  decimal.Decimal     `json:"total_cost"`
	ReceivedAt *time.Time          `json:"received_at,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

type PurchaseOrderItemInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	CostPrice string `json:"cost_price" validate:"required"`
}

type PurchaseOrderInput struct {
	SupplierID int64                    `json:"supplier_id" validate:"required,gt=0"`
	Date       string                   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Status     PurchaseOrderStatus      `json:"status" validate:"omitempty,oneof=Pending Cancelled"`
	Items      []PurchaseOrderItemInput `json:"items" validate:"required,min=1,dive"`
}

type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleCashier Role = "Cashier"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleCashier
}

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is the persistence model carrying the password hash.
type UserAccount struct {
	User
	PasswordHash string
}

type UserInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Role     Role   `json:"role" validate:"required,oneof=Admin Manager Cashier"`
	Password string `json:"password" validate:"omitempty,min=8,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID int64
	Email  string
	Role   Role
}

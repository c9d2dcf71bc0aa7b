package domain

import "github.com/shopspring/decimal"

type BusinessProfile struct {
	StoreName    string `json:"store_name"`
	ContactEmail string `json:"contact_email"`
}

type Currency struct {
	Symbol string `json:"symbol"`
	Code   string `json:"code"`
}

type FiscalizationSettings struct {
	Enabled     bool   `json:"enabled"`
	EndpointURL string `json:"endpoint_url"`
	SyncOnSale  bool   `json:"sync_on_sale"`
}

// SyncEnabled reports whether a committed sale must be pushed to the fiscal endpoint.
func (f FiscalizationSettings) SyncEnabled() bool {
	return f.Enabled && f.SyncOnSale
}

type StoreSettings struct {
	Business       BusinessProfile       `json:"business"`
	TaxRatePercent decimal.Decimal       `json:"tax_rate_percent"`
	Currency       Currency              `json:"currency"`
	Fiscalization  FiscalizationSettings `json:"fiscalization"`
}

func DefaultStoreSettings() StoreSettings {
	return StoreSettings{
		Business: BusinessProfile{
			StoreName:    "Nexus Innovations Inc.",
			ContactEmail: "contact@nexus.pos",
		},
		TaxRatePercent: decimal.NewFromInt(8),
		Currency:       Currency{Symbol: "$", Code: "USD"},
	}
}

type BusinessProfileInput struct {
	StoreName    string `json:"store_name" validate:"required,max=200"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
}

type TaxRateInput struct {
	TaxRatePercent string `json:"tax_rate_percent" validate:"required"`
}

type CurrencyInput struct {
	Symbol string `json:"symbol" validate:"required,max=8"`
	Code   string `json:"code" validate:"required,len=3,alpha"`
}

type FiscalizationInput struct {
	Enabled     bool   `json:"enabled"`
	EndpointURL string `json:"endpoint_url" validate:"required_if=Enabled true,omitempty,url"`
	SyncOnSale  bool   `json:"sync_on_sale"`
}

package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"nexuspos/internal/domain"
	"nexuspos/internal/fiscal"
	"nexuspos/internal/pricing"
)

func (s *Service) GetSettings(ctx context.Context) (domain.StoreSettings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *Service) UpdateBusinessProfile(ctx context.Context, in domain.BusinessProfileInput) (domain.StoreSettings, error) {
	name := trimmed(in.StoreName)
	if name == "" {
		return domain.StoreSettings{}, invalid("store name is required")
	}
	return s.updateSettings(ctx, "business", func(settings *domain.StoreSettings) error {
		settings.Business = domain.BusinessProfile{StoreName: name, ContactEmail: trimmed(in.ContactEmail)}
		return nil
	})
}

// UpdateTaxRate takes a percentage between 0 and 100. Carts already awaiting
// confirmation keep the rate they were priced with.
func (s *Service) UpdateTaxRate(ctx context.Context, in domain.TaxRateInput) (domain.StoreSettings, error) {
	rate, err := decimal.NewFromString(trimmed(in.TaxRatePercent))
	if err != nil || !pricing.ValidTaxRate(rate) {
		return domain.StoreSettings{}, invalid("tax rate must be a percentage between 0 and 100")
	}
	return s.updateSettings(ctx, "tax_rate", func(settings *domain.StoreSettings) error {
		settings.TaxRatePercent = rate
		return nil
	})
}

func (s *Service) UpdateCurrency(ctx context.Context, in domain.CurrencyInput) (domain.StoreSettings, error) {
	symbol := trimmed(in.Symbol)
	code := strings.ToUpper(trimmed(in.Code))
	if symbol == "" || len(code) != 3 {
		return domain.StoreSettings{}, invalid("currency needs a symbol and a three letter code")
	}
	return s.updateSettings(ctx, "currency", func(settings *domain.StoreSettings) error {
		settings.Currency = domain.Currency{Symbol: symbol, Code: code}
		return nil
	})
}

// UpdateFiscalization requires a valid endpoint whenever fiscalization is enabled.
func (s *Service) UpdateFiscalization(ctx context.Context, in domain.FiscalizationInput) (domain.StoreSettings, error) {
	endpoint := trimmed(in.EndpointURL)
	if in.Enabled || endpoint != "" {
		if err := fiscal.ValidateEndpoint(endpoint); err != nil {
			return domain.StoreSettings{}, invalid("%v", err)
		}
	}
	return s.updateSettings(ctx, "fiscalization", func(settings *domain.StoreSettings) error {
		settings.Fiscalization = domain.FiscalizationSettings{
			Enabled:     in.Enabled,
			EndpointURL: endpoint,
			SyncOnSale:  in.SyncOnSale,
		}
		return nil
	})
}

func (s *Service) updateSettings(ctx context.Context, section string, apply func(*domain.StoreSettings) error) (domain.StoreSettings, error) {
	if _, err := requireRole(ctx); err != nil {
		return domain.StoreSettings{}, err
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.StoreSettings{}, err
	}
	if err := apply(&settings); err != nil {
		return domain.StoreSettings{}, err
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.StoreSettings{}, err
	}
	s.audit(ctx, "settings_update", map[string]any{"section": section})
	return settings, nil
}

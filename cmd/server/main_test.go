package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"nexuspos/internal/config"
	"nexuspos/internal/seed"
)

func validConfig() config.Config {
	return config.Config{
		AuthSecret:        "0123456789abcdef0123456789abcdef",
		AccessTokenTTL:    time.Hour,
		FiscalSyncTimeout: 10 * time.Second,
		DefaultTaxRate:    "8",
	}
}

func TestValidateConfigAcceptsStrongValues(t *testing.T) {
	assert.NoError(t, validateConfig(validConfig()))
}

func TestValidateConfigReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.AuthSecret = "short"
	cfg.DefaultTaxRate = "140"
	cfg.BootstrapAdminPassword = "tiny"
	cfg.BootstrapAdminEmail = "admin"

	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
}

func TestValidateConfigAllowsBlankTaxRate(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultTaxRate = "  "
	assert.NoError(t, validateConfig(cfg))

	catalog, err := seed.Default()
	require.NoError(t, err)
	require.NoError(t, applyDefaultTaxRate(&catalog, cfg.DefaultTaxRate))
	assert.Equal(t, "8", catalog.Settings.TaxRatePercent.String())
}

func TestApplyDefaultTaxRateOverridesCatalog(t *testing.T) {
	catalog, err := seed.Default()
	require.NoError(t, err)

	require.NoError(t, applyDefaultTaxRate(&catalog, "12.5"))
	assert.Equal(t, "12.5", catalog.Settings.TaxRatePercent.String())

	assert.Error(t, applyDefaultTaxRate(&catalog, "abc"))
	assert.Equal(t, "12.5", catalog.Settings.TaxRatePercent.String())
}

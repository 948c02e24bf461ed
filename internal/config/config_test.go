package config_test

import (
	"testing"
	"time"

	"marketplace/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/app?sslmode=disable")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_x")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	for _, k := range []string{"PORT", "PAYMENT_CURRENCY", "PAYMENT_REFERENCE_PREFIX", "TAX_RATE", "PLATFORM_COMMISSION_PERCENT", "PAYSTACK_TIMEOUT", "PAYSTACK_BASE_URL"} {
		t.Setenv(k, "")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "NGN", cfg.Currency)
	assert.Equal(t, "itha", cfg.ReferencePrefix)
	assert.Equal(t, "0.075", cfg.TaxRate.String())
	assert.Equal(t, "5", cfg.CommissionPercent.String())
	assert.Equal(t, 15*time.Second, cfg.PaystackTimeout)
	assert.Equal(t, "https://api.paystack.co", cfg.PaystackBaseURL)
	assert.Equal(t, "postgres://u:p@localhost:5432/app?sslmode=disable", cfg.PostgresDSN())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TAX_RATE", "0.1")
	t.Setenv("PLATFORM_COMMISSION_PERCENT", "7.5")
	t.Setenv("PAYSTACK_TIMEOUT", "3s")
	t.Setenv("PAYSTACK_BASE_URL", "http://localhost:9999/")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.1", cfg.TaxRate.String())
	assert.Equal(t, "7.5", cfg.CommissionPercent.String())
	assert.Equal(t, 3*time.Second, cfg.PaystackTimeout)
	assert.Equal(t, "http://localhost:9999", cfg.PaystackBaseURL)
}

func TestLoad_RequiredMissing(t *testing.T) {
	setRequired(t)
	t.Setenv("PAYSTACK_SECRET_KEY", "")

	_, err := config.Load()
	assert.EqualError(t, err, "PAYSTACK_SECRET_KEY is required")
}

func TestLoad_InvalidNumbers(t *testing.T) {
	setRequired(t)
	t.Setenv("TAX_RATE", "abc")

	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("TAX_RATE", "0.075")
	t.Setenv("PLATFORM_COMMISSION_PERCENT", "120")
	_, err = config.Load()
	assert.Error(t, err)
}

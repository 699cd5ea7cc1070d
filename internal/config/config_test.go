package config

import (
	"testing"
	"time"

	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, 3, cfg.Billing.MaxPaymentFailures)
	assert.Equal(t, "eur", cfg.Billing.DefaultCurrency)
	assert.Equal(t, 72*time.Hour, cfg.Webhook.ProcessedEventTTL)
	assert.Equal(t, "inmemory", cfg.Cache.Type)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestValidate(t *testing.T) {
	t.Run("missing secrets is fatal", func(t *testing.T) {
		cfg := GetDefaultConfig()
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
		assert.ElementsMatch(t,
			[]string{"stripe.secret_key", "stripe.webhook_secret"},
			ierr.GetReportableDetails(err)["missing"])
	})

	t.Run("missing webhook secret only", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Stripe.SecretKey = "sk_test_123"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, []string{"stripe.webhook_secret"}, ierr.GetReportableDetails(err)["missing"])
	})

	t.Run("valid", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Stripe.SecretKey = "sk_test_123"
		cfg.Stripe.WebhookSecret = "whsec_123"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad cache type", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Stripe.SecretKey = "sk_test_123"
		cfg.Stripe.WebhookSecret = "whsec_123"
		cfg.Cache.Type = "memcached"
		assert.Error(t, cfg.Validate())
	})
}

func TestNewConfigReadsEnv(t *testing.T) {
	t.Setenv("REVUO_STRIPE_SECRET_KEY", "sk_test_env")
	t.Setenv("REVUO_STRIPE_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("REVUO_BILLING_MAX_PAYMENT_FAILURES", "5")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "sk_test_env", cfg.Stripe.SecretKey)
	assert.Equal(t, "whsec_env", cfg.Stripe.WebhookSecret)
	assert.Equal(t, 5, cfg.Billing.MaxPaymentFailures)
	assert.NoError(t, cfg.Validate())
}

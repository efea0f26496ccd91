package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	unset(t, "PORT", "PAYMENT_ACCESS_TOKEN", "HTTP_CLIENT_TIMEOUT", "DB_DSN", "PAYMENT_BASE_URL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "tradepost.db", cfg.DBDSN)
	assert.Equal(t, 10*time.Second, cfg.HTTPClientTimeout)
	assert.Equal(t, "https://api.mercadopago.com", cfg.Payment.BaseURL)
	assert.False(t, cfg.Payment.Sandbox())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PAYMENT_ACCESS_TOKEN", "TEST-123")
	t.Setenv("PAYMENT_WEBHOOK_URL", "https://shop.test/payments/webhook")
	t.Setenv("MAIL_FROM", "Shop <shop@test>")
	t.Setenv("HTTP_CLIENT_TIMEOUT", "3s")
	t.Setenv("COOKIE_SECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.Payment.Sandbox())
	assert.Equal(t, "https://shop.test/payments/webhook", cfg.Payment.WebhookURL)
	assert.Equal(t, "Shop <shop@test>", cfg.Mail.From)
	assert.Equal(t, 3*time.Second, cfg.HTTPClientTimeout)
	assert.True(t, cfg.CookieSecure)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("HTTP_CLIENT_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

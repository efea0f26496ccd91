package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	applog "tradepost/internal/log"
)

const envPrefix = "tradepost"

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	DBDSN    string `envconfig:"DB_DSN" default:"tradepost.db"` // sqlite file in project root
	MediaDir string `envconfig:"MEDIA_DIR" default:"./web/media"`
	LogFile  string `envconfig:"LOG_FILE" default:"./tradepost.log"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	RedisURL string `envconfig:"REDIS_URL"`

	// set behind TLS so session and csrf cookies carry the Secure flag
	CookieSecure bool `envconfig:"COOKIE_SECURE" default:"false"`

	HTTPClientTimeout time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"10s"`

	Payment PaymentConfig
	Mail    MailConfig
}

// PaymentConfig is handed to the payment gateway client.
type PaymentConfig struct {
	AccessToken string `envconfig:"PAYMENT_ACCESS_TOKEN"`
	BaseURL     string `envconfig:"PAYMENT_BASE_URL" default:"https://api.mercadopago.com"`
	WebhookURL  string `envconfig:"PAYMENT_WEBHOOK_URL"`
	SuccessURL  string `envconfig:"PAYMENT_SUCCESS_URL"`
	FailureURL  string `envconfig:"PAYMENT_FAILURE_URL"`
	PendingURL  string `envconfig:"PAYMENT_PENDING_URL"`
}

// Sandbox reports whether the access token belongs to the provider's test environment.
func (p PaymentConfig) Sandbox() bool {
	return strings.HasPrefix(p.AccessToken, "TEST-")
}

// MailConfig is handed to the notification dispatcher.
type MailConfig struct {
	APIKey  string `envconfig:"MAIL_API_KEY"`
	BaseURL string `envconfig:"MAIL_BASE_URL" default:"https://api.resend.com"`
	From    string `envconfig:"MAIL_FROM" default:"Tradepost <orders@tradepost.test>"`
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	applog.Info(nil, "config.load", map[string]any{
		"port":            cfg.Port,
		"db_dsn":          cfg.DBDSN,
		"media_dir":       cfg.MediaDir,
		"log_file":        cfg.LogFile,
		"redis":           cfg.RedisURL != "",
		"cookie_secure":   cfg.CookieSecure,
		"payment_sandbox": cfg.Payment.Sandbox(),
		"mail_enabled":    cfg.Mail.APIKey != "",
	})
	return cfg, nil
}

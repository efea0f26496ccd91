// Package gateway talks to the hosted checkout provider: it creates payment
// preferences and re-fetches payments announced by webhooks.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"tradepost/internal/config"
	"tradepost/internal/metrics"
)

const bodyPreviewLimit = 512

var errNotConfigured = errors.New("payment provider is not configured")

type Client struct {
	cfg     config.PaymentConfig
	timeout time.Duration
	metrics *metrics.Metrics
}

func New(cfg config.PaymentConfig, timeout time.Duration, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &Client{cfg: cfg, timeout: timeout, metrics: m}
}

// PreferenceRequest describes the order a buyer is about to pay for.
type PreferenceRequest struct {
	OrderID     string
	Description string
	Amount      decimal.Decimal
	PayerEmail  string
}

// Preference is the provider's answer: where to send the buyer.
type Preference struct {
	ID        string `json:"preferenceId"`
	InitPoint string `json:"initPoint"`
	Sandbox   bool   `json:"sandbox"`
}

// PaymentInfo is the provider's view of a payment.
type PaymentInfo struct {
	ID                string
	Status            string
	ExternalReference string
}

type preferenceItem struct {
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type preferenceBody struct {
	Items []preferenceItem `json:"items"`
	Payer struct {
		Email string `json:"email,omitempty"`
	} `json:"payer"`
	BackURLs struct {
		Success string `json:"success,omitempty"`
		Failure string `json:"failure,omitempty"`
		Pending string `json:"pending,omitempty"`
	} `json:"back_urls"`
	NotificationURL   string `json:"notification_url,omitempty"`
	ExternalReference string `json:"external_reference"`
	AutoReturn        string `json:"auto_return,omitempty"`
}

// CreatePreference asks the provider for a hosted payment page. The whole
// order amount is sent as one item so the charged total matches the order.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error) {
	if err := ctx.Err(); err != nil {
		return Preference{}, err
	}
	if c.cfg.AccessToken == "" || c.cfg.BaseURL == "" {
		return Preference{}, errNotConfigured
	}
	defer c.metrics.ObserveGateway("create_preference", time.Now())

	var body preferenceBody
	body.Items = []preferenceItem{{
		Title:     req.Description,
		Quantity:  1,
		UnitPrice: req.Amount.Round(2).InexactFloat64(),
	}}
	body.Payer.Email = req.PayerEmail
	body.BackURLs.Success = c.cfg.SuccessURL
	body.BackURLs.Failure = c.cfg.FailureURL
	body.BackURLs.Pending = c.cfg.PendingURL
	body.NotificationURL = c.cfg.WebhookURL
	body.ExternalReference = req.OrderID
	sandbox := c.cfg.Sandbox()
	if !sandbox {
		body.AutoReturn = "approved"
	}

	agent := fiber.Post(c.cfg.BaseURL+"/checkout/preferences").
		Set(fiber.HeaderAuthorization, "Bearer "+c.cfg.AccessToken).
		Timeout(c.timeout).
		JSON(body)
	code, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return Preference{}, fmt.Errorf("create preference: %w", errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		return Preference{}, fmt.Errorf("create preference: status %d: %s", code, preview(raw))
	}

	var resp struct {
		ID               string `json:"id"`
		InitPoint        string `json:"init_point"`
		SandboxInitPoint string `json:"sandbox_init_point"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Preference{}, fmt.Errorf("decode preference: %w", err)
	}
	pref := Preference{ID: resp.ID, InitPoint: resp.InitPoint, Sandbox: sandbox}
	if sandbox {
		pref.InitPoint = resp.SandboxInitPoint
	}
	if pref.ID == "" || pref.InitPoint == "" {
		return Preference{}, errors.New("create preference: provider response missing id or init point")
	}
	return pref, nil
}

// GetPayment re-fetches a payment so webhook bodies are never trusted as-is.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (PaymentInfo, error) {
	if err := ctx.Err(); err != nil {
		return PaymentInfo{}, err
	}
	if c.cfg.AccessToken == "" || c.cfg.BaseURL == "" {
		return PaymentInfo{}, errNotConfigured
	}
	defer c.metrics.ObserveGateway("get_payment", time.Now())

	agent := fiber.Get(c.cfg.BaseURL+"/v1/payments/"+url.PathEscape(paymentID)).
		Set(fiber.HeaderAuthorization, "Bearer "+c.cfg.AccessToken).
		Timeout(c.timeout)
	code, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return PaymentInfo{}, fmt.Errorf("get payment: %w", errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		return PaymentInfo{}, fmt.Errorf("get payment: status %d: %s", code, preview(raw))
	}

	var resp struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		ExternalReference string      `json:"external_reference"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return PaymentInfo{}, fmt.Errorf("decode payment: %w", err)
	}
	info := PaymentInfo{ID: resp.ID.String(), Status: resp.Status, ExternalReference: resp.ExternalReference}
	if info.ID == "" {
		info.ID = paymentID
	}
	return info, nil
}

func preview(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > bodyPreviewLimit {
		s = s[:bodyPreviewLimit]
	}
	return s
}

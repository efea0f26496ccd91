// Package notify renders transactional emails and hands them to a Sender.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"

	"tradepost/internal/config"
	applog "tradepost/internal/log"
	"tradepost/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

// Email kinds, also used as metric labels.
const (
	KindBuyerReceipt    = "buyer_receipt"
	KindSellerOrder     = "seller_order"
	KindPaymentApproved = "payment_approved"
	KindSellerSale      = "seller_sale"
	KindPaymentFailed   = "payment_failed"
)

type Message struct {
	Kind    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers one rendered email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender returns the HTTP email API sender, or a log-only sender when no
// API key is configured.
func NewSender(cfg config.MailConfig, timeout time.Duration) Sender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return LogSender{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{cfg: cfg, timeout: timeout}
}

type HTTPSender struct {
	cfg     config.MailConfig
	timeout time.Duration
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := map[string]any{
		"from":    s.cfg.From,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
	}
	code, raw, errs := fiber.Post(strings.TrimRight(s.cfg.BaseURL, "/")+"/emails").
		Set(fiber.HeaderAuthorization, "Bearer "+s.cfg.APIKey).
		Timeout(s.timeout).
		JSON(body).
		Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("send email: %w", errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		return fmt.Errorf("send email: status %d: %s", code, strings.TrimSpace(string(raw)))
	}
	return nil
}

// LogSender writes emails to the application log instead of sending them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	applog.Info(nil, "email.logged", map[string]any{
		"kind":    msg.Kind,
		"to":      msg.To,
		"subject": msg.Subject,
	})
	return nil
}

type Line struct {
	Title    string
	Quantity int
	Total    string
}

type Receipt struct {
	BuyerName string
	Lines     []Line
	Subtotal  string
	Shipping  string
	Total     string
}

type SellerOrder struct {
	SellerName string
	BuyerName  string
	OrderID    string
	Title      string
	Quantity   int
	Total      string
	ShipTo     string
}

type PaymentNotice struct {
	Name     string
	OrderID  string
	Title    string
	Quantity int
	Amount   string
}

type Dispatcher struct {
	sender  Sender
	views   *html.Engine
	metrics *metrics.Metrics
}

func New(sender Sender, m *metrics.Metrics) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("notify: sender is required")
	}
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	views := html.NewFileSystem(http.FS(sub), ".html")
	if err := views.Load(); err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	return &Dispatcher{sender: sender, views: views, metrics: m}, nil
}

func (d *Dispatcher) BuyerReceipt(ctx context.Context, to string, r Receipt) error {
	return d.send(ctx, KindBuyerReceipt, to, "Your Tradepost order is confirmed", r)
}

func (d *Dispatcher) SellerNewOrder(ctx context.Context, to string, o SellerOrder) error {
	return d.send(ctx, KindSellerOrder, to, "New order: "+o.Title, o)
}

func (d *Dispatcher) PaymentApproved(ctx context.Context, to string, n PaymentNotice) error {
	return d.send(ctx, KindPaymentApproved, to, "Payment approved: "+n.Title, n)
}

func (d *Dispatcher) SellerSale(ctx context.Context, to string, n PaymentNotice) error {
	return d.send(ctx, KindSellerSale, to, "Payment received: "+n.Title, n)
}

func (d *Dispatcher) PaymentFailed(ctx context.Context, to string, n PaymentNotice) error {
	return d.send(ctx, KindPaymentFailed, to, "Payment failed: "+n.Title, n)
}

func (d *Dispatcher) send(ctx context.Context, kind, to, subject string, data any) (err error) {
	defer func() { d.metrics.Notification(kind, err) }()
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("%s: recipient is empty", kind)
	}
	var buf bytes.Buffer
	if err := d.views.Render(&buf, kind, data); err != nil {
		return fmt.Errorf("render %s: %w", kind, err)
	}
	return d.sender.Send(ctx, Message{Kind: kind, To: to, Subject: subject, HTML: buf.String()})
}

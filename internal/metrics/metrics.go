package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the marketplace counters. A nil *Metrics, or one built with a
// nil registerer, records nothing.
type Metrics struct {
	checkouts     *prometheus.CounterVec
	ordersCreated prometheus.Counter
	webhooks      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	gateway       *prometheus.HistogramVec
}

// New registers the marketplace metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradepost_checkouts_total",
		Help: "Checkout attempts by entry point and result.",
	}, []string{"source", "result"})
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tradepost_orders_created_total",
		Help: "Orders written by checkout.",
	})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradepost_payment_webhooks_total",
		Help: "Payment notifications by outcome.",
	}, []string{"outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradepost_notifications_total",
		Help: "Emails sent by kind and result.",
	}, []string{"kind", "result"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradepost_gateway_request_seconds",
		Help:    "Latency of payment provider calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	reg.MustRegister(checkouts, ordersCreated, webhooks, notifications, gateway)
	return &Metrics{
		checkouts:     checkouts,
		ordersCreated: ordersCreated,
		webhooks:      webhooks,
		notifications: notifications,
		gateway:       gateway,
	}
}

func (m *Metrics) Checkout(source string, err error) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(label(source), result(err)).Inc()
}

func (m *Metrics) OrdersCreated(n int) {
	if m == nil || m.ordersCreated == nil || n <= 0 {
		return
	}
	m.ordersCreated.Add(float64(n))
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(label(outcome)).Inc()
}

func (m *Metrics) Notification(kind string, err error) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(label(kind), result(err)).Inc()
}

// ObserveGateway records how long a provider call took.
func (m *Metrics) ObserveGateway(op string, started time.Time) {
	if m == nil || m.gateway == nil {
		return
	}
	m.gateway.WithLabelValues(label(op)).Observe(time.Since(started).Seconds())
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

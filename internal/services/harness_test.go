package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"tradepost/internal/domain"
	"tradepost/internal/gateway"
	"tradepost/internal/notify"
	"tradepost/internal/repos"
	"tradepost/internal/services"
)

type mailbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *mailbox) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailbox) kinds() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, msg := range m.sent {
		out[msg.Kind]++
	}
	return out
}

func (m *mailbox) to(kind string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, msg := range m.sent {
		if msg.Kind == kind {
			out = append(out, msg.To)
		}
	}
	return out
}

type fakeGateway struct {
	mu        sync.Mutex
	prefs     []gateway.PreferenceRequest
	payments  map[string]gateway.PaymentInfo
	createErr error
	getErr    error
	getCalls  int
}

func (g *fakeGateway) CreatePreference(_ context.Context, req gateway.PreferenceRequest) (gateway.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return gateway.Preference{}, g.createErr
	}
	g.prefs = append(g.prefs, req)
	id := "pref-" + req.OrderID
	return gateway.Preference{ID: id, InitPoint: "https://pay.test/" + id}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (gateway.PaymentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if g.getErr != nil {
		return gateway.PaymentInfo{}, g.getErr
	}
	info, ok := g.payments[id]
	if !ok {
		return gateway.PaymentInfo{}, errors.New("provider: payment not found")
	}
	return info, nil
}

type harness struct {
	db       *sqlx.DB
	listings *repos.ListingRepo
	orders   *repos.OrderRepo
	payments *repos.PaymentRepo
	users    *repos.UserRepo

	catalog  *services.CatalogService
	carts    *services.CartService
	orderSvc *services.OrderService
	paySvc   *services.PaymentService
	checkout *services.CheckoutService
	webhook  *services.WebhookService

	gw   *fakeGateway
	mail *mailbox
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		db:       db,
		listings: repos.NewListingRepo(db),
		orders:   repos.NewOrderRepo(db),
		payments: repos.NewPaymentRepo(db),
		users:    repos.NewUserRepo(db),
		gw:       &fakeGateway{payments: map[string]gateway.PaymentInfo{}},
		mail:     &mailbox{},
	}
	tx := repos.NewTxRunner(db)
	dispatcher, err := notify.New(h.mail, nil)
	require.NoError(t, err)

	h.catalog = services.NewCatalogService(repos.NewCategoryRepo(db), h.listings)
	h.carts = services.NewCartService(repos.NewCartRepo(db), h.listings)
	h.orderSvc = services.NewOrderService(h.orders, h.listings, tx)
	h.paySvc = services.NewPaymentService(h.gw, h.payments, h.orders)
	h.checkout = &services.CheckoutService{
		Tx:       tx,
		Listings: h.listings,
		Orders:   h.orders,
		Users:    h.users,
		Carts:    h.carts,
		Payments: h.paySvc,
		Notifier: dispatcher,
	}
	h.webhook = &services.WebhookService{
		Gateway:  h.gw,
		Tx:       tx,
		Payments: h.payments,
		Orders:   h.orders,
		Users:    h.users,
		Notifier: dispatcher,
	}
	return h
}

func (h *harness) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := h.users.ByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (h *harness) stock(t *testing.T, listingID string) int {
	t.Helper()
	qty, err := h.listings.Quantity(context.Background(), listingID)
	require.NoError(t, err)
	return qty
}

func (h *harness) orderCount(t *testing.T) int {
	t.Helper()
	n, err := h.orders.Count(context.Background())
	require.NoError(t, err)
	return n
}

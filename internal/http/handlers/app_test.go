package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"tradepost/internal/gateway"
	"tradepost/internal/http/handlers"
	"tradepost/internal/notify"
	"tradepost/internal/repos"
)

type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) count(kind string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.sent {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

type stubGateway struct {
	mu       sync.Mutex
	payments map[string]gateway.PaymentInfo
	getErr   error
}

func (g *stubGateway) CreatePreference(_ context.Context, req gateway.PreferenceRequest) (gateway.Preference, error) {
	id := "pref-" + req.OrderID
	return gateway.Preference{ID: id, InitPoint: "https://pay.test/checkout?pref=" + id}, nil
}

func (g *stubGateway) GetPayment(_ context.Context, id string) (gateway.PaymentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return gateway.PaymentInfo{}, g.getErr
	}
	info, ok := g.payments[id]
	if !ok {
		return gateway.PaymentInfo{}, errors.New("provider: no such payment")
	}
	return info, nil
}

type testApp struct {
	app  *fiber.App
	db   *sqlx.DB
	gw   *stubGateway
	mail *outbox
	csrf string
}

func newTestApp(t *testing.T, cfg handlers.AppConfig) *testApp {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ta := &testApp{db: db, gw: &stubGateway{payments: map[string]gateway.PaymentInfo{}}, mail: &outbox{}}
	deps, err := handlers.NewDeps(db, handlers.External{Gateway: ta.gw, Mail: ta.mail})
	require.NoError(t, err)
	ta.app = handlers.NewApp(deps, cfg)

	users := repos.NewUserRepo(db)
	for _, id := range []string{"u-alice", "u-bob", "u-sam", "u-rita", "u-admin"} {
		require.NoError(t, users.BindSession(context.Background(), "sid-"+id, id))
	}

	resp, err := ta.app.Test(httptest.NewRequest("GET", "/healthz", nil), -1)
	require.NoError(t, err)
	for _, c := range resp.Cookies() {
		if c.Name == "csrf_" {
			ta.csrf = c.Value
		}
	}
	require.NotEmpty(t, ta.csrf, "csrf cookie issued on safe requests")
	return ta
}

// do sends a request as userID ("" for anonymous), with the csrf pair on
// unsafe methods.
func (ta *testApp) do(t *testing.T, method, path, userID, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: "sid-" + userID})
	}
	if method != http.MethodGet {
		req.AddCookie(&http.Cookie{Name: "csrf_", Value: ta.csrf})
		req.Header.Set("X-CSRF-Token", ta.csrf)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

// list is do for endpoints answering a JSON array.
func (ta *testApp) list(t *testing.T, path, userID string) []map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "sid-" + userID})
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

func (ta *testApp) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, ta.db.Get(&n, `SELECT COUNT(*) FROM `+table))
	return n
}

package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/http/handlers"
)

func lines(t *testing.T, body map[string]any) []any {
	t.Helper()
	ls, ok := body["lines"].([]any)
	require.True(t, ok, "lines array in %v", body)
	return ls
}

func TestCartRoutes(t *testing.T) {
	ta := newTestApp(t, handlers.AppConfig{})

	resp, body := ta.do(t, http.MethodGet, "/cart", "u-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, lines(t, body))

	resp, body = ta.do(t, http.MethodPost, "/cart", "u-alice", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "listingId is required", body["error"])

	resp, body = ta.do(t, http.MethodPost, "/cart", "u-alice", `{"listingId":"gbc-001"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, lines(t, body), 1)

	resp, body = ta.do(t, http.MethodPost, "/cart", "u-alice", `{"listingId":"gbc-001","quantity":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	line := lines(t, body)[0].(map[string]any)
	assert.Equal(t, float64(3), line["quantity"])
	assert.Equal(t, "Game Boy Color", line["title"])

	resp, body = ta.do(t, http.MethodPost, "/cart", "u-alice", `{"listingId":"radio-001","quantity":3}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "short by 1")

	resp, _ = ta.do(t, http.MethodPost, "/cart", "u-alice", `{"listingId":"nope","quantity":1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPatch, "/cart", "u-alice", `{"listingId":"gbc-001"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "quantity is required")

	resp, body = ta.do(t, http.MethodPatch, "/cart", "u-alice", `{"listingId":"gbc-001","quantity":0}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, lines(t, body))

	resp, _ = ta.do(t, http.MethodDelete, "/cart", "u-alice", `{"listingId":"gbc-001"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodDelete, "/cart", "u-alice", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCartMergeClamps(t *testing.T) {
	ta := newTestApp(t, handlers.AppConfig{})

	resp, body := ta.do(t, http.MethodPost, "/cart/merge", "u-bob",
		`{"items":[{"listingId":"radio-001","quantity":9},{"listingId":"ghost","quantity":1},{"listingId":"gbc-001","quantity":0}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ls := lines(t, body)
	require.Len(t, ls, 1)
	line := ls[0].(map[string]any)
	assert.Equal(t, "radio-001", line["listingId"])
	assert.Equal(t, float64(2), line["quantity"], "clamped to stock")
}

func TestLargeQuantitiesFollowStock(t *testing.T) {
	ta := newTestApp(t, handlers.AppConfig{})
	resp, body := ta.do(t, http.MethodPost, "/listings", "u-bob",
		`{"categoryId":"retro-electronics","title":"Floppy disks","price":"1.50","condition":"NEW","quantity":80}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id := body["id"].(string)

	resp, body = ta.do(t, http.MethodPost, "/cart", "u-alice", `{"listingId":"`+id+`","quantity":60}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(60), lines(t, body)[0].(map[string]any)["quantity"])

	resp, body = ta.do(t, http.MethodPatch, "/cart", "u-alice", `{"listingId":"`+id+`","quantity":81}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "short by 1")

	resp, body = ta.do(t, http.MethodPost, "/checkout", "u-alice", `{"listingId":"`+id+`","quantity":75,"totalPrice":"127.50"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, float64(75), body["order"].(map[string]any)["quantity"])
}

package validate

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/apperr"
)

type addReq struct {
	ListingID string `json:"listingId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=50"`
}

func bindStatus(t *testing.T, body string) (int, string) {
	t.Helper()
	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		var req addReq
		if err := Body(c, &req); err != nil {
			typed := apperr.As(err)
			require.NotNil(t, typed)
			return c.Status(fiber.StatusBadRequest).SendString(typed.Message())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.String()
}

func TestBody(t *testing.T) {
	code, _ := bindStatus(t, `{"listingId":"gbc-001","quantity":2}`)
	assert.Equal(t, fiber.StatusNoContent, code)

	code, msg := bindStatus(t, `{"quantity":2}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "listingId is required", msg)

	code, msg = bindStatus(t, `{"listingId":"x","quantity":99}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "quantity must be at most 50", msg)

	code, msg = bindStatus(t, `{"listingId":"x","quantity":1,"admin":true}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "invalid request body", msg)

	code, _ = bindStatus(t, ``)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestStructDetails(t *testing.T) {
	err := Struct(&addReq{})
	typed := apperr.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperr.CodeValidation, typed.Code())
	assert.Equal(t, map[string]string{
		"listingId": "is required",
		"quantity":  "must be at least 1",
	}, typed.Details())
}

func TestHelpers(t *testing.T) {
	_, ok := Email("alice@tradepost.test")
	assert.True(t, ok)
	_, ok = Email("alice@")
	assert.False(t, ok)

	q, ok := Q("  game boy ")
	assert.True(t, ok)
	assert.Equal(t, "game boy", q)
	_, ok = Q("<script>")
	assert.False(t, ok)
	_, ok = Q("")
	assert.True(t, ok)

	c, ok := Condition("refurbished")
	assert.True(t, ok)
	assert.Equal(t, "REFURBISHED", c)
	_, ok = Condition("FIRST_HAND")
	assert.False(t, ok)

	_, ok = ID("gbc-001")
	assert.True(t, ok)
	_, ok = ID("../etc")
	assert.False(t, ok)

	assert.Equal(t, 1, Page("abc"))
	assert.Equal(t, 3, Page("3"))

	assert.True(t, Password("Passw0rd!"))
	assert.False(t, Password("password"))
}

package handlers

import (
	"bytes"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"tradepost/internal/apperr"
	applog "tradepost/internal/log"
	"tradepost/internal/services"
)

type PaymentHandler struct {
	Payments *services.PaymentService
	Orders   *services.OrderService
	Webhooks *services.WebhookService
}

// webhookBody is the provider's notification shape. data.id arrives as a
// number or a string depending on the provider version.
type webhookBody struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// ByOrder returns the payment row of one of the caller's orders.
func (h *PaymentHandler) ByOrder(c *fiber.Ctx) error {
	orderID := c.Params("orderId")
	o, err := h.Orders.FindByID(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	if o.BuyerID != currentUser(c).ID {
		applog.Security(c, "access.denied.payment", map[string]any{"order_id": orderID})
		return respondError(c, apperr.Forbidden("not your order"))
	}
	p, err := h.Payments.GetByOrderID(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

// ByPreference is the return-page lookup after the hosted checkout.
func (h *PaymentHandler) ByPreference(c *fiber.Ctx) error {
	prefID := c.Params("preferenceId")
	d, err := h.Payments.GetWithDetails(c.UserContext(), prefID)
	if err != nil {
		return respondError(c, err)
	}
	if d.BuyerID != currentUser(c).ID {
		applog.Security(c, "access.denied.payment", map[string]any{"preference_id": prefID})
		return respondError(c, apperr.Forbidden("not your payment"))
	}
	return c.JSON(d)
}

// Webhook receives provider notifications. Only malformed requests get a
// 4xx; provider or database failures answer 500 so the provider retries.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	n := parseNotification(c)
	outcome, err := h.Webhooks.Handle(c.UserContext(), n)
	if err != nil {
		if apperr.Is(err, apperr.CodeValidation) {
			applog.Security(c, "webhook.rejected", map[string]any{"type": n.Type, "error": err.Error()})
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"received": true, "outcome": outcome})
}

// parseNotification reads type and id from the JSON body, falling back to
// the query string (?type=payment&data.id=... or ?topic=payment&id=...).
func parseNotification(c *fiber.Ctx) services.PaymentNotification {
	var body webhookBody
	if raw := c.Body(); len(raw) > 0 {
		if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&body); err != nil {
			applog.Security(c, "webhook.bad_body", map[string]any{"error": err.Error()})
		}
	}
	n := services.PaymentNotification{Type: body.Type, PaymentID: body.Data.ID.String()}
	if n.Type == "" {
		n.Type = body.Topic
	}
	if n.Type == "" {
		n.Type = c.Query("type", c.Query("topic"))
	}
	if n.PaymentID == "" {
		n.PaymentID = c.Query("data.id", c.Query("id"))
	}
	return n
}

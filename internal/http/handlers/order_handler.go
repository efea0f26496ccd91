package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"tradepost/internal/apperr"
	applog "tradepost/internal/log"
	"tradepost/internal/services"
	"tradepost/internal/validate"
)

type OrderHandler struct {
	Checkout *services.CheckoutService
	Orders   *services.OrderService
	Payments *services.PaymentService
}

type checkoutReq struct {
	ListingID  string           `json:"listingId" validate:"required,max=64"`
	Quantity   int              `json:"quantity" validate:"required,gte=1"`
	TotalPrice *decimal.Decimal `json:"totalPrice" validate:"required"`
}

type statusReq struct {
	Status       string `json:"status" validate:"required,max=32"`
	TrackingCode string `json:"tracking_code" validate:"max=64"`
}

type trackingReq struct {
	TrackingCode string `json:"tracking_code" validate:"required,max=64"`
}

type paymentView struct {
	PreferenceID string `json:"preferenceId"`
	InitPoint    string `json:"initPoint"`
	Sandbox      bool   `json:"sandbox"`
	Status       string `json:"status"`
	Amount       string `json:"amount"`
}

func linkView(l services.PaymentLink) paymentView {
	return paymentView{
		PreferenceID: l.PreferenceID,
		InitPoint:    l.InitPoint,
		Sandbox:      l.Sandbox,
		Status:       l.Payment.Status,
		Amount:       l.Payment.Amount.StringFixed(2),
	}
}

// CheckoutCart turns the whole cart into one order per line.
func (h *OrderHandler) CheckoutCart(c *fiber.Ctx) error {
	res, err := h.Checkout.CheckoutCart(c.UserContext(), currentUser(c))
	if err != nil {
		applog.Security(c, "checkout.cart.fail", map[string]any{"error": err.Error()})
		return respondError(c, err)
	}
	applog.Audit(c, "checkout.cart", map[string]any{"orders": len(res.Orders), "total": res.Summary.Total.StringFixed(2)})
	return c.Status(fiber.StatusCreated).JSON(res)
}

// CheckoutItem is the buy-now path: one listing, then straight to payment.
func (h *OrderHandler) CheckoutItem(c *fiber.Ctx) error {
	var req checkoutReq
	if err := validate.Body(c, &req); err != nil {
		return respondError(c, err)
	}
	res, err := h.Checkout.CheckoutItem(c.UserContext(), currentUser(c), req.ListingID, req.Quantity, req.TotalPrice)
	if err != nil {
		return respondError(c, err)
	}
	applog.Audit(c, "checkout.item", map[string]any{"order_id": res.Order.ID, "total": res.Order.TotalPrice.StringFixed(2)})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order":   res.Order,
		"summary": res.Summary,
		"payment": linkView(res.Payment),
	})
}

func (h *OrderHandler) ListMine(c *fiber.Ctx) error {
	orders, err := h.Orders.FindAllByBuyer(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(orders)
}

func (h *OrderHandler) ListSelling(c *fiber.Ctx) error {
	orders, err := h.Orders.FindAllBySellerListings(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(orders)
}

// Get shows an order to its buyer, its seller or an admin.
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	u := currentUser(c)
	o, err := h.Orders.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if o.BuyerID != u.ID && o.SellerID != u.ID && !u.IsAdmin() {
		applog.Security(c, "access.denied.order", map[string]any{"order_id": o.ID})
		return respondError(c, apperr.NotFound("order not found"))
	}
	return c.JSON(o)
}

// UpdateStatus handles buyer and seller status requests.
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	var req statusReq
	if err := validate.Body(c, &req); err != nil {
		return respondError(c, err)
	}
	id := c.Params("id")
	o, err := h.Orders.RequestTransition(c.UserContext(), currentUser(c), id, req.Status, req.TrackingCode)
	if err != nil {
		if apperr.Is(err, apperr.CodeForbidden) {
			applog.Security(c, "access.denied.order", map[string]any{"order_id": id, "status": req.Status})
		}
		return respondError(c, err)
	}
	applog.Audit(c, "order.status", map[string]any{"order_id": id, "status": o.Status})
	return c.JSON(o)
}

// Cancel is the buyer's cancel; stock goes back to the listing.
func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	id := c.Params("id")
	o, err := h.Orders.CancelByBuyer(c.UserContext(), currentUser(c), id)
	if err != nil {
		if apperr.Is(err, apperr.CodeForbidden) {
			applog.Security(c, "access.denied.order", map[string]any{"order_id": id, "op": "cancel"})
		}
		return respondError(c, err)
	}
	return c.JSON(o)
}

func (h *OrderHandler) SetTracking(c *fiber.Ctx) error {
	var req trackingReq
	if err := validate.Body(c, &req); err != nil {
		return respondError(c, err)
	}
	id := c.Params("id")
	o, err := h.Orders.FindByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if o.SellerID != currentUser(c).ID {
		applog.Security(c, "access.denied.order", map[string]any{"order_id": id, "op": "tracking"})
		return respondError(c, apperr.Forbidden("only the seller can set tracking"))
	}
	o, err = h.Orders.SetTrackingCode(c.UserContext(), id, req.TrackingCode)
	if err != nil {
		return respondError(c, err)
	}
	applog.Audit(c, "order.tracking", map[string]any{"order_id": id})
	return c.JSON(o)
}

// Pay requests a payment link for an existing order, which is how orders
// created from the cart get paid.
func (h *OrderHandler) Pay(c *fiber.Ctx) error {
	link, err := h.Payments.PayOrder(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(linkView(link))
}

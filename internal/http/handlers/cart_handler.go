package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
	"tradepost/internal/services"
	"tradepost/internal/validate"
)

type CartHandler struct {
	Cart *services.CartService
}

type addLineReq struct {
	ListingID   string           `json:"listingId" validate:"required,max=64"`
	Quantity    *int             `json:"quantity" validate:"omitempty,gte=1"`
	PriceLocked *decimal.Decimal `json:"priceLocked"`
}

type setLineReq struct {
	ListingID string `json:"listingId" validate:"required,max=64"`
	Quantity  *int   `json:"quantity" validate:"required"`
}

type removeLineReq struct {
	ListingID string `json:"listingId" validate:"required,max=64"`
}

type mergeReq struct {
	Items []services.MergeItem `json:"items" validate:"max=100"`
}

// View returns the cart with its lines. A user who never had a cart gets
// an empty one.
func (h *CartHandler) View(c *fiber.Ctx) error {
	u := currentUser(c)
	cart, err := h.Cart.GetWithLines(c.UserContext(), u.ID)
	if apperr.Is(err, apperr.CodeNotFound) {
		cart, err = h.Cart.GetOrCreate(c.UserContext(), u.ID)
		cart.Lines = []domain.CartLine{}
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cart)
}

func (h *CartHandler) Add(c *fiber.Ctx) error {
	var req addLineReq
	if err := validate.Body(c, &req); err != nil {
		return respondError(c, err)
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if req.PriceLocked != nil && !req.PriceLocked.IsPositive() {
		return respondError(c, apperr.Validation("priceLocked must be greater than zero"))
	}
	cart, err := h.Cart.AddLine(c.UserContext(), currentUser(c).ID, req.ListingID, qty, req.PriceLocked)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cart)
}

// Update sets a line's quantity; zero removes the line.
func (h *CartHandler) Update(c *fiber.Ctx) error {
	var req setLineReq
	if err := validate.Body(c, &req); err != nil {
		return respondError(c, err)
	}
	cart, err := h.Cart.SetLineQuantity(c.UserContext(), currentUser(c).ID, req.ListingID, *req.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cart)
}

func (h *CartHandler) Remove(c *fiber.Ctx) error {
	var req removeLineReq
	if err := validate.Body(c, &req); err != nil {
		return respondError(c, err)
	}
	cart, err := h.Cart.RemoveLine(c.UserContext(), currentUser(c).ID, req.ListingID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cart)
}

// Merge folds a client-side (pre-login) cart into the stored one.
func (h *CartHandler) Merge(c *fiber.Ctx) error {
	var req mergeReq
	if err := validate.Body(c, &req); err != nil {
		return respondError(c, err)
	}
	cart, err := h.Cart.MergeLines(c.UserContext(), currentUser(c).ID, req.Items)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(cart)
}

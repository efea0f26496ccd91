package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tradepost/internal/apperr"
	applog "tradepost/internal/log"
	"tradepost/internal/services"
	"tradepost/internal/validate"
)

type InventoryHandler struct {
	Catalog *services.CatalogService
}

type stockReq struct {
	Quantity *int `json:"quantity" validate:"required,gte=0,lte=100000"`
}

// Check answers IN_STOCK / LOW_STOCK / OUT_OF_STOCK for one listing.
func (h *InventoryHandler) Check(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "listing"})
		return respondError(c, apperr.Validation("invalid listing id"))
	}
	avail, err := h.Catalog.CheckAvailability(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(avail)
}

// SetStock is the admin restock.
func (h *InventoryHandler) SetStock(c *fiber.Ctx) error {
	var req stockReq
	if err := validate.Body(c, &req); err != nil {
		return respondError(c, err)
	}
	id := c.Params("id")
	l, err := h.Catalog.SetStock(c.UserContext(), id, *req.Quantity)
	if err != nil {
		applog.Error(c, "admin.stock.save.fail", err, map[string]any{"listing_id": id})
		return respondError(c, err)
	}
	applog.Audit(c, "admin.stock.save", map[string]any{"listing_id": id, "qty": *req.Quantity})
	return c.JSON(l)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tradepost/internal/apperr"
	"tradepost/internal/log"
	"tradepost/internal/services"
	"tradepost/internal/validate"
)

type ListingHandler struct {
	Catalog *services.CatalogService
}

const searchPageSize = 12

// Search lists active listings, newest first.
func (h *ListingHandler) Search(c *fiber.Ctx) error {
	q, ok := validate.Q(c.Query("q"))
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "q"})
		return respondError(c, apperr.Validation("enter a valid keyword (letters and numbers only)"))
	}
	category := c.Query("category")
	if category != "" {
		if _, ok := validate.ID(category); !ok {
			log.Security(c, "validation.fail", map[string]any{"field": "category"})
			return respondError(c, apperr.Validation("invalid category"))
		}
	}
	condition, ok := validate.Condition(c.Query("condition"))
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "condition"})
		return respondError(c, apperr.Validation("invalid condition filter"))
	}
	page := validate.Page(c.Query("page"))

	listings, err := h.Catalog.Search(c.UserContext(), q, category, condition, page, searchPageSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"page": page, "count": len(listings), "listings": listings})
}

func (h *ListingHandler) Get(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return respondError(c, apperr.NotFound("listing not found"))
	}
	l, err := h.Catalog.GetListing(c.UserContext(), currentUser(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(l)
}

func (h *ListingHandler) Mine(c *fiber.Ctx) error {
	listings, err := h.Catalog.ListMine(c.UserContext(), currentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(listings)
}

func (h *ListingHandler) Create(c *fiber.Ctx) error {
	var in services.ListingInput
	if err := validate.Body(c, &in); err != nil {
		return respondError(c, err)
	}
	l, err := h.Catalog.CreateListing(c.UserContext(), currentUser(c), in)
	if err != nil {
		return respondError(c, err)
	}
	log.Audit(c, "listing.create", map[string]any{"listing_id": l.ID})
	return c.Status(fiber.StatusCreated).JSON(l)
}

func (h *ListingHandler) Update(c *fiber.Ctx) error {
	var p services.ListingPatch
	if err := validate.Body(c, &p); err != nil {
		return respondError(c, err)
	}
	id := c.Params("id")
	l, err := h.Catalog.UpdateListing(c.UserContext(), currentUser(c), id, p)
	if err != nil {
		if apperr.Is(err, apperr.CodeForbidden) {
			log.Security(c, "access.denied.listing", map[string]any{"listing_id": id})
		}
		return respondError(c, err)
	}
	log.Audit(c, "listing.update", map[string]any{"listing_id": id})
	return c.JSON(l)
}

func (h *ListingHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.Catalog.DeleteListing(c.UserContext(), currentUser(c), id); err != nil {
		if apperr.Is(err, apperr.CodeForbidden) {
			log.Security(c, "access.denied.listing", map[string]any{"listing_id": id})
		}
		return respondError(c, err)
	}
	log.Audit(c, "listing.delete", map[string]any{"listing_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}

package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	applog "tradepost/internal/log"
	"tradepost/internal/repos"
	"tradepost/internal/services"
	"tradepost/internal/validate"
)

type AdminHandler struct {
	Orders *services.OrderService
	Users  *repos.UserRepo
}

type overrideReq struct {
	Status string `json:"status" validate:"required,max=32"`
}

// ListOrders lists the latest orders across all buyers. ?limit= caps at 500.
func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit < 1 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	ords, err := h.Orders.ListLatest(c.UserContext(), limit)
	if err != nil {
		applog.Error(c, "admin.orders.list.fail", err, nil)
		return respondError(c, err)
	}
	return c.JSON(ords)
}

// PATCH /admin/orders/:id/status
func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	var req overrideReq
	if err := validate.Body(c, &req); err != nil {
		return respondError(c, err)
	}
	id := c.Params("id")
	o, err := h.Orders.Override(c.UserContext(), id, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	applog.Audit(c, "admin.orders.update", map[string]any{"order_id": id, "status": o.Status})
	return c.JSON(o)
}

// GET /admin/users lists customer accounts.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.Users.ListCustomers(c.UserContext())
	if err != nil {
		applog.Error(c, "admin.users.list.fail", err, nil)
		return respondError(c, err)
	}
	return c.JSON(users)
}

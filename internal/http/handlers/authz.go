package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tradepost/internal/apperr"
	applog "tradepost/internal/log"
	"tradepost/internal/services"
)

const sessionCookie = "sid"

// AttachUser resolves the sid cookie to a user, when there is one, and
// stores it in Locals for later handlers and the request log.
func AttachUser(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sid := c.Cookies(sessionCookie); sid != "" {
			if u, err := auth.CurrentUser(c.UserContext(), sid); err == nil && u != nil {
				c.Locals("user", u)
			}
		}
		return c.Next()
	}
}

// RequireUser enforces that a user is logged in; otherwise 401.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentUser(c) == nil {
			return respondError(c, apperr.New(apperr.CodeUnauthorized, "login required"))
		}
		return c.Next()
	}
}

func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := currentUser(c)
		if u == nil {
			return respondError(c, apperr.New(apperr.CodeUnauthorized, "login required"))
		}
		if !u.IsAdmin() {
			applog.Security(c, "access.denied.admin", nil)
			return respondError(c, apperr.Forbidden("access denied"))
		}
		return c.Next()
	}
}

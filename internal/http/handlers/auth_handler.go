package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"tradepost/internal/apperr"
	"tradepost/internal/log"
	"tradepost/internal/services"
	"tradepost/internal/validate"
)

type AuthHandler struct {
	Auth *services.AuthService
	// Secure marks the session cookie Secure; set behind TLS.
	Secure bool
}

type loginReq struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

var errBadLogin = apperr.New(apperr.CodeUnauthorized, "invalid email or password")

func (h *AuthHandler) setSID(c *fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   h.Secure,
		Expires:  expires,
	})
}

// Login checks credentials and binds a fresh session id to the user. The
// id is rotated on every login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginReq
	if err := validate.Body(c, &req); err != nil {
		return respondError(c, err)
	}
	email, ok := validate.Email(req.Email)
	if !ok {
		log.Security(c, "auth.login.fail", map[string]any{"reason": "bad_format"})
		return respondError(c, errBadLogin)
	}
	if !validate.Password(req.Password) {
		log.Security(c, "auth.login.fail", map[string]any{"email": email, "reason": "bad_password_format"})
		return respondError(c, errBadLogin)
	}

	sid := uuid.NewString()
	u, err := h.Auth.Login(c.UserContext(), sid, email, req.Password)
	if err == services.ErrBadCreds {
		log.Security(c, "auth.login.fail", map[string]any{"email": email})
		return respondError(c, errBadLogin)
	}
	if err != nil {
		return respondError(c, err)
	}
	if old := c.Cookies(sessionCookie); old != "" {
		_ = h.Auth.Logout(c.UserContext(), old)
	}
	h.setSID(c, sid, time.Time{})
	c.Locals("user", u)
	log.Audit(c, "auth.login.success", map[string]any{"email": email})
	return c.JSON(u)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if sid := c.Cookies(sessionCookie); sid != "" {
		if err := h.Auth.Logout(c.UserContext(), sid); err != nil {
			return respondError(c, err)
		}
	}
	h.setSID(c, "", time.Now().Add(-time.Hour))
	log.Audit(c, "auth.logout", nil)
	return c.SendStatus(fiber.StatusNoContent)
}

// Me returns the logged-in user.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

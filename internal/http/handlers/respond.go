package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tradepost/internal/apperr"
	"tradepost/internal/domain"
	applog "tradepost/internal/log"
)

// respondError maps typed errors to their status and message. Anything
// untyped is a 500 with a generic body; the cause only goes to the log.
func respondError(c *fiber.Ctx, err error) error {
	typed := apperr.As(err)
	if typed == nil {
		applog.Error(c, "request.failed", err, nil)
		typed = apperr.Wrap(apperr.CodeInternal, err, "internal server error")
	}
	meta := apperr.MetadataFor(typed.Code())
	msg := meta.PublicMessage
	if meta.ExposeMessage && typed.Message() != "" {
		msg = typed.Message()
	}
	if meta.HTTPStatus >= fiber.StatusInternalServerError && apperr.As(err) != nil {
		applog.Error(c, "request.failed", err, nil)
	}

	body := fiber.Map{"error": msg, "code": string(typed.Code())}
	if d := typed.Details(); d != nil && typed.Code() == apperr.CodeValidation {
		body["details"] = d
	}
	return c.Status(meta.HTTPStatus).JSON(body)
}

// ErrorHandler is the fiber-level fallback for errors that escape handlers,
// including fiber's own (404 route miss, 413 body too large).
func ErrorHandler(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		if fe.Code >= fiber.StatusInternalServerError {
			applog.Error(c, "server.error", err, nil)
			return c.Status(fe.Code).JSON(fiber.Map{"error": "internal server error", "code": string(apperr.CodeInternal)})
		}
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return respondError(c, err)
}

func currentUser(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals("user").(*domain.User)
	return u
}

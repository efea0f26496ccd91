package handlers

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "tradepost/internal/log"
)

const (
	webhookPath = "/payments/webhook"
	csrfCookie  = "csrf_"
	csrfHeader  = "X-CSRF-Token"
)

// AppConfig tunes the fiber app. Zero limits take the defaults below.
type AppConfig struct {
	MediaDir      string
	Gatherer      prometheus.Gatherer
	SecureCookies bool
	AccessLog     bool

	RateLimit         int // requests per minute per IP
	AvailabilityLimit int // availability lookups per 30s per IP
	LoginLimit        int // login attempts per 10 minutes per IP
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func skipLimiter(c *fiber.Ctx) bool {
	p := c.Path()
	return strings.HasPrefix(p, "/media/") || p == "/metrics" || p == "/healthz" || p == webhookPath
}

// NewApp builds the fiber app with middleware and every route.
func NewApp(d *Deps, cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler,
		BodyLimit:    1 << 20, // 1 MiB
	})
	d.Auth.Secure = cfg.SecureCookies

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(helmet.New())
	app.Use(AttachUser(d.AuthService))
	app.Use(limiter.New(limiter.Config{
		Max:        orDefault(cfg.RateLimit, 120),
		Expiration: time.Minute,
		Next:       skipLimiter,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.global.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}))
	// The provider cannot carry our CSRF cookie, so the webhook is exempt.
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "header:" + csrfHeader,
		CookieName:     csrfCookie,
		CookieSameSite: "Lax",
		CookieSecure:   cfg.SecureCookies,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == webhookPath
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", map[string]any{"error": err.Error()})
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "security check failed, refresh and retry"})
		},
	}))

	// ---------- Ops ----------
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.MediaDir != "" {
		app.Get("/media/*", serveMedia(cfg.MediaDir))
	}

	must := RequireUser()

	// Auth (login throttled)
	app.Post("/login", limiter.New(limiter.Config{
		Max:        orDefault(cfg.LoginLimit, 5),
		Expiration: 10 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|login"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many attempts, try again later"})
		},
	}), d.Auth.Login)
	app.Post("/logout", d.Auth.Logout)
	app.Get("/me", must, d.Auth.Me)

	// Catalog
	app.Get("/categories", d.Categories.List)
	app.Get("/listings", d.Listings.Search)
	app.Get("/listings/mine", must, d.Listings.Mine)
	app.Get("/listings/:id", d.Listings.Get)
	app.Post("/listings", must, d.Listings.Create)
	app.Patch("/listings/:id", must, d.Listings.Update)
	app.Delete("/listings/:id", must, d.Listings.Delete)

	api := app.Group("/api/v1")
	availLimiter := limiter.New(limiter.Config{
		Max:        orDefault(cfg.AvailabilityLimit, 15),
		Expiration: 30 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|avail"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.availability.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	})
	api.Get("/listings/:id/availability", availLimiter, d.Inventory.Check)

	// Cart
	app.Get("/cart", must, d.Cart.View)
	app.Post("/cart", must, d.Cart.Add)
	app.Patch("/cart", must, d.Cart.Update)
	app.Delete("/cart", must, d.Cart.Remove)
	app.Post("/cart/merge", must, d.Cart.Merge)

	// Checkout & orders
	app.Post("/orders/checkout-cart", must, d.Orders.CheckoutCart)
	app.Post("/checkout", must, d.Orders.CheckoutItem)
	app.Get("/orders", must, d.Orders.ListMine)
	app.Get("/orders/seller", must, d.Orders.ListSelling)
	app.Get("/orders/:id", must, d.Orders.Get)
	app.Patch("/orders/:id", must, d.Orders.UpdateStatus)
	app.Delete("/orders/:id", must, d.Orders.Cancel)
	app.Patch("/orders/:id/tracking", must, d.Orders.SetTracking)
	app.Post("/orders/:id/pay", must, d.Orders.Pay)

	// Payments
	app.Post(webhookPath, d.Payments.Webhook)
	app.Get("/payments/preference/:preferenceId", must, d.Payments.ByPreference)
	app.Get("/payments/:orderId", must, d.Payments.ByOrder)

	// Admin
	admin := app.Group("/admin", RequireAdmin())
	admin.Get("/orders", d.Admin.ListOrders)
	admin.Patch("/orders/:id/status", d.Admin.UpdateOrderStatus)
	admin.Get("/users", d.Admin.ListUsers)
	admin.Put("/listings/:id/stock", d.Inventory.SetStock)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	})
	return app
}

// serveMedia serves listing images from dir, refusing traversal.
func serveMedia(dir string) fiber.Handler {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return func(c *fiber.Ctx) error {
		path := c.Params("*")
		raw := strings.ToLower(path)
		if strings.Contains(raw, "..") || strings.Contains(raw, "%2e") || strings.Contains(raw, "\x00") {
			applog.Security(c, "media.traversal.block", map[string]any{"path": path})
			return c.SendStatus(fiber.StatusNotFound)
		}
		clean := filepath.Clean(path)
		if clean == "." || filepath.IsAbs(clean) {
			applog.Security(c, "media.traversal.block", map[string]any{"path": path})
			return c.SendStatus(fiber.StatusNotFound)
		}
		return c.SendFile(filepath.Join(dir, clean), true)
	}
}

package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/apps"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	Health     *handlers.HealthHandler
	Webhook    *handlers.WebhookHandler
	Moderation *handlers.ModerationHandler
	Catalog    *handlers.CatalogHandler
	Promo      *handlers.PromoHandler
	Checkout   *handlers.CheckoutHandler
}

func Setup(app *fiber.App, cfg *config.Config, db *gorm.DB, h Handlers, plugins []apps.Plugin) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	// Health (no market required)
	api.Get("/health", h.Health.Check)

	// Catalog is public within a market
	api.Get("/packages", h.Catalog.ListPackages)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)

	// Protected routes take the JWT middleware per route so public routes
	// above stay unaffected.
	jwt := middleware.JWTProtected(cfg)
	api.Post("/auth/logout", jwt, h.Auth.Logout)
	api.Get("/auth/me", jwt, h.Auth.Me)
	api.Delete("/auth/account", jwt, h.Auth.DeleteAccount)

	// Entitlement, promo and checkout
	api.Get("/entitlements", jwt, h.Checkout.Entitlement)
	api.Post("/promo/validate", jwt, h.Promo.Validate)
	api.Post("/promo/apply", jwt, h.Promo.Apply)
	api.Delete("/promo/:attempt_id", jwt, h.Promo.Remove)
	api.Post("/checkout", jwt, h.Checkout.Checkout)
	api.Post("/payments/callback", jwt, h.Checkout.PaymentCallback)
	api.Get("/submissions", jwt, h.Checkout.ListSubmissions)
	api.Post("/submissions/:id/renew", jwt, h.Checkout.RenewAd)
	api.Get("/subscriptions/me", jwt, h.Checkout.MySubscription)

	// Moderation (user endpoints)
	api.Post("/reports", jwt, h.Moderation.CreateReport)

	// Admin panel (protected + admin required)
	admin := api.Group("/admin", jwt, middleware.AdminRequired(cfg))
	admin.Get("/moderation/reports", h.Moderation.ListReports)
	admin.Put("/moderation/reports/:id", h.Moderation.ActionReport)
	admin.Get("/moderation/submissions", h.Moderation.ReviewQueue)
	admin.Put("/moderation/submissions/:id", h.Moderation.ReviewSubmission)
	admin.Post("/packages", h.Catalog.CreatePackage)
	admin.Delete("/packages/:id", h.Catalog.DeactivatePackage)
	admin.Get("/promo-codes", h.Promo.List)
	admin.Post("/promo-codes", h.Promo.Create)

	// Webhooks: per-market via :market_id path param, no JWT
	webhooks := api.Group("/webhooks")
	webhooks.Post("/paystack/:market_id", h.Webhook.HandlePaystack)

	// Feature plugins live under /api/p behind the JWT middleware
	protected := api.Group("/p", jwt)
	for _, p := range plugins {
		p.RegisterRoutes(protected, db, cfg)
		if ap, ok := p.(apps.AdminPlugin); ok {
			ap.RegisterAdminRoutes(admin, db, cfg)
		}
	}
}

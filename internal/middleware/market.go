package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

// Paths that don't require market identification.
var marketSkipPaths = []string{
	"/api/health",
	"/api/webhooks/", // webhooks carry :market_id in the path
}

// MarketMiddleware resolves market_id from the X-Market-ID header or the
// market_id query param.
func MarketMiddleware(registry *tenant.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, skip := range marketSkipPaths {
			if strings.HasPrefix(path, skip) {
				return c.Next()
			}
		}

		marketID := c.Get("X-Market-ID")
		if marketID == "" {
			marketID = c.Query("market_id")
		}
		if marketID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "X-Market-ID header is required",
			})
		}
		if !registry.Exists(marketID) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unknown market: " + marketID,
			})
		}

		c.Locals("market_id", marketID)
		return c.Next()
	}
}

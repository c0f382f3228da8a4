package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	registry *tenant.Registry
	events   string
}

// NewHealthHandler reports eventsMode (memory, amqp or polling) as-is.
func NewHealthHandler(registry *tenant.Registry, eventsMode string) *HealthHandler {
	return &HealthHandler{registry: registry, events: eventsMode}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := database.Ping(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	return c.JSON(dto.HealthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		DB:          dbStatus,
		MarketCount: len(h.registry.All()),
		Events:      h.events,
	})
}

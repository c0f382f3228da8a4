// Package support is the buyer/vendor help desk: tickets, replies from
// support agents and a live message stream.
package support

import (
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type FeatureFlags interface {
	HasFeature(marketID, feature string) bool
}

type Plugin struct {
	broker   events.Broker
	screener services.ContentScreener
	features FeatureFlags
}

func New(broker events.Broker, screener services.ContentScreener, features FeatureFlags) *Plugin {
	return &Plugin{broker: broker, screener: screener, features: features}
}

func (p *Plugin) ID() string { return "support" }

func (p *Plugin) Models() []interface{} {
	return []interface{}{
		&Ticket{},
		&Message{},
	}
}

func (p *Plugin) RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	service := NewSupportService(NewRepository(db), p.broker, p.screener)
	h := NewSupportHandler(service)

	support := router.Group("/support", p.requireFeature)
	support.Post("/tickets", h.OpenTicket)
	support.Get("/tickets", h.ListTickets)
	support.Get("/tickets/:id", h.GetTicket)
	support.Get("/tickets/:id/messages", h.Messages)
	support.Post("/tickets/:id/messages", h.PostMessage)
	support.Post("/tickets/:id/close", h.CloseTicket)
	support.Get("/tickets/:id/stream", h.Stream)
}

func (p *Plugin) requireFeature(c *fiber.Ctx) error {
	if !p.features.HasFeature(tenant.GetMarketID(c), tenant.FeatureSupportChat) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Support chat is not available in this market",
		})
	}
	return c.Next()
}

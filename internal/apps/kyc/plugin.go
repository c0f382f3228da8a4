// Package kyc verifies vendors: identity documents go to object storage
// and an admin approves or rejects them.
package kyc

import (
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type Plugin struct {
	docs    DocumentStore
	vendors VendorMarker
}

func New(docs DocumentStore, vendors VendorMarker) *Plugin {
	return &Plugin{docs: docs, vendors: vendors}
}

func (p *Plugin) ID() string { return "kyc" }

func (p *Plugin) Models() []interface{} {
	return []interface{}{
		&Verification{},
	}
}

func (p *Plugin) handler(db *gorm.DB) *KYCHandler {
	return NewKYCHandler(NewKYCService(NewRepository(db), p.docs, p.vendors))
}

func (p *Plugin) RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	h := p.handler(db)
	router.Post("/kyc", h.Submit)
	router.Get("/kyc/status", h.Status)
}

func (p *Plugin) RegisterAdminRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	h := p.handler(db)
	router.Get("/kyc/verifications", h.List)
	router.Get("/kyc/verifications/:id/document", h.Document)
	router.Put("/kyc/verifications/:id", h.Review)
}

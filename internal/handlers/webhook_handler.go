package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/payment"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

// WebhookProcessor settles gateway events for a market.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, marketID string, event *dto.PaystackWebhook) error
}

type WebhookHandler struct {
	processor WebhookProcessor
	registry  *tenant.Registry
	secretKey string
}

func NewWebhookHandler(processor WebhookProcessor, registry *tenant.Registry, secretKey string) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		registry:  registry,
		secretKey: secretKey,
	}
}

// HandlePaystack routes webhooks by :market_id and authenticates them with
// the x-paystack-signature header.
func (h *WebhookHandler) HandlePaystack(c *fiber.Ctx) error {
	marketID := c.Params("market_id")
	if marketID == "" || !h.registry.Exists(marketID) {
		return fail(c, fiber.StatusNotFound, "Unknown market")
	}
	if h.secretKey == "" {
		return fail(c, fiber.StatusNotFound, "Payments not configured")
	}

	body := c.Body()
	if !payment.VerifySignature(h.secretKey, body, c.Get("x-paystack-signature")) {
		slog.Warn("webhook signature mismatch", "market_id", marketID, "ip", c.IP())
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var event dto.PaystackWebhook
	if err := json.Unmarshal(body, &event); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid webhook payload")
	}

	if err := h.processor.HandleWebhook(c.UserContext(), marketID, &event); err != nil {
		slog.Error("webhook processing failed", "market_id", marketID, "event_type", event.Event, "error", err)
		return fail(c, fiber.StatusInternalServerError, "Failed to process webhook event")
	}

	slog.Info("webhook processed", "market_id", marketID, "event_type", event.Event)
	return c.JSON(fiber.Map{"received": true})
}

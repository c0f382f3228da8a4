package support

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const heartbeatInterval = 15 * time.Second

type SupportHandler struct {
	service *SupportService
}

func NewSupportHandler(service *SupportService) *SupportHandler {
	return &SupportHandler{service: service}
}

type openTicketRequest struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required,max=4000"`
}

type postMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

func viewer(c *fiber.Ctx) (Viewer, bool) {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return Viewer{}, false
	}
	return Viewer{UserID: userID, Role: tenant.GetRole(c)}, true
}

// bind returns the 400 response for a malformed or invalid body.
func bind(c *fiber.Ctx, req interface{}) *dto.ErrorResponse {
	if err := c.BodyParser(req); err != nil {
		return &dto.ErrorResponse{Error: true, Message: "Invalid request body"}
	}
	if err := dto.Validate(req); err != nil {
		resp := &dto.ErrorResponse{Error: true, Message: "Validation failed"}
		var ve *dto.ValidationError
		if errors.As(err, &ve) {
			resp.Fields = ve.Errors
		}
		return resp
	}
	return nil
}

func (h *SupportHandler) fail(c *fiber.Ctx, err error) error {
	var rejected *MessageRejectedError
	switch {
	case errors.As(err, &rejected):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: true, Message: rejected.Message})
	case errors.Is(err, ErrTicketNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: true, Message: "Ticket not found"})
	case errors.Is(err, ErrTicketClosed):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: true, Message: "This ticket is closed"})
	case errors.Is(err, ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}
	slog.Error("support request failed", "market_id", tenant.GetMarketID(c), "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: true, Message: "Something went wrong"})
}

func (h *SupportHandler) OpenTicket(c *fiber.Ctx) error {
	v, ok := viewer(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
	}
	var req openTicketRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	t, err := h.service.OpenTicket(c.UserContext(), tenant.GetMarketID(c), v, req.Subject, req.Body)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (h *SupportHandler) ListTickets(c *fiber.Ctx) error {
	v, ok := viewer(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	tickets, total, err := h.service.ListTickets(c.UserContext(), tenant.GetMarketID(c), v, c.Query("status"), limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"tickets": tickets, "total": total, "limit": limit, "offset": offset})
}

func (h *SupportHandler) GetTicket(c *fiber.Ctx) error {
	v, ok := viewer(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.fail(c, ErrTicketNotFound)
	}

	t, err := h.service.GetTicket(c.UserContext(), tenant.GetMarketID(c), id, v)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(t)
}

func (h *SupportHandler) PostMessage(c *fiber.Ctx) error {
	v, ok := viewer(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.fail(c, ErrTicketNotFound)
	}
	var req postMessageRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	m, err := h.service.PostMessage(c.UserContext(), tenant.GetMarketID(c), id, v, req.Body)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// Messages serves plain polling: ?after= takes an RFC 3339 timestamp and
// returns only newer messages.
func (h *SupportHandler) Messages(c *fiber.Ctx) error {
	v, ok := viewer(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.fail(c, ErrTicketNotFound)
	}
	var after time.Time
	if raw := c.Query("after"); raw != "" {
		after, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "after must be an RFC 3339 timestamp"})
		}
	}

	msgs, err := h.service.Messages(c.UserContext(), tenant.GetMarketID(c), id, v, after)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (h *SupportHandler) CloseTicket(c *fiber.Ctx) error {
	v, ok := viewer(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.fail(c, ErrTicketNotFound)
	}

	if err := h.service.CloseTicket(c.UserContext(), tenant.GetMarketID(c), id, v); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Ticket closed"})
}

// Stream sends the ticket's new messages as Server-Sent Events until the
// client goes away.
func (h *SupportHandler) Stream(c *fiber.Ctx) error {
	v, ok := viewer(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.fail(c, ErrTicketNotFound)
	}

	// The stream outlives the handler, so it cannot use the request context.
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.service.Subscribe(ctx, tenant.GetMarketID(c), id, v)
	if err != nil {
		cancel()
		return h.fail(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}
		for {
			select {
			case ev, open := <-sub:
				if !open {
					return
				}
				fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", ev.ID, ev.Payload)
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

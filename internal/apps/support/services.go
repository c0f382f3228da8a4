package support

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/services"
	"github.com/google/uuid"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrTicketClosed   = errors.New("ticket is closed")
	ErrEmptyMessage   = errors.New("message is empty")
)

// Viewer is the caller acting on a ticket.
type Viewer struct {
	UserID uuid.UUID
	Role   string
}

func (v Viewer) IsStaff() bool {
	return v.Role == models.RoleAgent || v.Role == models.RoleAdmin
}

// MessageRejectedError carries the moderation message shown to the sender.
type MessageRejectedError struct {
	Message string
}

func (e *MessageRejectedError) Error() string { return "message rejected: " + e.Message }

type SupportService struct {
	repo     Repository
	broker   events.Broker
	screener services.ContentScreener
	now      func() time.Time
}

func NewSupportService(repo Repository, broker events.Broker, screener services.ContentScreener) *SupportService {
	return &SupportService{repo: repo, broker: broker, screener: screener, now: time.Now}
}

func (s *SupportService) screen(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyMessage
	}
	if ok, reason := s.screener.FilterContent(body); !ok {
		return "", &MessageRejectedError{Message: s.screener.GetRejectionMessage(reason)}
	}
	return body, nil
}

func (s *SupportService) OpenTicket(ctx context.Context, marketID string, v Viewer, subject, body string) (*Ticket, error) {
	body, err := s.screen(body)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &Ticket{
		ID:            uuid.New(),
		MarketID:      marketID,
		UserID:        v.UserID,
		Subject:       strings.TrimSpace(subject),
		Status:        TicketOpen,
		LastMessageAt: now,
	}
	m := &Message{
		ID:         uuid.New(),
		MarketID:   marketID,
		TicketID:   t.ID,
		SenderID:   v.UserID,
		SenderRole: v.Role,
		Body:       body,
		CreatedAt:  now,
	}
	if err := s.repo.CreateTicket(ctx, t, m); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	slog.Info("support ticket opened", "market_id", marketID, "user_id", v.UserID.String(), "action", "support.open")
	return t, nil
}

// GetTicket returns the ticket if v may see it. Other users' tickets look
// like missing ones.
func (s *SupportService) GetTicket(ctx context.Context, marketID string, id uuid.UUID, v Viewer) (*Ticket, error) {
	t, err := s.repo.GetTicket(ctx, marketID, id)
	if errors.Is(err, errNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	if !v.IsStaff() && t.UserID != v.UserID {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// ListTickets returns the caller's tickets, or every ticket for staff.
func (s *SupportService) ListTickets(ctx context.Context, marketID string, v Viewer, status string, limit, offset int) ([]Ticket, int64, error) {
	var owner *uuid.UUID
	if !v.IsStaff() {
		owner = &v.UserID
	}
	return s.repo.ListTickets(ctx, marketID, owner, status, limit, offset)
}

// PostMessage adds a message and fans it out to the ticket's subscribers.
// A staff reply marks the ticket answered, a user reply reopens it.
func (s *SupportService) PostMessage(ctx context.Context, marketID string, ticketID uuid.UUID, v Viewer, body string) (*Message, error) {
	t, err := s.GetTicket(ctx, marketID, ticketID, v)
	if err != nil {
		return nil, err
	}
	if t.Status == TicketClosed {
		return nil, ErrTicketClosed
	}
	body, err = s.screen(body)
	if err != nil {
		return nil, err
	}

	m := &Message{
		ID:         uuid.New(),
		MarketID:   marketID,
		TicketID:   t.ID,
		SenderID:   v.UserID,
		SenderRole: v.Role,
		Body:       body,
		CreatedAt:  s.now().UTC(),
	}
	status := TicketOpen
	if v.IsStaff() {
		status = TicketAnswered
	}
	if err := s.repo.AddMessage(ctx, m, status); err != nil {
		if errors.Is(err, ErrTicketClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("add message: %w", err)
	}

	if err := s.broker.Publish(ctx, events.SupportTicketTopic(t.ID.String()), m); err != nil {
		slog.Warn("failed to publish support message", "market_id", marketID, "ticket_id", t.ID.String(), "error", err)
	}
	return m, nil
}

// Messages returns the ticket's messages created after after, oldest first.
func (s *SupportService) Messages(ctx context.Context, marketID string, ticketID uuid.UUID, v Viewer, after time.Time) ([]Message, error) {
	if _, err := s.GetTicket(ctx, marketID, ticketID, v); err != nil {
		return nil, err
	}
	return s.repo.Messages(ctx, ticketID, after)
}

func (s *SupportService) CloseTicket(ctx context.Context, marketID string, ticketID uuid.UUID, v Viewer) error {
	if _, err := s.GetTicket(ctx, marketID, ticketID, v); err != nil {
		return err
	}
	if err := s.repo.CloseTicket(ctx, marketID, ticketID, s.now().UTC()); err != nil {
		if errors.Is(err, errNotFound) {
			return ErrTicketNotFound
		}
		return err
	}
	return nil
}

// Subscribe streams new messages on the ticket until ctx is done.
func (s *SupportService) Subscribe(ctx context.Context, marketID string, ticketID uuid.UUID, v Viewer) (<-chan events.Event, error) {
	if _, err := s.GetTicket(ctx, marketID, ticketID, v); err != nil {
		return nil, err
	}
	return s.broker.Subscribe(ctx, events.SupportTicketTopic(ticketID.String()))
}

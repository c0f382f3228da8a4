package support

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errNotFound = errors.New("record not found")

// Repository is the persistence the support service needs.
type Repository interface {
	CreateTicket(ctx context.Context, t *Ticket, first *Message) error
	GetTicket(ctx context.Context, marketID string, id uuid.UUID) (*Ticket, error)
	ListTickets(ctx context.Context, marketID string, userID *uuid.UUID, status string, limit, offset int) ([]Ticket, int64, error)
	AddMessage(ctx context.Context, m *Message, ticketStatus string) error
	Messages(ctx context.Context, ticketID uuid.UUID, after time.Time) ([]Message, error)
	CloseTicket(ctx context.Context, marketID string, id uuid.UUID, at time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateTicket(ctx context.Context, t *Ticket, first *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		return tx.Create(first).Error
	})
}

func (r *gormRepository) GetTicket(ctx context.Context, marketID string, id uuid.UUID) (*Ticket, error) {
	var t Ticket
	err := r.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) ListTickets(ctx context.Context, marketID string, userID *uuid.UUID, status string, limit, offset int) ([]Ticket, int64, error) {
	var tickets []Ticket
	var total int64

	query := r.db.WithContext(ctx).Model(&Ticket{}).Scopes(tenant.ForMarket(marketID))
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("last_message_at DESC").Limit(limit).Offset(offset).Find(&tickets).Error; err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

// AddMessage inserts m and moves the ticket to ticketStatus, unless the
// ticket was closed in the meantime.
func (r *gormRepository) AddMessage(ctx context.Context, m *Message, ticketStatus string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Ticket{}).
			Where("id = ? AND market_id = ? AND status <> ?", m.TicketID, m.MarketID, TicketClosed).
			Updates(map[string]interface{}{"status": ticketStatus, "last_message_at": m.CreatedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTicketClosed
		}
		return tx.Create(m).Error
	})
}

func (r *gormRepository) Messages(ctx context.Context, ticketID uuid.UUID, after time.Time) ([]Message, error) {
	var msgs []Message
	query := r.db.WithContext(ctx).Where("ticket_id = ?", ticketID)
	if !after.IsZero() {
		query = query.Where("created_at > ?", after)
	}
	err := query.Order("created_at ASC").Limit(500).Find(&msgs).Error
	return msgs, err
}

func (r *gormRepository) CloseTicket(ctx context.Context, marketID string, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&Ticket{}).
		Scopes(tenant.ForMarket(marketID)).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": TicketClosed, "closed_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errNotFound
	}
	return nil
}

// MessageSource serves ticket topics to a polling broker straight from the
// messages table.
type MessageSource struct {
	repo Repository
}

func NewMessageSource(repo Repository) *MessageSource {
	return &MessageSource{repo: repo}
}

func (s *MessageSource) Since(ctx context.Context, topic string, after time.Time) ([]events.Event, error) {
	raw, ok := strings.CutPrefix(topic, events.SupportTicketTopic(""))
	if !ok {
		return nil, nil
	}
	ticketID, err := uuid.Parse(raw)
	if err != nil {
		return nil, nil
	}

	msgs, err := s.repo.Messages(ctx, ticketID, after)
	if err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(msgs))
	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		out = append(out, events.Event{ID: m.ID.String(), Topic: topic, Payload: payload, At: m.CreatedAt})
	}
	return out, nil
}

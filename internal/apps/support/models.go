package support

import (
	"time"

	"github.com/google/uuid"
)

const (
	TicketOpen     = "open"
	TicketAnswered = "answered"
	TicketClosed   = "closed"
)

type Ticket struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MarketID      string     `gorm:"size:50;not null;index" json:"-"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Subject       string     `gorm:"size:200;not null" json:"subject"`
	Status        string     `gorm:"size:20;not null;default:'open';index" json:"status"`
	LastMessageAt time.Time  `json:"last_message_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Ticket) TableName() string { return "support_tickets" }

type Message struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MarketID   string    `gorm:"size:50;not null;index" json:"-"`
	TicketID   uuid.UUID `gorm:"type:uuid;not null;index:idx_support_messages_ticket_created" json:"ticket_id"`
	SenderID   uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	SenderRole string    `gorm:"size:20;not null" json:"sender_role"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	CreatedAt  time.Time `gorm:"index:idx_support_messages_ticket_created" json:"created_at"`
}

func (Message) TableName() string { return "support_messages" }

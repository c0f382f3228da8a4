package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SubscriptionActive   = "active"
	SubscriptionExpired  = "expired"
	SubscriptionReplaced = "replaced"
)

// Subscription is a user's plan quota. At most one row per user is active.
type Subscription struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MarketID         string    `gorm:"size:50;not null;index;uniqueIndex:idx_plan_subs_one_active,where:status = 'active'" json:"-"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_plan_subs_one_active,where:status = 'active'" json:"user_id"`
	PackageID        uuid.UUID `gorm:"type:uuid;not null" json:"package_id"`
	PackageName      string    `gorm:"size:100" json:"package_name"`
	AdsAllowed       int       `gorm:"not null" json:"ads_allowed"`
	AdsUsed          int       `gorm:"not null;default:0" json:"ads_used"`
	StartDate        time.Time `gorm:"not null" json:"start_date"`
	EndDate          time.Time `gorm:"not null;index" json:"end_date"`
	Status           string    `gorm:"size:20;not null;default:'active';index" json:"status"`
	PaymentReference string    `gorm:"size:100;index" json:"payment_reference,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	User             User      `gorm:"foreignKey:UserID" json:"-"`
}

func (Subscription) TableName() string {
	return "user_plan_subscriptions"
}

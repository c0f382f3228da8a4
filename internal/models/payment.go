package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PaymentPending            = "pending"
	PaymentVerifying          = "verifying"
	PaymentPaid               = "paid"
	PaymentCancelled          = "cancelled"
	PaymentVerificationFailed = "verification_failed"
)

// PaymentTransaction tracks one gateway charge from popup to publish.
type PaymentTransaction struct {
	ID              uuid.UUID                           `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MarketID        string                              `gorm:"size:50;not null;index" json:"-"`
	UserID          uuid.UUID                           `gorm:"type:uuid;not null;index" json:"user_id"`
	Email           string                              `gorm:"size:255" json:"email"`
	PackageID       uuid.UUID                           `gorm:"type:uuid;not null" json:"package_id"`
	Reference       string                              `gorm:"size:100;not null;uniqueIndex" json:"reference"`
	AttemptID       string                              `gorm:"size:64;not null" json:"attempt_id"`
	Amount          decimal.Decimal                     `gorm:"type:numeric(12,2);not null" json:"amount"`
	AmountMinor     int64                               `gorm:"not null" json:"amount_minor"`
	Currency        string                              `gorm:"size:3;not null" json:"currency"`
	PromoCode       string                              `gorm:"size:50" json:"promo_code,omitempty"`
	OriginalAmount  decimal.Decimal                     `gorm:"type:numeric(12,2);not null" json:"original_amount"`
	DiscountAmount  decimal.Decimal                     `gorm:"type:numeric(12,2);not null;default:0" json:"discount_amount"`
	Status          string                              `gorm:"size:30;not null;default:'pending';index" json:"status"`
	Draft           datatypes.JSONType[SubmissionDraft] `gorm:"type:jsonb;not null" json:"-"`
	SubmissionID    *uuid.UUID                          `gorm:"type:uuid" json:"submission_id,omitempty"`
	GatewayResponse string                              `gorm:"type:text" json:"-"`
	PaidAt          *time.Time                          `json:"paid_at,omitempty"`
	CreatedAt       time.Time                           `json:"created_at"`
	UpdatedAt       time.Time                           `json:"updated_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

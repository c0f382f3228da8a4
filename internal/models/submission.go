package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
	SubmissionExpired  = "expired"
)

// SubmissionDraft is the ad content a vendor fills in before checkout.
type SubmissionDraft struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Location    string          `json:"location,omitempty"`
	Images      []string        `json:"images,omitempty"`
}

// ProductSubmission is a published ad awaiting or past review.
type ProductSubmission struct {
	ID                     uuid.UUID                           `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MarketID               string                              `gorm:"size:50;not null;index" json:"-"`
	UserID                 uuid.UUID                           `gorm:"type:uuid;not null;index:idx_submissions_user_free" json:"user_id"`
	Title                  string                              `gorm:"size:200;not null" json:"title"`
	Description            string                              `gorm:"type:text" json:"description"`
	Category               string                              `gorm:"size:100;index" json:"category"`
	Price                  decimal.Decimal                     `gorm:"type:numeric(14,2);not null;default:0" json:"price"`
	Location               string                              `gorm:"size:255" json:"location,omitempty"`
	Images                 datatypes.JSONSlice[string]         `gorm:"type:jsonb" json:"images"`
	PackageID              uuid.UUID                           `gorm:"type:uuid;not null" json:"package_id"`
	Package                datatypes.JSONType[PackageSnapshot] `gorm:"type:jsonb;not null" json:"package"`
	PackagePrice           decimal.Decimal                     `gorm:"type:numeric(12,2);not null;default:0" json:"package_price"`
	IsFreePackage          bool                                `gorm:"not null;default:false;index:idx_submissions_user_free" json:"is_free_package"`
	PromoCode              string                              `gorm:"size:50" json:"promo_code,omitempty"`
	DiscountAmount         decimal.Decimal                     `gorm:"type:numeric(12,2);not null;default:0" json:"discount_amount"`
	PaymentReference       *string                             `gorm:"size:100;uniqueIndex" json:"payment_reference,omitempty"`
	Status                 string                              `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ReviewNote             string                              `gorm:"size:1000" json:"review_note,omitempty"`
	ExpiresAt              *time.Time                          `gorm:"index" json:"expires_at,omitempty"`
	RenewedAt              *time.Time                          `json:"renewed_at,omitempty"`
	UsageReconcileRequired bool                                `gorm:"not null;default:false" json:"-"`
	CreatedAt              time.Time                           `json:"created_at"`
	UpdatedAt              time.Time                           `json:"updated_at"`
	DeletedAt              gorm.DeletedAt                      `gorm:"index" json:"-"`
}

func (ProductSubmission) TableName() string {
	return "product_submissions"
}

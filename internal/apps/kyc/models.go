package kyc

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Verification is a vendor's identity check. A user has at most one
// pending or approved row at a time.
type Verification struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MarketID     string     `gorm:"size:50;not null;index" json:"-"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	BusinessName string     `gorm:"size:200;not null" json:"business_name"`
	IDType       string     `gorm:"size:30;not null" json:"id_type"`
	IDNumber     string     `gorm:"size:100;not null" json:"-"`
	DocumentKey  string     `gorm:"size:500;not null" json:"-"`
	DocumentType string     `gorm:"size:100" json:"document_type"`
	Status       string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ReviewNote   string     `gorm:"size:1000" json:"review_note,omitempty"`
	ReviewedBy   *uuid.UUID `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Verification) TableName() string { return "vendor_verifications" }

// MaskedIDNumber shows only the last four characters of the ID number.
func (v *Verification) MaskedIDNumber() string {
	n := len(v.IDNumber)
	if n <= 4 {
		return v.IDNumber
	}
	masked := make([]byte, n)
	for i := range masked[:n-4] {
		masked[i] = '*'
	}
	copy(masked[n-4:], v.IDNumber[n-4:])
	return string(masked)
}

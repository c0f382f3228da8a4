package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PromoCode is an admin-issued discount. Code is stored upper-case.
type PromoCode struct {
	ID            uuid.UUID                   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MarketID      string                      `gorm:"size:50;not null;uniqueIndex:idx_promo_market_code" json:"-"`
	Code          string                      `gorm:"size:50;not null;uniqueIndex:idx_promo_market_code" json:"code"`
	DiscountType  string                      `gorm:"size:20;not null" json:"discount_type"`
	DiscountValue decimal.Decimal             `gorm:"type:numeric(12,2);not null;default:0" json:"discount_value"`
	ValidFrom     *time.Time                  `json:"valid_from,omitempty"`
	ValidTo       *time.Time                  `json:"valid_to,omitempty"`
	MaxUses       int                         `gorm:"not null;default:0" json:"max_uses"`
	UsedCount     int                         `gorm:"not null;default:0" json:"used_count"`
	PerUserLimit  int                         `gorm:"not null;default:1" json:"per_user_limit"`
	PackageIDs    datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"package_ids"`
	IsActive      bool                        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

func (PromoCode) TableName() string {
	return "promo_codes"
}

// AppliesTo reports whether the code is scoped to packageID. An empty
// scope covers every package.
func (p *PromoCode) AppliesTo(packageID uuid.UUID) bool {
	if len(p.PackageIDs) == 0 {
		return true
	}
	for _, id := range p.PackageIDs {
		if id == packageID.String() {
			return true
		}
	}
	return false
}

const (
	RedemptionReserved = "reserved"
	RedemptionReleased = "released"
	RedemptionRedeemed = "redeemed"
)

// PromoRedemption ties one checkout attempt to the promo applied on it.
type PromoRedemption struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MarketID       string          `gorm:"size:50;not null;index" json:"-"`
	PromoCodeID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"promo_code_id"`
	Code           string          `gorm:"size:50;not null" json:"code"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_redemption_user_attempt" json:"user_id"`
	AttemptID      string          `gorm:"size:64;not null;uniqueIndex:idx_redemption_user_attempt" json:"attempt_id"`
	PackageID      uuid.UUID       `gorm:"type:uuid;not null" json:"package_id"`
	OriginalAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"original_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount_amount"`
	FinalAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"final_amount"`
	Status         string          `gorm:"size:20;not null;default:'reserved';index" json:"status"`
	RedeemedAt     *time.Time      `json:"redeemed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (PromoRedemption) TableName() string {
	return "promo_redemptions"
}

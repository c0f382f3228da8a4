package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PlanOneTime      = "one_time"
	PlanSubscription = "subscription"
)

// Package is a catalog entry a vendor picks when publishing an ad.
// A zero price marks the free tier.
type Package struct {
	ID           uuid.UUID                   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MarketID     string                      `gorm:"size:50;not null;index" json:"-"`
	Name         string                      `gorm:"size:100;not null" json:"name"`
	Price        decimal.Decimal             `gorm:"type:numeric(12,2);not null;default:0" json:"price"`
	AdsAllowed   int                         `gorm:"not null;default:1" json:"ads_allowed"`
	DurationDays int                         `gorm:"not null;default:30" json:"duration_days"`
	PlanType     string                      `gorm:"size:20;not null;default:'one_time'" json:"plan_type"`
	Features     datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"features"`
	SortOrder    int                         `gorm:"default:0" json:"sort_order"`
	IsActive     bool                        `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

func (Package) TableName() string {
	return "ad_packages"
}

func (p Package) IsFree() bool {
	return !p.Price.IsPositive()
}

// Snapshot freezes the package as it was when a submission was created.
func (p Package) Snapshot() PackageSnapshot {
	features := make([]string, len(p.Features))
	copy(features, p.Features)
	return PackageSnapshot{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price,
		AdsAllowed:   p.AdsAllowed,
		DurationDays: p.DurationDays,
		PlanType:     p.PlanType,
		Features:     features,
	}
}

type PackageSnapshot struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	AdsAllowed   int             `json:"ads_allowed"`
	DurationDays int             `json:"duration_days"`
	PlanType     string          `json:"plan_type"`
	Features     []string        `json:"features"`
}

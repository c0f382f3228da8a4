package dto

import "github.com/shopspring/decimal"

type CreatePackageRequest struct {
	Name         string          `json:"name" validate:"required,max=100"`
	Price        decimal.Decimal `json:"price"`
	AdsAllowed   int             `json:"ads_allowed" validate:"required,min=1"`
	DurationDays int             `json:"duration_days" validate:"required,min=1,max=3650"`
	PlanType     string          `json:"plan_type" validate:"required,oneof=one_time subscription"`
	Features     []string        `json:"features" validate:"max=20,dive,max=200"`
	SortOrder    int             `json:"sort_order"`
}

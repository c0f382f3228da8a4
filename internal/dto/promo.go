package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ValidatePromoRequest struct {
	Code      string     `json:"code" validate:"required,max=50"`
	PackageID *uuid.UUID `json:"package_id"`
}

type PromoValidation struct {
	IsValid       bool            `json:"is_valid"`
	DiscountType  string          `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	Message       string          `json:"message"`
}

type ApplyPromoRequest struct {
	Code      string    `json:"code" validate:"required,max=50"`
	PackageID uuid.UUID `json:"package_id" validate:"required"`
	AttemptID string    `json:"attempt_id" validate:"required,max=64"`
}

type PromoApplication struct {
	Success        bool            `json:"success"`
	Code           string          `json:"code,omitempty"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Message        string          `json:"message"`
}

type CreatePromoRequest struct {
	Code          string          `json:"code" validate:"required,alphanum,max=50"`
	DiscountType  string          `json:"discount_type" validate:"required,oneof=percentage fixed free"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	ValidFrom     *time.Time      `json:"valid_from"`
	ValidTo       *time.Time      `json:"valid_to"`
	MaxUses       int             `json:"max_uses" validate:"min=0"`
	PerUserLimit  int             `json:"per_user_limit" validate:"min=0"`
	PackageIDs    []uuid.UUID     `json:"package_ids"`
}

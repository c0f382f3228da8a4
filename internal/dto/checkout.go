package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubmissionDraft struct {
	Title       string          `json:"title" validate:"required,min=3,max=200"`
	Description string          `json:"description" validate:"required,max=5000"`
	Category    string          `json:"category" validate:"required,max=100"`
	Price       decimal.Decimal `json:"price"`
	Location    string          `json:"location" validate:"max=255"`
	Images      []string        `json:"images" validate:"max=10,dive,url"`
}

type CheckoutRequest struct {
	PackageID uuid.UUID       `json:"package_id" validate:"required"`
	PromoCode string          `json:"promo_code" validate:"max=50"`
	AttemptID string          `json:"attempt_id" validate:"required,max=64"`
	Draft     SubmissionDraft `json:"submission"`
}

type PaymentCallbackRequest struct {
	Reference string `json:"reference" validate:"required,max=100"`
	Status    string `json:"status" validate:"required,max=30"`
}

// PaymentPopup is everything the client needs to open the gateway popup.
type PaymentPopup struct {
	ScriptURL string `json:"script_url"`
	PublicKey string `json:"key"`
	Email     string `json:"email"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"ref"`
}

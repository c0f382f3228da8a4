package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
	DiscountFree       DiscountType = "free"
)

var ErrUnknownDiscountType = errors.New("unknown discount type")

var hundred = decimal.NewFromInt(100)

// ParseDiscountType normalises a stored discount type.
func ParseDiscountType(s string) (DiscountType, error) {
	switch t := DiscountType(strings.ToLower(strings.TrimSpace(s))); t {
	case DiscountPercentage, DiscountFixed, DiscountFree:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDiscountType, s)
	}
}

// Discount returns the amount taken off original. The result is always
// within [0, original].
func Discount(kind DiscountType, value, original decimal.Decimal) (decimal.Decimal, error) {
	if !original.IsPositive() {
		return decimal.Zero, nil
	}

	var d decimal.Decimal
	switch kind {
	case DiscountPercentage:
		d = original.Mul(value).Div(hundred).Round(0)
	case DiscountFixed:
		d = decimal.Min(value, original)
	case DiscountFree:
		d = original
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownDiscountType, kind)
	}

	if d.IsNegative() {
		return decimal.Zero, nil
	}
	if d.GreaterThan(original) {
		return original, nil
	}
	return d, nil
}

// FinalAmount is max(0, original - discount).
func FinalAmount(original, discount decimal.Decimal) decimal.Decimal {
	f := original.Sub(discount)
	if f.IsNegative() {
		return decimal.Zero
	}
	return f
}

// ToMinorUnits converts a major-unit amount (e.g. 80.00) to the gateway's
// minor units (8000).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

// Quote is the price of one checkout attempt.
type Quote struct {
	Original  decimal.Decimal `json:"original_amount"`
	Discount  decimal.Decimal `json:"discount_amount"`
	Final     decimal.Decimal `json:"final_amount"`
	PromoCode string          `json:"promo_code,omitempty"`
}

func NewQuote(original decimal.Decimal) Quote {
	if original.IsNegative() {
		original = decimal.Zero
	}
	return Quote{Original: original, Discount: decimal.Zero, Final: original}
}

// WithPromo returns a copy of q discounted by the given promo terms.
func (q Quote) WithPromo(code string, kind DiscountType, value decimal.Decimal) (Quote, error) {
	d, err := Discount(kind, value, q.Original)
	if err != nil {
		return q, err
	}
	return Quote{
		Original:  q.Original,
		Discount:  d,
		Final:     FinalAmount(q.Original, d),
		PromoCode: code,
	}, nil
}

// WithoutPromo drops any applied discount.
func (q Quote) WithoutPromo() Quote {
	return NewQuote(q.Original)
}

func (q Quote) IsFree() bool {
	return !q.Final.IsPositive()
}

func (q Quote) MinorUnits() int64 {
	return ToMinorUnits(q.Final)
}

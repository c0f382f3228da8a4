// Package store holds the GORM repositories behind the service layer.
// Every query is scoped to a market.
package store

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrQuotaExceeded  = errors.New("no active plan with remaining quota")
	ErrPromoExhausted = errors.New("promo code usage limit reached")
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PromoStore struct {
	db *gorm.DB
}

func NewPromoStore(db *gorm.DB) *PromoStore {
	return &PromoStore{db: db}
}

// FindByCode expects code already upper-cased.
func (s *PromoStore) FindByCode(ctx context.Context, marketID, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := s.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).Where("code = ?", code).First(&promo).Error; err != nil {
		return nil, translate(err)
	}
	return &promo, nil
}

func (s *PromoStore) CountRedeemed(ctx context.Context, promoID, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.PromoRedemption{}).
		Where("promo_code_id = ? AND user_id = ? AND status = ?", promoID, userID, models.RedemptionRedeemed).
		Count(&n).Error
	return n, err
}

func (s *PromoStore) FindAttempt(ctx context.Context, userID uuid.UUID, attemptID string) (*models.PromoRedemption, error) {
	var r models.PromoRedemption
	if err := s.db.WithContext(ctx).Where("user_id = ? AND attempt_id = ?", userID, attemptID).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

// Reserve records r against its (user, attempt) pair. The promo row and any
// existing reservation are locked for the duration. A redeemed attempt is
// never overwritten.
func (s *PromoStore) Reserve(ctx context.Context, r *models.PromoRedemption) (*models.PromoRedemption, error) {
	var stored models.PromoRedemption
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var promo models.PromoCode
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&promo, "id = ?", r.PromoCodeID).Error; err != nil {
			return translate(err)
		}

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND attempt_id = ?", r.UserID, r.AttemptID).
			First(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			stored = *r
			if stored.ID == uuid.Nil {
				stored.ID = uuid.New()
			}
			stored.Status = models.RedemptionReserved
			return tx.Create(&stored).Error
		}
		if err != nil {
			return err
		}

		if stored.Status == models.RedemptionRedeemed {
			return nil
		}
		return tx.Model(&stored).Updates(map[string]interface{}{
			"promo_code_id":   r.PromoCodeID,
			"code":            r.Code,
			"package_id":      r.PackageID,
			"original_amount": r.OriginalAmount,
			"discount_amount": r.DiscountAmount,
			"final_amount":    r.FinalAmount,
			"status":          models.RedemptionReserved,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Release drops a reserved attempt. Missing or redeemed attempts are left alone.
func (s *PromoStore) Release(ctx context.Context, userID uuid.UUID, attemptID string) error {
	return s.db.WithContext(ctx).Model(&models.PromoRedemption{}).
		Where("user_id = ? AND attempt_id = ? AND status = ?", userID, attemptID, models.RedemptionReserved).
		Update("status", models.RedemptionReleased).Error
}

// Redeem consumes the attempt's reservation and bumps the code's usage
// counter in one transaction.
func (s *PromoStore) Redeem(ctx context.Context, userID uuid.UUID, attemptID string, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.PromoRedemption
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND attempt_id = ?", userID, attemptID).
			First(&r).Error; err != nil {
			return translate(err)
		}
		switch r.Status {
		case models.RedemptionRedeemed:
			return nil
		case models.RedemptionReleased:
			return ErrNotFound
		}

		result := tx.Model(&models.PromoCode{}).
			Where("id = ? AND (max_uses = 0 OR used_count < max_uses)", r.PromoCodeID).
			UpdateColumn("used_count", gorm.Expr("used_count + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrPromoExhausted
		}

		return tx.Model(&r).Updates(map[string]interface{}{
			"status":      models.RedemptionRedeemed,
			"redeemed_at": now,
		}).Error
	})
}

func (s *PromoStore) Create(ctx context.Context, promo *models.PromoCode) error {
	return s.db.WithContext(ctx).Create(promo).Error
}

func (s *PromoStore) List(ctx context.Context, marketID string) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	err := s.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).Order("created_at DESC").Find(&promos).Error
	return promos, err
}

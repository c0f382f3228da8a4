package store

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionStore struct {
	db *gorm.DB
}

func NewSubscriptionStore(db *gorm.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) GetActive(ctx context.Context, marketID string, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Scopes(tenant.ForMarket(marketID)).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionActive).
		Order("end_date DESC").
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

// Replace retires the user's active row, if any, and inserts sub as the new
// active row.
func (s *SubscriptionStore) Replace(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []models.Subscription
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(tenant.ForMarket(sub.MarketID)).
			Where("user_id = ? AND status = ?", sub.UserID, models.SubscriptionActive).
			Find(&current).Error; err != nil {
			return err
		}
		if len(current) > 0 {
			ids := make([]uuid.UUID, len(current))
			for i, c := range current {
				ids[i] = c.ID
			}
			if err := tx.Model(&models.Subscription{}).
				Where("id IN ?", ids).
				Update("status", models.SubscriptionReplaced).Error; err != nil {
				return err
			}
		}
		sub.Status = models.SubscriptionActive
		return tx.Create(sub).Error
	})
}

// IncrementUsage consumes one unit of the active plan. The guard runs in the
// UPDATE itself, so concurrent publishes can never push ads_used past
// ads_allowed.
func (s *SubscriptionStore) IncrementUsage(ctx context.Context, marketID string, userID uuid.UUID, now time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Scopes(tenant.ForMarket(marketID)).
		Where("user_id = ? AND status = ? AND end_date > ? AND ads_used < ads_allowed", userID, models.SubscriptionActive, now).
		UpdateColumns(map[string]interface{}{
			"ads_used":   gorm.Expr("ads_used + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

func (s *SubscriptionStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status = ? AND end_date < ?", models.SubscriptionActive, now).
		Update("status", models.SubscriptionExpired)
	return result.RowsAffected, result.Error
}

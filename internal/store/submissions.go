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

type SubmissionStore struct {
	db *gorm.DB
}

func NewSubmissionStore(db *gorm.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

func (s *SubmissionStore) Create(ctx context.Context, sub *models.ProductSubmission) error {
	return s.db.WithContext(ctx).Create(sub).Error
}

func (s *SubmissionStore) Get(ctx context.Context, marketID string, id uuid.UUID) (*models.ProductSubmission, error) {
	var sub models.ProductSubmission
	if err := s.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).First(&sub, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *SubmissionStore) FindByPaymentReference(ctx context.Context, reference string) (*models.ProductSubmission, error) {
	var sub models.ProductSubmission
	if err := s.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&sub).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *SubmissionStore) ListByUser(ctx context.Context, marketID string, userID uuid.UUID, limit, offset int) ([]models.ProductSubmission, int64, error) {
	var subs []models.ProductSubmission
	var total int64

	query := s.db.WithContext(ctx).Model(&models.ProductSubmission{}).
		Scopes(tenant.ForMarket(marketID)).
		Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&subs).Error; err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// ListByStatus returns the market's submissions in status, oldest first.
func (s *SubmissionStore) ListByStatus(ctx context.Context, marketID, status string, limit, offset int) ([]models.ProductSubmission, int64, error) {
	var subs []models.ProductSubmission
	var total int64

	query := s.db.WithContext(ctx).Model(&models.ProductSubmission{}).
		Scopes(tenant.ForMarket(marketID)).
		Where("status = ?", status)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at ASC").Limit(limit).Offset(offset).Find(&subs).Error; err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// CountFree counts the user's live free-package ads created or renewed at
// or after since.
func (s *SubmissionStore) CountFree(ctx context.Context, marketID string, userID uuid.UUID, since time.Time) (int64, error) {
	return countFree(s.db.WithContext(ctx), marketID, userID, since)
}

func countFree(db *gorm.DB, marketID string, userID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := db.Model(&models.ProductSubmission{}).
		Scopes(tenant.ForMarket(marketID)).
		Where("user_id = ? AND is_free_package = ?", userID, true).
		Where("status IN ?", []string{models.SubmissionPending, models.SubmissionApproved}).
		Where("COALESCE(renewed_at, created_at) >= ?", since).
		Count(&n).Error
	return n, err
}

// lockOwner locks the owner's user row for the rest of tx. Free-ad counts
// read after it cannot be changed by a concurrent publish or renewal.
func lockOwner(tx *gorm.DB, userID uuid.UUID) error {
	var owner models.User
	return translate(tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&owner, "id = ?", userID).Error)
}

// CreateFree inserts a free-package ad while holding the owner's lock.
// allow receives the current free-ad count and returns an error to refuse.
func (s *SubmissionStore) CreateFree(ctx context.Context, sub *models.ProductSubmission, since time.Time, allow func(count int64) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwner(tx, sub.UserID); err != nil {
			return err
		}
		count, err := countFree(tx, sub.MarketID, sub.UserID, since)
		if err != nil {
			return err
		}
		if err := allow(count); err != nil {
			return err
		}
		return tx.Create(sub).Error
	})
}

// RenewFree puts an expired free ad back into review under the same lock
// as CreateFree.
func (s *SubmissionStore) RenewFree(ctx context.Context, sub *models.ProductSubmission, since, now, expiresAt time.Time, allow func(count int64) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwner(tx, sub.UserID); err != nil {
			return err
		}

		count, err := countFree(tx, sub.MarketID, sub.UserID, since)
		if err != nil {
			return err
		}
		if err := allow(count); err != nil {
			return err
		}

		result := tx.Model(&models.ProductSubmission{}).
			Where("id = ? AND status = ?", sub.ID, models.SubmissionExpired).
			Updates(map[string]interface{}{
				"status":     models.SubmissionPending,
				"renewed_at": now,
				"expires_at": expiresAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		sub.Status = models.SubmissionPending
		sub.RenewedAt = &now
		sub.ExpiresAt = &expiresAt
		return nil
	})
}

func (s *SubmissionStore) MarkUsageReconcile(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.ProductSubmission{}).
		Where("id = ?", id).
		Update("usage_reconcile_required", true).Error
}

func (s *SubmissionStore) SetStatus(ctx context.Context, marketID string, id uuid.UUID, status, note string) error {
	result := s.db.WithContext(ctx).Model(&models.ProductSubmission{}).
		Scopes(tenant.ForMarket(marketID)).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "review_note": note})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SubmissionStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.ProductSubmission{}).
		Where("status IN ? AND expires_at < ?", []string{models.SubmissionPending, models.SubmissionApproved}, now).
		Update("status", models.SubmissionExpired)
	return result.RowsAffected, result.Error
}

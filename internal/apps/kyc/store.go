package kyc

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errNotFound = errors.New("record not found")

type Repository interface {
	Create(ctx context.Context, v *Verification) error
	Latest(ctx context.Context, marketID string, userID uuid.UUID) (*Verification, error)
	Get(ctx context.Context, marketID string, id uuid.UUID) (*Verification, error)
	ListByStatus(ctx context.Context, marketID, status string, limit, offset int) ([]Verification, int64, error)
	// Decide moves a pending row to status. It reports false when the row
	// was already decided.
	Decide(ctx context.Context, marketID string, id uuid.UUID, status, note string, reviewer uuid.UUID, at time.Time) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, v *Verification) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *gormRepository) Latest(ctx context.Context, marketID string, userID uuid.UUID) (*Verification, error) {
	var v Verification
	err := r.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *gormRepository) Get(ctx context.Context, marketID string, id uuid.UUID) (*Verification, error) {
	var v Verification
	err := r.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).First(&v, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *gormRepository) ListByStatus(ctx context.Context, marketID, status string, limit, offset int) ([]Verification, int64, error) {
	var out []Verification
	var total int64

	query := r.db.WithContext(ctx).Model(&Verification{}).Scopes(tenant.ForMarket(marketID))
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at ASC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *gormRepository) Decide(ctx context.Context, marketID string, id uuid.UUID, status, note string, reviewer uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Verification{}).
		Scopes(tenant.ForMarket(marketID)).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"review_note": note,
			"reviewed_by": reviewer,
			"reviewed_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

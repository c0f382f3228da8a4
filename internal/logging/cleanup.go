package logging

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"gorm.io/gorm"
)

// Retention deletes persisted system logs older than a fixed age.
type Retention struct {
	db   *gorm.DB
	days int
}

func NewRetention(db *gorm.DB, days int) *Retention {
	if days <= 0 {
		days = 30
	}
	return &Retention{db: db, days: days}
}

func (r *Retention) Purge(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -r.days)
	result := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	return result.RowsAffected, result.Error
}

package store

import (
	"context"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentStore struct {
	db *gorm.DB
}

func NewPaymentStore(db *gorm.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func (s *PaymentStore) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	return s.db.WithContext(ctx).Create(tx).Error
}

func (s *PaymentStore) GetByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&tx).Error; err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

// Transition moves a transaction from one status to another. It reports
// false when the row was not in the from status, which lets the callback
// and the webhook race without both publishing.
func (s *PaymentStore) Transition(ctx context.Context, reference, from, to string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("reference = ? AND status = ?", reference, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *PaymentStore) AttachSubmission(ctx context.Context, reference string, submissionID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("reference = ?", reference).
		Update("submission_id", submissionID).Error
}

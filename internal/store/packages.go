package store

import (
	"context"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PackageStore struct {
	db *gorm.DB
}

func NewPackageStore(db *gorm.DB) *PackageStore {
	return &PackageStore{db: db}
}

func (s *PackageStore) ListActive(ctx context.Context, marketID string) ([]models.Package, error) {
	var pkgs []models.Package
	err := s.db.WithContext(ctx).
		Scopes(tenant.ForMarket(marketID)).
		Where("is_active = ?", true).
		Order("sort_order ASC, price ASC").
		Find(&pkgs).Error
	return pkgs, err
}

// Get returns a package whether or not it is still active.
func (s *PackageStore) Get(ctx context.Context, marketID string, id uuid.UUID) (*models.Package, error) {
	var pkg models.Package
	if err := s.db.WithContext(ctx).Scopes(tenant.ForMarket(marketID)).First(&pkg, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &pkg, nil
}

func (s *PackageStore) Create(ctx context.Context, pkg *models.Package) error {
	return s.db.WithContext(ctx).Create(pkg).Error
}

func (s *PackageStore) Deactivate(ctx context.Context, marketID string, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.Package{}).
		Scopes(tenant.ForMarket(marketID)).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PackageStore) Count(ctx context.Context, marketID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Package{}).Scopes(tenant.ForMarket(marketID)).Count(&n).Error
	return n, err
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrInvalidPackage  = errors.New("invalid package")
)

type CatalogService struct {
	packages PackageRepository
}

func NewCatalogService(packages PackageRepository) *CatalogService {
	return &CatalogService{packages: packages}
}

// ListPackages returns the market's active packages in display order.
func (s *CatalogService) ListPackages(ctx context.Context, marketID string) ([]models.Package, error) {
	pkgs, err := s.packages.ListActive(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return pkgs, nil
}

// GetPackage returns an active package. Inactive packages cannot be bought.
func (s *CatalogService) GetPackage(ctx context.Context, marketID string, id uuid.UUID) (*models.Package, error) {
	pkg, err := s.packages.Get(ctx, marketID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	if !pkg.IsActive {
		return nil, ErrPackageNotFound
	}
	return pkg, nil
}

func (s *CatalogService) CreatePackage(ctx context.Context, marketID string, req *dto.CreatePackageRequest) (*models.Package, error) {
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidPackage)
	}
	if !req.Price.Equal(req.Price.Round(2)) {
		return nil, fmt.Errorf("%w: price has more than two decimal places", ErrInvalidPackage)
	}

	pkg := &models.Package{
		ID:           uuid.New(),
		MarketID:     marketID,
		Name:         strings.TrimSpace(req.Name),
		Price:        req.Price,
		AdsAllowed:   req.AdsAllowed,
		DurationDays: req.DurationDays,
		PlanType:     req.PlanType,
		Features:     req.Features,
		SortOrder:    req.SortOrder,
		IsActive:     true,
	}
	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	slog.Info("package created", "market_id", marketID, "package_id", pkg.ID.String(), "action", "catalog.create")
	return pkg, nil
}

// DeactivatePackage hides a package from the catalog. Submissions keep
// their own snapshot so nothing already published changes.
func (s *CatalogService) DeactivatePackage(ctx context.Context, marketID string, id uuid.UUID) error {
	err := s.packages.Deactivate(ctx, marketID, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrPackageNotFound
	}
	return err
}

// SeedDefaults gives every market without packages a starter catalog.
func (s *CatalogService) SeedDefaults(ctx context.Context, marketIDs []string) error {
	for _, marketID := range marketIDs {
		n, err := s.packages.Count(ctx, marketID)
		if err != nil {
			return fmt.Errorf("count packages for %s: %w", marketID, err)
		}
		if n > 0 {
			continue
		}
		for _, pkg := range defaultPackages(marketID) {
			if err := s.packages.Create(ctx, &pkg); err != nil {
				return fmt.Errorf("seed package %q for %s: %w", pkg.Name, marketID, err)
			}
		}
		slog.Info("seeded default packages", "market_id", marketID)
	}
	return nil
}

func defaultPackages(marketID string) []models.Package {
	return []models.Package{
		{
			ID: uuid.New(), MarketID: marketID, Name: "Free", Price: decimal.Zero,
			AdsAllowed: 3, DurationDays: 30, PlanType: models.PlanOneTime, SortOrder: 0, IsActive: true,
			Features: []string{"3 ads every 30 days", "Standard placement"},
		},
		{
			ID: uuid.New(), MarketID: marketID, Name: "Boost", Price: decimal.NewFromInt(1500),
			AdsAllowed: 1, DurationDays: 30, PlanType: models.PlanOneTime, SortOrder: 1, IsActive: true,
			Features: []string{"1 featured ad", "30 days visibility"},
		},
		{
			ID: uuid.New(), MarketID: marketID, Name: "Vendor Pro", Price: decimal.NewFromInt(7500),
			AdsAllowed: 20, DurationDays: 30, PlanType: models.PlanSubscription, SortOrder: 2, IsActive: true,
			Features: []string{"20 ads per month", "Priority review", "Verified badge"},
		},
	}
}

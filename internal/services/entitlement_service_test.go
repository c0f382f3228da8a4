package services

import (
	"context"
	"testing"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func seedSubmission(t *testing.T, h *harness, user uuid.UUID, pkg models.Package, status string) *models.ProductSubmission {
	t.Helper()
	sub := &models.ProductSubmission{
		ID:            uuid.New(),
		MarketID:      testMarket,
		UserID:        user,
		Title:         "Desk lamp",
		PackageID:     pkg.ID,
		Package:       datatypes.NewJSONType(pkg.Snapshot()),
		PackagePrice:  pkg.Price,
		IsFreePackage: pkg.IsFree(),
		Status:        status,
	}
	require.NoError(t, h.submissions.Create(context.Background(), sub))
	return sub
}

func TestRenewAd(t *testing.T) {
	pkg := freePkg(2)
	h := newHarness(t, pkg)
	ctx := context.Background()
	user := uuid.New()

	expired := seedSubmission(t, h, user, pkg, models.SubmissionExpired)
	seedSubmission(t, h, user, pkg, models.SubmissionPending)

	renewed, err := h.entitleSvc.RenewAd(ctx, testMarket, user, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionPending, renewed.Status)
	require.NotNil(t, renewed.RenewedAt)
	assert.Equal(t, testNow, *renewed.RenewedAt)
	assert.Equal(t, testNow.AddDate(0, 0, 30), *renewed.ExpiresAt)

	// now at the limit of two
	another := seedSubmission(t, h, user, pkg, models.SubmissionExpired)
	_, err = h.entitleSvc.RenewAd(ctx, testMarket, user, another.ID)
	assert.ErrorIs(t, err, ErrFreeLimitReached)

	_, err = h.entitleSvc.RenewAd(ctx, testMarket, user, renewed.ID)
	assert.ErrorIs(t, err, ErrAdNotExpired)

	_, err = h.entitleSvc.RenewAd(ctx, testMarket, uuid.New(), another.ID)
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestRenewAd_PaidNeedsPurchase(t *testing.T) {
	pkg := oneTimePkg(100)
	h := newHarness(t, pkg)
	user := uuid.New()
	paid := seedSubmission(t, h, user, pkg, models.SubmissionExpired)

	_, err := h.entitleSvc.RenewAd(context.Background(), testMarket, user, paid.ID)
	assert.ErrorIs(t, err, ErrRenewalRequiresPurchase)
}

func TestEvaluate_FreeWindowOverride(t *testing.T) {
	pkg := freePkg(1)
	pkg.DurationDays = 90
	h := newHarness(t, pkg)
	h.entitleSvc.rules.FreeWindowDays = 7
	user := uuid.New()
	seedSubmission(t, h, user, pkg, models.SubmissionApproved)

	d, offer, err := h.entitleSvc.Evaluate(context.Background(), testMarket, user, pkg)
	require.NoError(t, err)
	assert.Equal(t, 7, offer.(entitlement.FreeOffer).WindowDays)
	assert.False(t, d.Allowed)

	h.clock = h.clock.AddDate(0, 0, 8)
	d, _, err = h.entitleSvc.Evaluate(context.Background(), testMarket, user, pkg)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestActivatePlan_ReplacesAndExtends(t *testing.T) {
	pro := planPkg(5000, 10)
	basic := planPkg(2000, 3)
	h := newHarness(t, pro, basic)
	ctx := context.Background()
	user := uuid.New()

	first, err := h.planSvc.ActivatePlan(ctx, testMarket, user, pro, "r1")
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(0, 0, 30), first.EndDate)

	h.clock = testNow.AddDate(0, 0, 10)
	renewed, err := h.planSvc.ActivatePlan(ctx, testMarket, user, pro, "r2")
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(0, 0, 60), renewed.EndDate)
	assert.Equal(t, 0, renewed.AdsUsed)

	switched, err := h.planSvc.ActivatePlan(ctx, testMarket, user, basic, "r3")
	require.NoError(t, err)
	assert.Equal(t, h.clock.AddDate(0, 0, 30), switched.EndDate)

	active := 0
	for _, r := range h.subs.rows {
		if r.Status == models.SubscriptionActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.Equal(t, basic.ID, h.subs.active(user).PackageID)
}

func TestGetActive_PastEndDateIsNoPlan(t *testing.T) {
	pkg := planPkg(5000, 10)
	h := newHarness(t, pkg)
	ctx := context.Background()
	user := uuid.New()
	_, err := h.planSvc.ActivatePlan(ctx, testMarket, user, pkg, "r1")
	require.NoError(t, err)

	h.clock = testNow.AddDate(0, 0, 31)
	_, err = h.planSvc.GetActive(ctx, testMarket, user)
	assert.ErrorIs(t, err, ErrNoActivePlan)

	n, err := h.planSvc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCatalog(t *testing.T) {
	repo := newFakePackages()
	svc := NewCatalogService(repo)
	ctx := context.Background()

	require.NoError(t, svc.SeedDefaults(ctx, []string{testMarket, "accra"}))
	require.NoError(t, svc.SeedDefaults(ctx, []string{testMarket}))
	n, _ := repo.Count(ctx, testMarket)
	assert.Equal(t, int64(3), n)

	list, err := svc.ListPackages(ctx, testMarket)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].IsFree())

	require.NoError(t, svc.DeactivatePackage(ctx, testMarket, list[1].ID))
	_, err = svc.GetPackage(ctx, testMarket, list[1].ID)
	assert.ErrorIs(t, err, ErrPackageNotFound)
	assert.ErrorIs(t, svc.DeactivatePackage(ctx, "accra", list[2].ID), ErrPackageNotFound)

	_, err = svc.CreatePackage(ctx, testMarket, &dto.CreatePackageRequest{Name: "Bad", Price: decimal.NewFromInt(-1), AdsAllowed: 1, DurationDays: 1, PlanType: models.PlanOneTime})
	assert.ErrorIs(t, err, ErrInvalidPackage)

	created, err := svc.CreatePackage(ctx, testMarket, &dto.CreatePackageRequest{Name: " Weekend ", Price: decimal.RequireFromString("499.50"), AdsAllowed: 2, DurationDays: 3, PlanType: models.PlanOneTime})
	require.NoError(t, err)
	assert.Equal(t, "Weekend", created.Name)
	assert.True(t, created.IsActive)
}

func TestContentFilter(t *testing.T) {
	f := NewContentFilter()
	tests := []struct {
		text   string
		ok     bool
		reason string
	}{
		{"Solid oak dining table, seats six", true, ""},
		{"", true, ""},
		{"Great deal, not a scam", false, ReasonInappropriate},
		{"More photos at www.example.com/table", false, ReasonURL},
		{"Email seller@example.com", false, ReasonContactInfo},
		{"WhatsApp +234 803 555 1234", false, ReasonContactInfo},
		{"Soooooo cheap", false, ReasonSpam},
		{"Hurry!!!!", false, ReasonSpam},
		{"BRAND NEW SEALED APPLE IPHONE", false, ReasonExcessiveCaps},
		{"Class room chairs", true, ""},
	}
	for _, tt := range tests {
		ok, reason := f.Check(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.reason, reason, tt.text)
	}

	svc := &ModerationService{filter: f}
	assert.Equal(t, rejectionMessages[ReasonURL], svc.GetRejectionMessage(ReasonURL))
	assert.NotEmpty(t, svc.GetRejectionMessage("something_else"))
}

package entitlement

import (
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func freePackage(limit int) models.Package {
	return models.Package{ID: uuid.New(), Name: "Free", Price: decimal.Zero, AdsAllowed: limit, PlanType: models.PlanOneTime}
}

func TestOfferFor(t *testing.T) {
	free, err := OfferFor(freePackage(3))
	require.NoError(t, err)
	fo, ok := free.(FreeOffer)
	require.True(t, ok)
	assert.Equal(t, DefaultWindowDays, fo.WindowDays)

	// zero-priced subscription is still free
	sub0, err := OfferFor(models.Package{ID: uuid.New(), Price: decimal.Zero, AdsAllowed: 2, DurationDays: 7, PlanType: models.PlanSubscription})
	require.NoError(t, err)
	assert.IsType(t, FreeOffer{}, sub0)
	assert.Equal(t, 7, sub0.(FreeOffer).WindowDays)

	one, err := OfferFor(models.Package{ID: uuid.New(), Price: decimal.NewFromInt(50), AdsAllowed: 1, PlanType: models.PlanOneTime})
	require.NoError(t, err)
	assert.IsType(t, OneTimeOffer{}, one)

	sub, err := OfferFor(models.Package{ID: uuid.New(), Price: decimal.NewFromInt(100), AdsAllowed: 10, PlanType: models.PlanSubscription})
	require.NoError(t, err)
	assert.IsType(t, SubscriptionOffer{}, sub)

	_, err = OfferFor(models.Package{ID: uuid.New(), Price: decimal.NewFromInt(1), PlanType: "lifetime"})
	assert.ErrorIs(t, err, ErrUnknownOffer)
}

func TestDecide_FreeTierBoundary(t *testing.T) {
	offer, err := OfferFor(freePackage(3))
	require.NoError(t, err)

	tests := []struct {
		count       int
		wantAllowed bool
		wantState   State
	}{
		{0, true, StateFreeTierAvailable},
		{2, true, StateFreeTierAvailable},
		{3, false, StateFreeTierExhausted},
		{4, false, StateFreeTierExhausted},
	}

	for _, tt := range tests {
		d, err := Decide(offer, Usage{FreeAdsCount: tt.count}, now)
		require.NoError(t, err)
		assert.Equal(t, tt.wantAllowed, d.Allowed, "count=%d", tt.count)
		assert.Equal(t, tt.wantState, d.State, "count=%d", tt.count)
		assert.Equal(t, !tt.wantAllowed, d.IsFreeLimitReached, "count=%d", tt.count)
		assert.False(t, d.RequiresPayment)
		if !tt.wantAllowed {
			assert.Equal(t, ActionBlocked, d.Action)
			assert.NotEmpty(t, d.Message)
		}
	}
}

func TestDecide_OneTimeAlwaysPays(t *testing.T) {
	pkg := models.Package{ID: uuid.New(), Price: decimal.NewFromInt(50), AdsAllowed: 1, PlanType: models.PlanOneTime}
	offer, err := OfferFor(pkg)
	require.NoError(t, err)

	plan := &Plan{PackageID: uuid.New(), AdsUsed: 0, AdsAllowed: 5, EndDate: now.Add(24 * time.Hour), Active: true}
	d, err := Decide(offer, Usage{FreeAdsCount: 99, Plan: plan}, now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.RequiresPayment)
	assert.Equal(t, ActionPay, d.Action)
	assert.Equal(t, StateActiveSubscription, d.State)
}

func TestDecide_SubscriptionQuotaBoundary(t *testing.T) {
	pkg := models.Package{ID: uuid.New(), Price: decimal.NewFromInt(100), AdsAllowed: 5, DurationDays: 30, PlanType: models.PlanSubscription}
	offer, err := OfferFor(pkg)
	require.NoError(t, err)

	atUsed := func(used int) *Plan {
		return &Plan{PackageID: pkg.ID, AdsUsed: used, AdsAllowed: 5, EndDate: now.Add(48 * time.Hour), Active: true}
	}

	d, err := Decide(offer, Usage{Plan: atUsed(4)}, now)
	require.NoError(t, err)
	assert.Equal(t, ActionUseQuota, d.Action)
	assert.False(t, d.RequiresPayment)
	assert.Equal(t, 1, d.Remaining())

	d, err = Decide(offer, Usage{Plan: atUsed(5)}, now)
	require.NoError(t, err)
	assert.Equal(t, ActionPay, d.Action)
	assert.True(t, d.RequiresPayment)
	assert.Equal(t, StateActiveSubscription, d.State)
	assert.Equal(t, 0, d.Remaining())
}

func TestDecide_SubscriptionExpiredOrMissing(t *testing.T) {
	pkg := models.Package{ID: uuid.New(), Price: decimal.NewFromInt(100), AdsAllowed: 5, PlanType: models.PlanSubscription}
	offer, err := OfferFor(pkg)
	require.NoError(t, err)

	d, err := Decide(offer, Usage{}, now)
	require.NoError(t, err)
	assert.Equal(t, StateNoActivePlan, d.State)
	assert.Equal(t, ActionPay, d.Action)

	expired := &Plan{PackageID: pkg.ID, AdsUsed: 0, AdsAllowed: 5, EndDate: now, Active: true}
	d, err = Decide(offer, Usage{Plan: expired}, now)
	require.NoError(t, err)
	assert.Equal(t, StateNoActivePlan, d.State)
	assert.True(t, d.RequiresPayment)

	other := &Plan{PackageID: uuid.New(), AdsUsed: 0, AdsAllowed: 5, EndDate: now.Add(time.Hour), Active: true}
	d, err = Decide(offer, Usage{Plan: other}, now)
	require.NoError(t, err)
	assert.Equal(t, ActionPay, d.Action)
}

func TestCanRenewFree(t *testing.T) {
	assert.True(t, CanRenewFree(2, 3))
	assert.False(t, CanRenewFree(3, 3))
	assert.False(t, CanRenewFree(4, 3))
}

func TestWindowStart(t *testing.T) {
	assert.Equal(t, now.AddDate(0, 0, -30), WindowStart(now, 0))
	assert.Equal(t, now.AddDate(0, 0, -7), WindowStart(now, 7))
}

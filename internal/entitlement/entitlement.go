// Package entitlement decides whether a user may publish an ad on a given
// package and what they must do first. It holds no I/O: callers load the
// package, the user's free-ad count and active plan and pass them in.
package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultWindowDays is the free-ad reset window when a package has none.
const DefaultWindowDays = 30

type State string

const (
	StateNoActivePlan       State = "no_active_plan"
	StateActiveSubscription State = "active_subscription"
	StateFreeTierExhausted  State = "free_tier_exhausted"
	StateFreeTierAvailable  State = "free_tier_available"
)

type Action string

const (
	ActionPublishFree Action = "publish_free"
	ActionUseQuota    Action = "use_plan_quota"
	ActionPay         Action = "requires_payment"
	ActionBlocked     Action = "blocked"
)

var ErrUnknownOffer = errors.New("unknown offer variant")

// Offer is a catalog package seen through its billing rules.
type Offer interface {
	PackageID() uuid.UUID
	Limit() int
	isOffer()
}

type FreeOffer struct {
	ID         uuid.UUID
	AdsAllowed int
	WindowDays int
}

type OneTimeOffer struct {
	ID           uuid.UUID
	Price        decimal.Decimal
	AdsAllowed   int
	DurationDays int
}

type SubscriptionOffer struct {
	ID           uuid.UUID
	Price        decimal.Decimal
	AdsAllowed   int
	DurationDays int
}

func (o FreeOffer) PackageID() uuid.UUID         { return o.ID }
func (o OneTimeOffer) PackageID() uuid.UUID      { return o.ID }
func (o SubscriptionOffer) PackageID() uuid.UUID { return o.ID }

func (o FreeOffer) Limit() int         { return o.AdsAllowed }
func (o OneTimeOffer) Limit() int      { return o.AdsAllowed }
func (o SubscriptionOffer) Limit() int { return o.AdsAllowed }

func (FreeOffer) isOffer()         {}
func (OneTimeOffer) isOffer()      {}
func (SubscriptionOffer) isOffer() {}

// OfferFor maps a catalog row onto its offer variant. A zero price always
// means free, whatever the plan type says.
func OfferFor(pkg models.Package) (Offer, error) {
	if pkg.IsFree() {
		window := pkg.DurationDays
		if window <= 0 {
			window = DefaultWindowDays
		}
		return FreeOffer{ID: pkg.ID, AdsAllowed: pkg.AdsAllowed, WindowDays: window}, nil
	}

	switch pkg.PlanType {
	case models.PlanOneTime:
		return OneTimeOffer{ID: pkg.ID, Price: pkg.Price, AdsAllowed: pkg.AdsAllowed, DurationDays: pkg.DurationDays}, nil
	case models.PlanSubscription:
		return SubscriptionOffer{ID: pkg.ID, Price: pkg.Price, AdsAllowed: pkg.AdsAllowed, DurationDays: pkg.DurationDays}, nil
	default:
		return nil, fmt.Errorf("%w: plan type %q", ErrUnknownOffer, pkg.PlanType)
	}
}

// Plan is the part of a user's active subscription row the rules need.
type Plan struct {
	PackageID  uuid.UUID
	AdsUsed    int
	AdsAllowed int
	EndDate    time.Time
	Active     bool
}

// HasQuota reports whether the plan can absorb one more submission at now.
func (p *Plan) HasQuota(now time.Time) bool {
	return p != nil && p.Active && now.Before(p.EndDate) && p.AdsUsed < p.AdsAllowed
}

// Usage is everything known about the user at decision time.
type Usage struct {
	FreeAdsCount int
	Plan         *Plan
}

type Decision struct {
	State              State      `json:"state"`
	Action             Action     `json:"action"`
	Allowed            bool       `json:"allowed"`
	RequiresPayment    bool       `json:"requires_payment"`
	IsFreeLimitReached bool       `json:"is_free_limit_reached"`
	Used               int        `json:"used"`
	Limit              int        `json:"limit"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	Message            string     `json:"message,omitempty"`
}

func (d Decision) Remaining() int {
	if d.Limit <= d.Used {
		return 0
	}
	return d.Limit - d.Used
}

// Decide applies the publishing rules for one offer.
func Decide(offer Offer, usage Usage, now time.Time) (Decision, error) {
	switch o := offer.(type) {
	case FreeOffer:
		return decideFree(o, usage), nil
	case OneTimeOffer:
		d := planState(usage.Plan, now)
		d.Action = ActionPay
		d.Allowed = true
		d.RequiresPayment = true
		return d, nil
	case SubscriptionOffer:
		return decideSubscription(o, usage.Plan, now), nil
	default:
		return Decision{}, fmt.Errorf("%w: %T", ErrUnknownOffer, offer)
	}
}

func decideFree(o FreeOffer, usage Usage) Decision {
	d := Decision{Used: usage.FreeAdsCount, Limit: o.AdsAllowed}
	if usage.FreeAdsCount < o.AdsAllowed {
		d.State = StateFreeTierAvailable
		d.Action = ActionPublishFree
		d.Allowed = true
		return d
	}
	d.State = StateFreeTierExhausted
	d.Action = ActionBlocked
	d.IsFreeLimitReached = true
	d.Message = fmt.Sprintf("You have reached the limit of %d free ads. Choose a paid package to publish more.", o.AdsAllowed)
	return d
}

func decideSubscription(o SubscriptionOffer, plan *Plan, now time.Time) Decision {
	d := planState(plan, now)
	d.Allowed = true
	if plan != nil && plan.PackageID == o.ID && plan.HasQuota(now) {
		d.Action = ActionUseQuota
		return d
	}
	d.Action = ActionPay
	d.RequiresPayment = true
	if d.State == StateActiveSubscription && plan.PackageID == o.ID {
		d.Message = "Your plan has no ads left. Renew it to publish more."
	}
	return d
}

func planState(plan *Plan, now time.Time) Decision {
	if plan == nil || !plan.Active || !now.Before(plan.EndDate) {
		return Decision{State: StateNoActivePlan}
	}
	end := plan.EndDate
	return Decision{
		State:   StateActiveSubscription,
		Used:    plan.AdsUsed,
		Limit:   plan.AdsAllowed,
		EndDate: &end,
	}
}

// CanRenewFree reports whether an expired free ad may be renewed given the
// user's current free-ad count.
func CanRenewFree(freeAdsCount, adsAllowed int) bool {
	return freeAdsCount < adsAllowed
}

// WindowStart is the beginning of the free-ad window ending at now.
func WindowStart(now time.Time, windowDays int) time.Time {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return now.AddDate(0, 0, -windowDays)
}

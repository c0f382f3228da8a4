package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/notify"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/payment"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/store"
	"github.com/google/uuid"
)

type fakePackages struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Package
}

func newFakePackages(pkgs ...models.Package) *fakePackages {
	f := &fakePackages{rows: map[uuid.UUID]models.Package{}}
	for _, p := range pkgs {
		f.rows[p.ID] = p
	}
	return f
}

func (f *fakePackages) ListActive(_ context.Context, marketID string) ([]models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Package
	for _, p := range f.rows {
		if p.MarketID == marketID && p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (f *fakePackages) Get(_ context.Context, marketID string, id uuid.UUID) (*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok || p.MarketID != marketID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f *fakePackages) Create(_ context.Context, pkg *models.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[pkg.ID] = *pkg
	return nil
}

func (f *fakePackages) Deactivate(_ context.Context, marketID string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok || p.MarketID != marketID {
		return store.ErrNotFound
	}
	p.IsActive = false
	f.rows[id] = p
	return nil
}

func (f *fakePackages) Count(_ context.Context, marketID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, p := range f.rows {
		if p.MarketID == marketID {
			n++
		}
	}
	return n, nil
}

type fakePromos struct {
	mu          sync.Mutex
	codes       map[uuid.UUID]*models.PromoCode
	redemptions map[string]*models.PromoRedemption
}

func newFakePromos(codes ...*models.PromoCode) *fakePromos {
	f := &fakePromos{codes: map[uuid.UUID]*models.PromoCode{}, redemptions: map[string]*models.PromoRedemption{}}
	for _, c := range codes {
		f.codes[c.ID] = c
	}
	return f
}

func attemptKey(userID uuid.UUID, attemptID string) string {
	return userID.String() + "/" + attemptID
}

func (f *fakePromos) FindByCode(_ context.Context, marketID, code string) (*models.PromoCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.codes {
		if c.MarketID == marketID && c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakePromos) CountRedeemed(_ context.Context, promoID, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.redemptions {
		if r.PromoCodeID == promoID && r.UserID == userID && r.Status == models.RedemptionRedeemed {
			n++
		}
	}
	return n, nil
}

func (f *fakePromos) FindAttempt(_ context.Context, userID uuid.UUID, attemptID string) (*models.PromoRedemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.redemptions[attemptKey(userID, attemptID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakePromos) Reserve(_ context.Context, r *models.PromoRedemption) (*models.PromoRedemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := attemptKey(r.UserID, r.AttemptID)
	if existing, ok := f.redemptions[key]; ok && existing.Status == models.RedemptionRedeemed {
		cp := *existing
		return &cp, nil
	}
	stored := *r
	stored.Status = models.RedemptionReserved
	f.redemptions[key] = &stored
	cp := stored
	return &cp, nil
}

func (f *fakePromos) Release(_ context.Context, userID uuid.UUID, attemptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.redemptions[attemptKey(userID, attemptID)]; ok && r.Status == models.RedemptionReserved {
		r.Status = models.RedemptionReleased
	}
	return nil
}

func (f *fakePromos) Redeem(_ context.Context, userID uuid.UUID, attemptID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.redemptions[attemptKey(userID, attemptID)]
	if !ok || r.Status == models.RedemptionReleased {
		return store.ErrNotFound
	}
	if r.Status == models.RedemptionRedeemed {
		return nil
	}
	code := f.codes[r.PromoCodeID]
	if code.MaxUses > 0 && code.UsedCount >= code.MaxUses {
		return store.ErrPromoExhausted
	}
	code.UsedCount++
	r.Status = models.RedemptionRedeemed
	r.RedeemedAt = &now
	return nil
}

func (f *fakePromos) Create(_ context.Context, promo *models.PromoCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[promo.ID] = promo
	return nil
}

func (f *fakePromos) List(_ context.Context, marketID string) ([]models.PromoCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PromoCode
	for _, c := range f.codes {
		if c.MarketID == marketID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeSubscriptions struct {
	mu     sync.Mutex
	rows   []*models.Subscription
	incErr error
}

func (f *fakeSubscriptions) GetActive(_ context.Context, marketID string, userID uuid.UUID) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.MarketID == marketID && r.UserID == userID && r.Status == models.SubscriptionActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeSubscriptions) Replace(_ context.Context, sub *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.MarketID == sub.MarketID && r.UserID == sub.UserID && r.Status == models.SubscriptionActive {
			r.Status = models.SubscriptionReplaced
		}
	}
	cp := *sub
	cp.Status = models.SubscriptionActive
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeSubscriptions) IncrementUsage(_ context.Context, marketID string, userID uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return f.incErr
	}
	for _, r := range f.rows {
		if r.MarketID == marketID && r.UserID == userID && r.Status == models.SubscriptionActive &&
			r.EndDate.After(now) && r.AdsUsed < r.AdsAllowed {
			r.AdsUsed++
			return nil
		}
	}
	return store.ErrQuotaExceeded
}

func (f *fakeSubscriptions) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rows {
		if r.Status == models.SubscriptionActive && r.EndDate.Before(now) {
			r.Status = models.SubscriptionExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeSubscriptions) active(userID uuid.UUID) *models.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.UserID == userID && r.Status == models.SubscriptionActive {
			return r
		}
	}
	return nil
}

type fakeSubmissions struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*models.ProductSubmission
	clock     func() time.Time
	createErr error
}

func newFakeSubmissions(clock func() time.Time) *fakeSubmissions {
	return &fakeSubmissions{rows: map[uuid.UUID]*models.ProductSubmission{}, clock: clock}
}

func (f *fakeSubmissions) Create(_ context.Context, sub *models.ProductSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(sub)
}

func (f *fakeSubmissions) CreateFree(_ context.Context, sub *models.ProductSubmission, since time.Time, allow func(count int64) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := allow(f.countFree(sub.MarketID, sub.UserID, since)); err != nil {
		return err
	}
	return f.insert(sub)
}

func (f *fakeSubmissions) insert(sub *models.ProductSubmission) error {
	if f.createErr != nil {
		return f.createErr
	}
	if sub.PaymentReference != nil {
		for _, r := range f.rows {
			if r.PaymentReference != nil && *r.PaymentReference == *sub.PaymentReference {
				return errors.New("duplicate key value violates unique constraint")
			}
		}
	}
	sub.CreatedAt = f.clock()
	cp := *sub
	f.rows[sub.ID] = &cp
	return nil
}

func (f *fakeSubmissions) Get(_ context.Context, marketID string, id uuid.UUID) (*models.ProductSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.MarketID != marketID {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeSubmissions) FindByPaymentReference(_ context.Context, reference string) (*models.ProductSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.PaymentReference != nil && *r.PaymentReference == reference {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeSubmissions) ListByUser(_ context.Context, marketID string, userID uuid.UUID, limit, offset int) ([]models.ProductSubmission, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProductSubmission
	for _, r := range f.rows {
		if r.MarketID == marketID && r.UserID == userID {
			out = append(out, *r)
		}
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *fakeSubmissions) ListByStatus(_ context.Context, marketID, status string, limit, offset int) ([]models.ProductSubmission, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProductSubmission
	for _, r := range f.rows {
		if r.MarketID == marketID && r.Status == status {
			out = append(out, *r)
		}
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *fakeSubmissions) countFree(marketID string, userID uuid.UUID, since time.Time) int64 {
	var n int64
	for _, r := range f.rows {
		if r.MarketID != marketID || r.UserID != userID || !r.IsFreePackage {
			continue
		}
		if r.Status != models.SubmissionPending && r.Status != models.SubmissionApproved {
			continue
		}
		at := r.CreatedAt
		if r.RenewedAt != nil {
			at = *r.RenewedAt
		}
		if !at.Before(since) {
			n++
		}
	}
	return n
}

func (f *fakeSubmissions) CountFree(_ context.Context, marketID string, userID uuid.UUID, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countFree(marketID, userID, since), nil
}

func (f *fakeSubmissions) RenewFree(_ context.Context, sub *models.ProductSubmission, since, now, expiresAt time.Time, allow func(count int64) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := allow(f.countFree(sub.MarketID, sub.UserID, since)); err != nil {
		return err
	}
	r, ok := f.rows[sub.ID]
	if !ok || r.Status != models.SubmissionExpired {
		return store.ErrNotFound
	}
	r.Status = models.SubmissionPending
	r.RenewedAt = &now
	r.ExpiresAt = &expiresAt
	sub.Status = r.Status
	sub.RenewedAt = r.RenewedAt
	sub.ExpiresAt = r.ExpiresAt
	return nil
}

func (f *fakeSubmissions) MarkUsageReconcile(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rows[id]; ok {
		r.UsageReconcileRequired = true
	}
	return nil
}

func (f *fakeSubmissions) SetStatus(_ context.Context, marketID string, id uuid.UUID, status, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.MarketID != marketID {
		return store.ErrNotFound
	}
	r.Status = status
	r.ReviewNote = note
	return nil
}

func (f *fakeSubmissions) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rows {
		if (r.Status == models.SubmissionPending || r.Status == models.SubmissionApproved) && r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			r.Status = models.SubmissionExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeSubmissions) all() []models.ProductSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ProductSubmission, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, *r)
	}
	return out
}

type fakePayments struct {
	mu   sync.Mutex
	rows map[string]*models.PaymentTransaction
}

func newFakePayments() *fakePayments {
	return &fakePayments{rows: map[string]*models.PaymentTransaction{}}
}

func (f *fakePayments) Create(_ context.Context, tx *models.PaymentTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[tx.Reference]; ok {
		return errors.New("duplicate reference")
	}
	cp := *tx
	f.rows[tx.Reference] = &cp
	return nil
}

func (f *fakePayments) GetByReference(_ context.Context, reference string) (*models.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[reference]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (f *fakePayments) Transition(_ context.Context, reference, from, to string, fields map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[reference]
	if !ok || tx.Status != from {
		return false, nil
	}
	tx.Status = to
	if v, ok := fields["gateway_response"].(string); ok {
		tx.GatewayResponse = v
	}
	if v, ok := fields["paid_at"].(time.Time); ok {
		tx.PaidAt = &v
	}
	return true, nil
}

func (f *fakePayments) AttachSubmission(_ context.Context, reference string, submissionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[reference]
	if !ok {
		return store.ErrNotFound
	}
	id := submissionID
	tx.SubmissionID = &id
	return nil
}

func (f *fakePayments) status(reference string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[reference].Status
}

type fakeGateway struct {
	mu    sync.Mutex
	tx    *payment.Transaction
	err   error
	calls int
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (*payment.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	cp := *g.tx
	cp.Reference = reference
	return &cp, nil
}

type fakeNotifier struct {
	issues []notify.PaymentIssue
}

func (n *fakeNotifier) PaymentVerificationFailed(_ context.Context, issue notify.PaymentIssue) error {
	n.issues = append(n.issues, issue)
	return nil
}

type fakeReporter struct {
	errs []error
}

func (r *fakeReporter) CaptureError(err error, _ map[string]string) {
	r.errs = append(r.errs, err)
}

type fixedCurrency string

func (c fixedCurrency) Currency(string) string { return string(c) }

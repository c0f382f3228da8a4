package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	errRefused = errors.New("refused")
	storeNow   = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
)

// newMockDB returns a postgres-dialect gorm handle over sqlmock. Single
// statements are not wrapped in transactions, so only explicit
// Transaction calls show up as Begin/Commit.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return db, mock
}

func TestIncrementUsage_GuardInUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)
	user := uuid.New()

	incr := `UPDATE "user_plan_subscriptions" SET .*ads_used \+ 1.* WHERE .*end_date > .*ads_used < ads_allowed`
	mock.ExpectExec(incr).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(incr).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, s.IncrementUsage(context.Background(), "lagos", user, storeNow))
	assert.ErrorIs(t, s.IncrementUsage(context.Background(), "lagos", user, storeNow), ErrQuotaExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransition_ClaimsOnlyFromStatus(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPaymentStore(db)

	claim := `UPDATE "payment_transactions" SET .* WHERE reference = \$\d+ AND status = \$\d+`
	mock.ExpectExec(claim).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(claim).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.Transition(context.Background(), "ref-1", models.PaymentPending, models.PaymentVerifying, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// the webhook lost the race
	ok, err = s.Transition(context.Background(), "ref-1", models.PaymentPending, models.PaymentVerifying, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

const (
	lockOwnerSQL = `SELECT .* FROM "users" WHERE .*FOR UPDATE`
	countFreeSQL = `SELECT count\(\*\) FROM "product_submissions" WHERE .*is_free_package.*COALESCE\(renewed_at, created_at\) >=`
)

func freeSubmission() *models.ProductSubmission {
	return &models.ProductSubmission{
		ID:            uuid.New(),
		MarketID:      "lagos",
		UserID:        uuid.New(),
		Title:         "Desk lamp",
		IsFreePackage: true,
		Status:        models.SubmissionPending,
	}
}

func TestCreateFree_CountsUnderOwnerLock(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubmissionStore(db)
	sub := freeSubmission()

	mock.ExpectBegin()
	mock.ExpectQuery(lockOwnerSQL).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(sub.UserID.String()))
	mock.ExpectQuery(countFreeSQL).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	var seen int64
	err := s.CreateFree(context.Background(), sub, storeNow.AddDate(0, 0, -30), func(count int64) error {
		seen = count
		return errRefused
	})
	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, int64(3), seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFree_UnknownOwner(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubmissionStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOwnerSQL).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := s.CreateFree(context.Background(), freeSubmission(), storeNow, func(int64) error {
		t.Fatal("allow must not run without the owner lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenewFree_LocksCountsAndUpdatesExpiredOnly(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubmissionStore(db)
	sub := freeSubmission()
	sub.Status = models.SubmissionExpired
	expires := storeNow.AddDate(0, 0, 30)

	renew := `UPDATE "product_submissions" SET .* WHERE id = \$\d+ AND status = \$\d+`

	mock.ExpectBegin()
	mock.ExpectQuery(lockOwnerSQL).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(sub.UserID.String()))
	mock.ExpectQuery(countFreeSQL).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(renew).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.RenewFree(context.Background(), sub, storeNow.AddDate(0, 0, -30), storeNow, expires, func(count int64) error {
		assert.Equal(t, int64(1), count)
		return nil
	}))
	assert.Equal(t, models.SubmissionPending, sub.Status)
	assert.Equal(t, expires, *sub.ExpiresAt)

	// a concurrent renewal already moved it
	again := freeSubmission()
	mock.ExpectBegin()
	mock.ExpectQuery(lockOwnerSQL).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(again.UserID.String()))
	mock.ExpectQuery(countFreeSQL).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(renew).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RenewFree(context.Background(), again, storeNow, storeNow, expires, func(int64) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeem_LocksAttemptAndGuardsMaxUses(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPromoStore(db)
	user, promoID, redemptionID := uuid.New(), uuid.New(), uuid.New()

	attempt := `SELECT \* FROM "promo_redemptions" WHERE .*attempt_id = .*FOR UPDATE`
	bump := `UPDATE "promo_codes" SET "used_count"=used_count \+ 1 WHERE .*max_uses = 0 OR used_count < max_uses`
	reservedRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "promo_code_id", "user_id", "attempt_id", "status"}).
			AddRow(redemptionID.String(), promoID.String(), user.String(), "a1", models.RedemptionReserved)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(attempt).WillReturnRows(reservedRow())
	mock.ExpectExec(bump).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	assert.ErrorIs(t, s.Redeem(context.Background(), user, "a1", storeNow), ErrPromoExhausted)

	mock.ExpectBegin()
	mock.ExpectQuery(attempt).WillReturnRows(reservedRow())
	mock.ExpectExec(bump).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "promo_redemptions" SET .*redeemed_at`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	assert.NoError(t, s.Redeem(context.Background(), user, "a1", storeNow))

	// already redeemed: nothing is bumped twice
	mock.ExpectBegin()
	mock.ExpectQuery(attempt).WillReturnRows(
		sqlmock.NewRows([]string{"id", "promo_code_id", "user_id", "attempt_id", "status"}).
			AddRow(redemptionID.String(), promoID.String(), user.String(), "a1", models.RedemptionRedeemed))
	mock.ExpectCommit()
	assert.NoError(t, s.Redeem(context.Background(), user, "a1", storeNow))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_LocksPromoAndKeepsRedeemedAttempt(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPromoStore(db)
	user, promoID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "promo_codes" WHERE id = .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).AddRow(promoID.String(), "SAVE20"))
	mock.ExpectQuery(`SELECT \* FROM "promo_redemptions" WHERE .*attempt_id = .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "promo_code_id", "user_id", "attempt_id", "status"}).
			AddRow(uuid.NewString(), promoID.String(), user.String(), "a1", models.RedemptionRedeemed))
	mock.ExpectCommit()

	stored, err := s.Reserve(context.Background(), &models.PromoRedemption{PromoCodeID: promoID, UserID: user, AttemptID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, models.RedemptionRedeemed, stored.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

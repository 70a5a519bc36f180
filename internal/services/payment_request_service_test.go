package services

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/craftbridge/backend/internal/config"
	"github.com/craftbridge/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func testPlatformConfig() *config.Platform {
	return &config.Platform{
		WithdrawalWindowStartDay: 25,
		WithdrawalWindowEndDay:   31,
		MinWithdrawalPoints:      20,
		PointRateKobo:            50000,
		PlatformCommissionBps:    1000,
		ReferralCommissionBps:    200,
		EscrowGraceDays:          5,
		SweepBatchSize:           50,
	}
}

// newPaymentServiceForTest wires the service against one mocked database.
// Notifications and referral credits run post-commit against a separate mock
// so their goroutines never consume the expectations under test.
func newPaymentServiceForTest(t *testing.T) (*PaymentRequestService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	sideDB, _, err := sqlmock.New()
	assert.NoError(t, err)

	cfg := testPlatformConfig()
	ledger := NewLedgerService(db)
	wallets := NewWalletService(db, nil)
	notifier := NewNotificationService(sideDB, cfg)
	referrals := NewReferralService(sideDB, NewLedgerService(sideDB), cfg)

	service := NewPaymentRequestService(db, ledger, wallets, cfg, notifier, referrals)
	service.now = func() time.Time {
		return time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC) // day 27, window open
	}

	return service, mock, func() {
		db.Close()
		sideDB.Close()
	}
}

func withdrawalInput(points int64) models.WithdrawalInput {
	return models.WithdrawalInput{
		PointsRequested: points,
		AccountName:     "Jane Doe",
		AccountNumber:   "0123456789",
		BankCode:        "058",
	}
}

func TestPaymentRequestService_CreateWithdrawal(t *testing.T) {
	service, mock, cleanup := newPaymentServiceForTest(t)
	defer cleanup()

	t.Run("locks points and snapshots the rate", func(t *testing.T) {
		mock.ExpectBegin()
		expectWalletLock(mock, walletRows(0, 50, 0, 50, 1))
		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(0), int64(20), int64(30), int64(50), sqlmock.AnyArg(), "user1", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO payment_requests").
			WithArgs(sqlmock.AnyArg(), "user1", "withdrawal", "pending", "manual",
				int64(30), int64(50000), int64(1500000), "Jane Doe", "0123456789", "058", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req, err := service.CreateWithdrawal(context.Background(), "user1", withdrawalInput(30))
		assert.NoError(t, err)
		assert.Equal(t, models.StatusPending, req.Status)
		assert.Equal(t, int64(30), req.PointsRequested)
		assert.Equal(t, int64(50000), req.RateKoboPerPoint)
		assert.Equal(t, int64(1500000), req.PayoutKobo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects requests outside the monthly window", func(t *testing.T) {
		service.now = func() time.Time {
			return time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
		}
		defer func() {
			service.now = func() time.Time {
				return time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
			}
		}()

		_, err := service.CreateWithdrawal(context.Background(), "user1", withdrawalInput(30))
		assert.ErrorIs(t, err, ErrWithdrawalWindowClosed)
	})

	t.Run("rejects below minimum points", func(t *testing.T) {
		_, err := service.CreateWithdrawal(context.Background(), "user1", withdrawalInput(5))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects when available points are short", func(t *testing.T) {
		mock.ExpectBegin()
		expectWalletLock(mock, walletRows(0, 10, 0, 10, 1))
		mock.ExpectRollback()

		_, err := service.CreateWithdrawal(context.Background(), "user1", withdrawalInput(30))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects an unknown bank code", func(t *testing.T) {
		in := withdrawalInput(30)
		in.BankCode = "999"

		_, err := service.CreateWithdrawal(context.Background(), "user1", in)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("missing wallet reads as insufficient", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, balance_kobo, available_points, locked_points, total_points, version").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
		mock.ExpectRollback()

		_, err := service.CreateWithdrawal(context.Background(), "user1", withdrawalInput(30))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}

func pendingRequestRow(kind models.RequestKind, amountKobo, points, payout int64, planKey, bankRef string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "kind", "status", "amount_kobo", "points_requested", "payout_kobo", "plan_key", "bank_reference"}).
		AddRow("req1", "user1", string(kind), "pending", amountKobo, points, payout, planKey, bankRef)
}

func processedRequestRow(kind models.RequestKind, status models.RequestStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "kind", "status", "amount_kobo", "points_requested", "payout_kobo", "plan_key", "bank_reference"}).
		AddRow("req1", "user1", string(kind), string(status), int64(0), int64(0), int64(0), "", "")
}

func expectRequestLock(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT id, user_id, kind, status, amount_kobo").
		WithArgs("req1").
		WillReturnRows(rows)
}

func TestPaymentRequestService_Approve(t *testing.T) {
	service, mock, cleanup := newPaymentServiceForTest(t)
	defer cleanup()

	t.Run("funding approval credits the wallet once", func(t *testing.T) {
		mock.ExpectBegin()
		expectRequestLock(mock, pendingRequestRow(models.KindFunding, 5000000, 0, 0, "", "TXN123"))
		expectWalletLock(mock, walletRows(0, 0, 0, 0, 1))
		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(5000000), int64(0), int64(0), int64(0), sqlmock.AnyArg(), "user1", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE payment_requests").
			WithArgs("req1", "TXN123", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req, err := service.Approve(context.Background(), "admin1", "req1", "TXN123")
		assert.NoError(t, err)
		assert.Equal(t, models.StatusApproved, req.Status)
		assert.NotNil(t, req.ProcessedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("funding approval creates a missing wallet", func(t *testing.T) {
		mock.ExpectBegin()
		expectRequestLock(mock, pendingRequestRow(models.KindFunding, 5000000, 0, 0, "", "TXN456"))
		expectWalletLock(mock, sqlmock.NewRows([]string{"user_id"}))
		mock.ExpectExec("INSERT INTO wallets").
			WithArgs("user1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectWalletLock(mock, walletRows(0, 0, 0, 0, 0))
		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(5000000), int64(0), int64(0), int64(0), sqlmock.AnyArg(), "user1", int64(0)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE payment_requests").
			WithArgs("req1", "TXN456", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req, err := service.Approve(context.Background(), "admin1", "req1", "TXN456")
		assert.NoError(t, err)
		assert.Equal(t, models.StatusApproved, req.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second approval is a conflict and mutates nothing", func(t *testing.T) {
		mock.ExpectBegin()
		expectRequestLock(mock, processedRequestRow(models.KindFunding, models.StatusApproved))
		mock.ExpectRollback()

		_, err := service.Approve(context.Background(), "admin1", "req1", "TXN123")
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("withdrawal approval burns the locked points", func(t *testing.T) {
		mock.ExpectBegin()
		expectRequestLock(mock, pendingRequestRow(models.KindWithdrawal, 0, 30, 1500000, "", ""))
		expectWalletLock(mock, walletRows(0, 20, 30, 50, 2))
		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(0), int64(20), int64(0), int64(20), sqlmock.AnyArg(), "user1", int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE payment_requests").
			WithArgs("req1", "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req, err := service.Approve(context.Background(), "admin1", "req1", "")
		assert.NoError(t, err)
		assert.Equal(t, models.StatusApproved, req.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("subscription approval activates the plan", func(t *testing.T) {
		mock.ExpectBegin()
		expectRequestLock(mock, pendingRequestRow(models.KindSubscription, 1000000, 0, 0, "pro", ""))
		mock.ExpectExec("INSERT INTO subscriptions").
			WithArgs(sqlmock.AnyArg(), "user1", "pro", "req1", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE payment_requests").
			WithArgs("req1", "paystack ref ok", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req, err := service.Approve(context.Background(), "admin1", "req1", "paystack ref ok")
		assert.NoError(t, err)
		assert.Equal(t, models.StatusApproved, req.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("losing the status race rolls everything back", func(t *testing.T) {
		mock.ExpectBegin()
		expectRequestLock(mock, pendingRequestRow(models.KindFunding, 5000000, 0, 0, "", ""))
		expectWalletLock(mock, walletRows(0, 0, 0, 0, 1))
		mock.ExpectExec("UPDATE wallets").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE payment_requests").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := service.Approve(context.Background(), "admin1", "req1", "")
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown request", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, kind, status, amount_kobo").
			WithArgs("req1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := service.Approve(context.Background(), "admin1", "req1", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPaymentRequestService_Reject(t *testing.T) {
	service, mock, cleanup := newPaymentServiceForTest(t)
	defer cleanup()

	t.Run("withdrawal rejection restores the locked points", func(t *testing.T) {
		mock.ExpectBegin()
		expectRequestLock(mock, pendingRequestRow(models.KindWithdrawal, 0, 30, 1500000, "", ""))
		expectWalletLock(mock, walletRows(0, 20, 30, 50, 2))
		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(0), int64(50), int64(0), int64(50), sqlmock.AnyArg(), "user1", int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE payment_requests").
			WithArgs("req1", "bad bank details", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req, err := service.Reject(context.Background(), "admin1", "req1", "bad bank details")
		assert.NoError(t, err)
		assert.Equal(t, models.StatusRejected, req.Status)
		assert.Equal(t, "bad bank details", req.AdminNotes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reason is mandatory", func(t *testing.T) {
		_, err := service.Reject(context.Background(), "admin1", "req1", "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("funding rejection touches no balance", func(t *testing.T) {
		mock.ExpectBegin()
		expectRequestLock(mock, pendingRequestRow(models.KindFunding, 5000000, 0, 0, "", ""))
		mock.ExpectExec("UPDATE payment_requests").
			WithArgs("req1", "no transfer received", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		req, err := service.Reject(context.Background(), "admin1", "req1", "no transfer received")
		assert.NoError(t, err)
		assert.Equal(t, models.StatusRejected, req.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejecting a resolved request is a conflict", func(t *testing.T) {
		mock.ExpectBegin()
		expectRequestLock(mock, processedRequestRow(models.KindFunding, models.StatusRejected))
		mock.ExpectRollback()

		_, err := service.Reject(context.Background(), "admin1", "req1", "again")
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	})
}

func TestPaymentRequestService_Review(t *testing.T) {
	service, mock, cleanup := newPaymentServiceForTest(t)
	defer cleanup()

	t.Run("one failure never aborts the rest", func(t *testing.T) {
		// req1 approves cleanly.
		mock.ExpectBegin()
		expectRequestLock(mock, pendingRequestRow(models.KindFunding, 5000000, 0, 0, "", ""))
		expectWalletLock(mock, walletRows(0, 0, 0, 0, 1))
		mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE payment_requests").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		// req2 was already resolved.
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, kind, status, amount_kobo").
			WithArgs("req2").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "kind", "status", "amount_kobo", "points_requested", "payout_kobo", "plan_key", "bank_reference"}).
				AddRow("req2", "user2", "funding", "approved", int64(100), int64(0), int64(0), "", ""))
		mock.ExpectRollback()

		results := service.Review(context.Background(), "admin1", "approve", []string{"req1", "req2"}, "")
		assert.Len(t, results, 2)
		assert.True(t, results[0].Succeeded)
		assert.False(t, results[1].Succeeded)
		assert.Equal(t, ErrAlreadyProcessed.Error(), results[1].Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentRequestService_CreateFundingRequest_Handler(t *testing.T) {
	service, mock, cleanup := newPaymentServiceForTest(t)
	defer cleanup()

	t.Run("creates a pending request", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO payment_requests").
			WillReturnResult(sqlmock.NewResult(0, 1))

		body := []byte(`{"amountKobo":5000000,"bankReference":"TXN123","accountName":"Jane Doe","accountNumber":"0123456789","bankCode":"058","proofRef":"uploads/proof-1.png"}`)
		r := httptest.NewRequest("POST", "/payments/funding", bytes.NewBuffer(body))
		r = r.WithContext(context.WithValue(r.Context(), "userID", "user1"))
		w := httptest.NewRecorder()

		service.CreateFundingRequest(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects invalid body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/payments/funding", bytes.NewBuffer([]byte("invalid")))
		r = r.WithContext(context.WithValue(r.Context(), "userID", "user1"))
		w := httptest.NewRecorder()

		service.CreateFundingRequest(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects an unknown bank code", func(t *testing.T) {
		body := []byte(`{"amountKobo":5000000,"bankReference":"TXN123","accountName":"Jane Doe","accountNumber":"0123456789","bankCode":"999","proofRef":"uploads/proof-1.png"}`)
		r := httptest.NewRequest("POST", "/payments/funding", bytes.NewBuffer(body))
		r = r.WithContext(context.WithValue(r.Context(), "userID", "user1"))
		w := httptest.NewRecorder()

		service.CreateFundingRequest(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects missing proof", func(t *testing.T) {
		body := []byte(`{"amountKobo":5000000,"bankReference":"TXN123","accountName":"Jane Doe","accountNumber":"0123456789","bankCode":"058","proofRef":""}`)
		r := httptest.NewRequest("POST", "/payments/funding", bytes.NewBuffer(body))
		r = r.WithContext(context.WithValue(r.Context(), "userID", "user1"))
		w := httptest.NewRecorder()

		service.CreateFundingRequest(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("requires authentication", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/payments/funding", bytes.NewBuffer([]byte(`{}`)))
		w := httptest.NewRecorder()

		service.CreateFundingRequest(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPaymentRequestService_CreateWithdrawalRequest_Handler(t *testing.T) {
	service, _, cleanup := newPaymentServiceForTest(t)
	defer cleanup()

	t.Run("closed window maps to 403", func(t *testing.T) {
		service.now = func() time.Time {
			return time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
		}

		body := []byte(`{"pointsRequested":30,"accountName":"Jane Doe","accountNumber":"0123456789","bankCode":"058"}`)
		r := httptest.NewRequest("POST", "/payments/withdrawal", bytes.NewBuffer(body))
		r = r.WithContext(context.WithValue(r.Context(), "userID", "user1"))
		w := httptest.NewRecorder()

		service.CreateWithdrawalRequest(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

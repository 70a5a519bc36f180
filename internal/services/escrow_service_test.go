package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/craftbridge/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func newEscrowServiceForTest(t *testing.T) (*EscrowService, sqlmock.Sqlmock, func()) {
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

	service := NewEscrowService(db, ledger, wallets, cfg, notifier, referrals)
	return service, mock, func() {
		db.Close()
		sideDB.Close()
	}
}

func heldEscrowRow(apprenticeID any, amountKobo int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "job_id", "client_id", "apprentice_id", "amount_kobo", "status", "auto_release_date", "created_at"}).
		AddRow("esc1", "job1", "client1", apprenticeID, amountKobo, "held", time.Now().Add(240*time.Hour), time.Now())
}

func finalizedEscrowRow(status models.EscrowStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "job_id", "client_id", "apprentice_id", "amount_kobo", "status", "auto_release_date", "created_at"}).
		AddRow("esc1", "job1", "client1", "appr1", int64(15000000), string(status), time.Now(), time.Now())
}

func expectEscrowLock(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT id, job_id, client_id, apprentice_id, amount_kobo, status").
		WithArgs("esc1").
		WillReturnRows(rows)
}

func TestEscrowService_Fund(t *testing.T) {
	service, mock, cleanup := newEscrowServiceForTest(t)
	defer cleanup()

	t.Run("debit and escrow record are one transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, balance_kobo, available_points, locked_points, total_points, version").
			WithArgs("client1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance_kobo", "available_points", "locked_points", "total_points", "version"}).
				AddRow("client1", int64(20000000), int64(0), int64(0), int64(0), int64(1)))
		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(5000000), int64(0), int64(0), int64(0), sqlmock.AnyArg(), "client1", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO escrow_transactions").
			WithArgs(sqlmock.AnyArg(), "job1", "client1", "appr1", int64(15000000), "held", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		esc, err := service.Fund(context.Background(), "client1", models.FundEscrowInput{
			JobID:        "job1",
			ApprenticeID: "appr1",
			AmountKobo:   15000000,
			DeadlineDays: 5,
		})
		assert.NoError(t, err)
		assert.Equal(t, models.EscrowHeld, esc.Status)
		assert.Equal(t, int64(15000000), esc.AmountKobo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance creates nothing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, balance_kobo, available_points, locked_points, total_points, version").
			WithArgs("client1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance_kobo", "available_points", "locked_points", "total_points", "version"}).
				AddRow("client1", int64(100), int64(0), int64(0), int64(0), int64(1)))
		mock.ExpectRollback()

		_, err := service.Fund(context.Background(), "client1", models.FundEscrowInput{
			JobID:        "job1",
			AmountKobo:   15000000,
			DeadlineDays: 5,
		})
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("grace period extends the auto-release date", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, balance_kobo").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance_kobo", "available_points", "locked_points", "total_points", "version"}).
				AddRow("client1", int64(20000000), int64(0), int64(0), int64(0), int64(1)))
		mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO escrow_transactions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		service.now = func() time.Time { return now }

		esc, err := service.Fund(context.Background(), "client1", models.FundEscrowInput{
			JobID:        "job1",
			AmountKobo:   15000000,
			DeadlineDays: 10,
		})
		assert.NoError(t, err)
		// 10 deadline days + 5 grace days
		assert.Equal(t, now.AddDate(0, 0, 15), esc.AutoReleaseDate)
	})
}

func TestEscrowService_Release(t *testing.T) {
	service, mock, cleanup := newEscrowServiceForTest(t)
	defer cleanup()

	t.Run("pays amount minus commission to the apprentice", func(t *testing.T) {
		mock.ExpectBegin()
		expectEscrowLock(mock, heldEscrowRow("appr1", 15000000))
		mock.ExpectQuery("SELECT user_id, balance_kobo, available_points, locked_points, total_points, version").
			WithArgs("appr1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance_kobo", "available_points", "locked_points", "total_points", "version"}).
				AddRow("appr1", int64(0), int64(0), int64(0), int64(0), int64(1)))
		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(13500000), int64(0), int64(0), int64(0), sqlmock.AnyArg(), "appr1", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE escrow_transactions").
			WithArgs("esc1", int64(1500000), int64(13500000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		esc, err := service.Release(context.Background(), "client1", "member", "esc1", false)
		assert.NoError(t, err)
		assert.Equal(t, models.EscrowReleased, esc.Status)
		assert.Equal(t, int64(1500000), esc.CommissionKobo)
		assert.Equal(t, int64(13500000), esc.PayoutKobo)
		assert.NotNil(t, esc.ReleasedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first payout creates the apprentice wallet", func(t *testing.T) {
		mock.ExpectBegin()
		expectEscrowLock(mock, heldEscrowRow("appr1", 15000000))
		mock.ExpectQuery("SELECT user_id, balance_kobo, available_points, locked_points, total_points, version").
			WithArgs("appr1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
		mock.ExpectExec("INSERT INTO wallets").
			WithArgs("appr1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT user_id, balance_kobo, available_points, locked_points, total_points, version").
			WithArgs("appr1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance_kobo", "available_points", "locked_points", "total_points", "version"}).
				AddRow("appr1", int64(0), int64(0), int64(0), int64(0), int64(0)))
		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(13500000), int64(0), int64(0), int64(0), sqlmock.AnyArg(), "appr1", int64(0)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE escrow_transactions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		esc, err := service.Release(context.Background(), "client1", "member", "esc1", false)
		assert.NoError(t, err)
		assert.Equal(t, models.EscrowReleased, esc.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second release is a conflict", func(t *testing.T) {
		mock.ExpectBegin()
		expectEscrowLock(mock, finalizedEscrowRow(models.EscrowReleased))
		mock.ExpectRollback()

		_, err := service.Release(context.Background(), "client1", "member", "esc1", false)
		assert.ErrorIs(t, err, ErrAlreadyFinalized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("only the client or an admin may release", func(t *testing.T) {
		mock.ExpectBegin()
		expectEscrowLock(mock, heldEscrowRow("appr1", 15000000))
		mock.ExpectRollback()

		_, err := service.Release(context.Background(), "someone-else", "member", "esc1", false)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("no apprentice assigned", func(t *testing.T) {
		mock.ExpectBegin()
		expectEscrowLock(mock, heldEscrowRow(nil, 15000000))
		mock.ExpectRollback()

		_, err := service.Release(context.Background(), "client1", "member", "esc1", false)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("auto release skips disputed escrows", func(t *testing.T) {
		mock.ExpectBegin()
		expectEscrowLock(mock, heldEscrowRow("appr1", 15000000))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("esc1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err := service.Release(context.Background(), "system", "system", "esc1", true)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("losing the status race rolls the credit back", func(t *testing.T) {
		mock.ExpectBegin()
		expectEscrowLock(mock, heldEscrowRow("appr1", 15000000))
		mock.ExpectQuery("SELECT user_id, balance_kobo").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance_kobo", "available_points", "locked_points", "total_points", "version"}).
				AddRow("appr1", int64(0), int64(0), int64(0), int64(0), int64(1)))
		mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE escrow_transactions").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := service.Release(context.Background(), "client1", "member", "esc1", false)
		assert.ErrorIs(t, err, ErrAlreadyFinalized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscrowService_Refund(t *testing.T) {
	service, mock, cleanup := newEscrowServiceForTest(t)
	defer cleanup()

	t.Run("returns the full amount to the client", func(t *testing.T) {
		mock.ExpectBegin()
		expectEscrowLock(mock, heldEscrowRow("appr1", 15000000))
		mock.ExpectQuery("SELECT user_id, balance_kobo, available_points, locked_points, total_points, version").
			WithArgs("client1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance_kobo", "available_points", "locked_points", "total_points", "version"}).
				AddRow("client1", int64(5000000), int64(0), int64(0), int64(0), int64(2)))
		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(20000000), int64(0), int64(0), int64(0), sqlmock.AnyArg(), "client1", int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE escrow_transactions").
			WithArgs("esc1", "work never started", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		esc, err := service.Refund(context.Background(), "admin1", "admin", "esc1", "work never started")
		assert.NoError(t, err)
		assert.Equal(t, models.EscrowRefunded, esc.Status)
		assert.Equal(t, "work never started", esc.RefundReason)
		assert.NotNil(t, esc.RefundedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reason is mandatory", func(t *testing.T) {
		_, err := service.Refund(context.Background(), "admin1", "admin", "esc1", "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("refund after release is a conflict", func(t *testing.T) {
		mock.ExpectBegin()
		expectEscrowLock(mock, finalizedEscrowRow(models.EscrowReleased))
		mock.ExpectRollback()

		_, err := service.Refund(context.Background(), "admin1", "admin", "esc1", "changed my mind")
		assert.ErrorIs(t, err, ErrAlreadyFinalized)
	})
}

func TestEscrowService_ReleaseDueIDs(t *testing.T) {
	service, mock, cleanup := newEscrowServiceForTest(t)
	defer cleanup()

	t.Run("lists undisputed escrows past their date", func(t *testing.T) {
		mock.ExpectQuery("SELECT e.id").
			WithArgs(sqlmock.AnyArg(), 50).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("esc1").AddRow("esc2"))

		ids, err := service.ReleaseDueIDs(context.Background(), 50)
		assert.NoError(t, err)
		assert.Equal(t, []string{"esc1", "esc2"}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEscrowService_Disputes(t *testing.T) {
	service, mock, cleanup := newEscrowServiceForTest(t)
	defer cleanup()

	t.Run("party files a dispute on a held escrow", func(t *testing.T) {
		mock.ExpectQuery("SELECT client_id, apprentice_id, status FROM escrow_transactions").
			WithArgs("esc1").
			WillReturnRows(sqlmock.NewRows([]string{"client_id", "apprentice_id", "status"}).
				AddRow("client1", "appr1", "held"))
		mock.ExpectExec("INSERT INTO disputes").
			WithArgs(sqlmock.AnyArg(), "esc1", "appr1", "client unreachable", "open", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		d, err := service.FileDispute(context.Background(), "appr1", "esc1", "client unreachable")
		assert.NoError(t, err)
		assert.Equal(t, models.DisputeOpen, d.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("outsiders cannot file", func(t *testing.T) {
		mock.ExpectQuery("SELECT client_id, apprentice_id, status FROM escrow_transactions").
			WithArgs("esc1").
			WillReturnRows(sqlmock.NewRows([]string{"client_id", "apprentice_id", "status"}).
				AddRow("client1", "appr1", "held"))

		_, err := service.FileDispute(context.Background(), "stranger", "esc1", "not my job")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("refund resolution pays the client and closes the dispute", func(t *testing.T) {
		mock.ExpectQuery("SELECT escrow_id, status FROM disputes").
			WithArgs("disp1").
			WillReturnRows(sqlmock.NewRows([]string{"escrow_id", "status"}).AddRow("esc1", "open"))

		mock.ExpectBegin()
		expectEscrowLock(mock, heldEscrowRow("appr1", 15000000))
		mock.ExpectQuery("SELECT user_id, balance_kobo").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance_kobo", "available_points", "locked_points", "total_points", "version"}).
				AddRow("client1", int64(0), int64(0), int64(0), int64(0), int64(1)))
		mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE escrow_transactions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		mock.ExpectExec("UPDATE disputes").
			WithArgs("disp1", "refund", "admin1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		esc, err := service.ResolveDispute(context.Background(), "admin1", "disp1", "refund", "client wins")
		assert.NoError(t, err)
		assert.Equal(t, models.EscrowRefunded, esc.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("escrow settled elsewhere still closes the dispute", func(t *testing.T) {
		mock.ExpectQuery("SELECT escrow_id, status FROM disputes").
			WithArgs("disp1").
			WillReturnRows(sqlmock.NewRows([]string{"escrow_id", "status"}).AddRow("esc1", "open"))

		// An admin released the escrow directly while the dispute was open.
		mock.ExpectBegin()
		expectEscrowLock(mock, finalizedEscrowRow(models.EscrowReleased))
		mock.ExpectRollback()

		mock.ExpectQuery("SELECT id, job_id, client_id, apprentice_id, amount_kobo, status, commission_kobo, payout_kobo").
			WithArgs("esc1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "client_id", "apprentice_id", "amount_kobo", "status",
				"commission_kobo", "payout_kobo", "refund_reason", "auto_release_date", "created_at", "released_at", "refunded_at"}).
				AddRow("esc1", "job1", "client1", "appr1", int64(15000000), "released",
					int64(1500000), int64(13500000), "", time.Now(), time.Now(), time.Now(), nil))

		// The dispute closes with the outcome that actually happened, not the
		// requested one.
		mock.ExpectExec("UPDATE disputes").
			WithArgs("disp1", "release", "admin1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		esc, err := service.ResolveDispute(context.Background(), "admin1", "disp1", "refund", "client wins")
		assert.NoError(t, err)
		assert.Equal(t, models.EscrowReleased, esc.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid resolution", func(t *testing.T) {
		_, err := service.ResolveDispute(context.Background(), "admin1", "disp1", "split", "")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/craftbridge/backend/internal/models"
	"github.com/google/uuid"
)

// LedgerService owns every wallet mutation. Callers open the database
// transaction; the *Tx primitives lock the wallet row, apply the delta,
// bump the optimistic version, and append an audit entry. A mutation that
// would break the points invariant or overdraw a bucket fails the whole
// transaction.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// CreditBalanceTx adds amountKobo to the wallet's NGN balance. The wallet
// row is created on first touch: a user's first credit must not depend on
// them having opened their wallet page.
func (s *LedgerService) CreditBalanceTx(tx *sql.Tx, userID string, amountKobo int64, reference, description string) error {
	if amountKobo <= 0 {
		return fmt.Errorf("%w: credit amount must be positive", ErrValidation)
	}
	w, err := s.lockOrCreateWallet(tx, userID)
	if err != nil {
		return err
	}
	w.BalanceKobo += amountKobo
	if err := s.applyWallet(tx, w); err != nil {
		return err
	}
	return s.appendEntry(tx, w, models.EntryBalanceCredit, amountKobo, 0, reference, description)
}

// DebitBalanceTx removes amountKobo from the wallet's NGN balance.
func (s *LedgerService) DebitBalanceTx(tx *sql.Tx, userID string, amountKobo int64, reference, description string) error {
	if amountKobo <= 0 {
		return fmt.Errorf("%w: debit amount must be positive", ErrValidation)
	}
	w, err := s.lockWallet(tx, userID)
	if err != nil {
		return err
	}
	if w.BalanceKobo < amountKobo {
		return ErrInsufficientBalance
	}
	w.BalanceKobo -= amountKobo
	if err := s.applyWallet(tx, w); err != nil {
		return err
	}
	return s.appendEntry(tx, w, models.EntryBalanceDebit, -amountKobo, 0, reference, description)
}

// LockPointsTx moves points from available to locked, backing a new
// withdrawal request.
func (s *LedgerService) LockPointsTx(tx *sql.Tx, userID string, points int64, reference, description string) error {
	if points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrValidation)
	}
	w, err := s.lockWallet(tx, userID)
	if err != nil {
		return err
	}
	if w.AvailablePoints < points {
		return ErrInsufficientBalance
	}
	w.AvailablePoints -= points
	w.LockedPoints += points
	if err := s.applyWallet(tx, w); err != nil {
		return err
	}
	return s.appendEntry(tx, w, models.EntryPointsLock, 0, -points, reference, description)
}

// UnlockPointsTx reverses a lock after a withdrawal rejection.
func (s *LedgerService) UnlockPointsTx(tx *sql.Tx, userID string, points int64, reference, description string) error {
	if points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrValidation)
	}
	w, err := s.lockWallet(tx, userID)
	if err != nil {
		return err
	}
	if w.LockedPoints < points {
		return fmt.Errorf("wallet %s has %d locked points, cannot unlock %d", userID, w.LockedPoints, points)
	}
	w.LockedPoints -= points
	w.AvailablePoints += points
	if err := s.applyWallet(tx, w); err != nil {
		return err
	}
	return s.appendEntry(tx, w, models.EntryPointsUnlock, 0, points, reference, description)
}

// BurnLockedPointsTx removes locked points from the wallet entirely: the
// withdrawal was approved and cash left for the bank.
func (s *LedgerService) BurnLockedPointsTx(tx *sql.Tx, userID string, points int64, reference, description string) error {
	if points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrValidation)
	}
	w, err := s.lockWallet(tx, userID)
	if err != nil {
		return err
	}
	if w.LockedPoints < points {
		return fmt.Errorf("wallet %s has %d locked points, cannot burn %d", userID, w.LockedPoints, points)
	}
	w.LockedPoints -= points
	w.TotalPoints -= points
	if err := s.applyWallet(tx, w); err != nil {
		return err
	}
	return s.appendEntry(tx, w, models.EntryPointsBurn, 0, -points, reference, description)
}

// CreditPointsTx adds newly earned points to the available bucket, creating
// the wallet row on first touch.
func (s *LedgerService) CreditPointsTx(tx *sql.Tx, userID string, points int64, reference, description string) error {
	if points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrValidation)
	}
	w, err := s.lockOrCreateWallet(tx, userID)
	if err != nil {
		return err
	}
	w.AvailablePoints += points
	w.TotalPoints += points
	if err := s.applyWallet(tx, w); err != nil {
		return err
	}
	return s.appendEntry(tx, w, models.EntryPointsCredit, 0, points, reference, description)
}

func (s *LedgerService) lockWallet(tx *sql.Tx, userID string) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(`
		SELECT user_id, balance_kobo, available_points, locked_points, total_points, version
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE`, userID).
		Scan(&w.UserID, &w.BalanceKobo, &w.AvailablePoints, &w.LockedPoints, &w.TotalPoints, &w.Version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet %s: %w", userID, err)
	}
	return &w, nil
}

// lockOrCreateWallet is the credit-path variant of lockWallet: a missing row
// is inserted and locked instead of failing. Debits and point locks keep the
// ErrNotFound behaviour, since a wallet that never existed cannot cover them.
func (s *LedgerService) lockOrCreateWallet(tx *sql.Tx, userID string) (*models.Wallet, error) {
	w, err := s.lockWallet(tx, userID)
	if !errors.Is(err, ErrNotFound) {
		return w, err
	}
	if _, err := tx.Exec(`
		INSERT INTO wallets (user_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to create wallet %s: %w", userID, err)
	}
	return s.lockWallet(tx, userID)
}

func (s *LedgerService) applyWallet(tx *sql.Tx, w *models.Wallet) error {
	w.TotalPoints = w.AvailablePoints + w.LockedPoints
	if w.BalanceKobo < 0 || w.AvailablePoints < 0 || w.LockedPoints < 0 {
		return fmt.Errorf("wallet %s would go negative", w.UserID)
	}

	result, err := tx.Exec(`
		UPDATE wallets
		SET balance_kobo = $1, available_points = $2, locked_points = $3, total_points = $4, version = version + 1, updated_at = $5
		WHERE user_id = $6 AND version = $7`,
		w.BalanceKobo, w.AvailablePoints, w.LockedPoints, w.TotalPoints, time.Now(), w.UserID, w.Version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for wallet %s", w.UserID)
	}
	return nil
}

func (s *LedgerService) appendEntry(tx *sql.Tx, w *models.Wallet, entryType string, amountKobo, points int64, reference, description string) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (id, wallet_user_id, entry_type, amount_kobo, points, balance_after_kobo, points_after, reference, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New().String(), w.UserID, entryType, amountKobo, points, w.BalanceKobo, w.TotalPoints, reference, description, time.Now())
	return err
}

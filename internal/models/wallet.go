package models

import (
	"time"
)

// Wallet holds a user's spendable NGN balance (in kobo) and their earned
// points. Points exist in two buckets: available and locked. Locked points
// back an in-flight withdrawal request and cannot be spent again until the
// request is rejected.
//
// Invariant: AvailablePoints + LockedPoints == TotalPoints.
type Wallet struct {
	UserID          string    `json:"user_id" db:"user_id"`
	BalanceKobo     int64     `json:"balance_kobo" db:"balance_kobo"`
	AvailablePoints int64     `json:"available_points" db:"available_points"`
	LockedPoints    int64     `json:"locked_points" db:"locked_points"`
	TotalPoints     int64     `json:"total_points" db:"total_points"`
	Version         int64     `json:"version" db:"version"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// PointsConsistent reports whether the points buckets add up.
func (w *Wallet) PointsConsistent() bool {
	return w.AvailablePoints+w.LockedPoints == w.TotalPoints
}

// LedgerEntry is an append-only audit record for every wallet mutation.
// Amounts are signed: positive for credits, negative for debits. Exactly one
// of AmountKobo/Points is non-zero depending on which bucket moved.
type LedgerEntry struct {
	ID               string    `json:"id" db:"id"`
	WalletUserID     string    `json:"wallet_user_id" db:"wallet_user_id"`
	EntryType        string    `json:"entry_type" db:"entry_type"`
	AmountKobo       int64     `json:"amount_kobo" db:"amount_kobo"`
	Points           int64     `json:"points" db:"points"`
	BalanceAfterKobo int64     `json:"balance_after_kobo" db:"balance_after_kobo"`
	PointsAfter      int64     `json:"points_after" db:"points_after"`
	Reference        string    `json:"reference" db:"reference"`
	Description      string    `json:"description" db:"description"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Ledger entry types.
const (
	EntryBalanceCredit = "BALANCE_CREDIT"
	EntryBalanceDebit  = "BALANCE_DEBIT"
	EntryPointsLock    = "POINTS_LOCK"
	EntryPointsUnlock  = "POINTS_UNLOCK"
	EntryPointsBurn    = "POINTS_BURN"
	EntryPointsCredit  = "POINTS_CREDIT"
)

package models

import (
	"time"
)

// Referral links a referred user to their referrer. Written at signup by the
// identity flow; this service only reads it.
type Referral struct {
	ID             string    `json:"id" db:"id"`
	ReferrerID     string    `json:"referrer_id" db:"referrer_id"`
	ReferredUserID string    `json:"referred_user_id" db:"referred_user_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Referral earning source types.
const (
	EarningSourceSubscription = "subscription"
	EarningSourceEscrow       = "escrow_release"
)

// ReferralEarning is a derived ledger record: points credited to a referrer
// because a user they referred paid a subscription or had an escrow released.
type ReferralEarning struct {
	ID           string    `json:"id" db:"id"`
	ReferrerID   string    `json:"referrer_id" db:"referrer_id"`
	SourceUserID string    `json:"source_user_id" db:"source_user_id"`
	SourceType   string    `json:"source_type" db:"source_type"`
	SourceID     string    `json:"source_id" db:"source_id"`
	Points       int64     `json:"points" db:"points"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

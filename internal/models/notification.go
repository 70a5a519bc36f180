package models

import (
	"time"
)

// Notification types emitted by the payment lifecycle.
const (
	NotifyRequestApproved = "request_approved"
	NotifyRequestRejected = "request_rejected"
	NotifyEscrowFunded    = "escrow_funded"
	NotifyEscrowReleased  = "escrow_released"
	NotifyEscrowRefunded  = "escrow_refunded"
	NotifyReferralEarning = "referral_earning"
)

// Notification is an in-app notice for a user. Delivery is best-effort and
// never blocks the operation that triggered it.
type Notification struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Type      string     `json:"type" db:"type"`
	Title     string     `json:"title" db:"title"`
	Body      string     `json:"body" db:"body"`
	Reference string     `json:"reference,omitempty" db:"reference"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
}

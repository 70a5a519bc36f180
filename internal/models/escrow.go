package models

import (
	"time"
)

// EscrowStatus is the lifecycle state of an escrow hold.
// held -> released | refunded. Both outcomes are terminal.
type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

// EscrowTransaction is money a client committed for a job, held by the
// platform until delivery is confirmed or a refund decision is made.
type EscrowTransaction struct {
	ID           string       `json:"id" db:"id"`
	JobID        string       `json:"job_id" db:"job_id"`
	ClientID     string       `json:"client_id" db:"client_id"`
	ApprenticeID *string      `json:"apprentice_id,omitempty" db:"apprentice_id"`
	AmountKobo   int64        `json:"amount_kobo" db:"amount_kobo"`
	Status       EscrowStatus `json:"status" db:"status"`

	// Set on release.
	CommissionKobo int64 `json:"commission_kobo,omitempty" db:"commission_kobo"`
	PayoutKobo     int64 `json:"payout_kobo,omitempty" db:"payout_kobo"`

	RefundReason    string     `json:"refund_reason,omitempty" db:"refund_reason"`
	AutoReleaseDate time.Time  `json:"auto_release_date" db:"auto_release_date"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ReleasedAt      *time.Time `json:"released_at,omitempty" db:"released_at"`
	RefundedAt      *time.Time `json:"refunded_at,omitempty" db:"refunded_at"`
}

// FundEscrowInput is the request body for fundJobEscrow.
type FundEscrowInput struct {
	JobID        string `json:"jobId" validate:"required,max=64"`
	ApprenticeID string `json:"apprenticeId" validate:"omitempty,max=64"`
	AmountKobo   int64  `json:"amountKobo" validate:"required,gt=0"`
	DeadlineDays int    `json:"deadlineDays" validate:"required,gt=0,max=365"`
}

// DisputeStatus gates auto-release: a held escrow with an open dispute is
// never swept.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

// Dispute is a client or apprentice objection on a held escrow.
type Dispute struct {
	ID         string        `json:"id" db:"id"`
	EscrowID   string        `json:"escrow_id" db:"escrow_id"`
	FilerID    string        `json:"filer_id" db:"filer_id"`
	Reason     string        `json:"reason" db:"reason"`
	Status     DisputeStatus `json:"status" db:"status"`
	Resolution string        `json:"resolution,omitempty" db:"resolution"` // release | refund
	ResolvedBy string        `json:"resolved_by,omitempty" db:"resolved_by"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
}

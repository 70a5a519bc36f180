package models

import (
	"time"
)

// RequestKind discriminates the payment request union.
type RequestKind string

const (
	KindFunding      RequestKind = "funding"
	KindWithdrawal   RequestKind = "withdrawal"
	KindSubscription RequestKind = "subscription"
)

// RequestStatus is the lifecycle state of a payment request.
// pending -> approved | rejected. approved and rejected are terminal.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// PaymentRequest is the persisted record for all three request kinds.
// Kind-specific fields are nullable columns; the typed inputs below are the
// only way requests get created, so a row never mixes kinds.
type PaymentRequest struct {
	ID     string        `json:"id" db:"id"`
	UserID string        `json:"user_id" db:"user_id"`
	Kind   RequestKind   `json:"kind" db:"kind"`
	Status RequestStatus `json:"status" db:"status"`
	Source string        `json:"source" db:"source"` // manual | gateway

	// funding / subscription
	AmountKobo int64 `json:"amount_kobo,omitempty" db:"amount_kobo"`

	// withdrawal: points plus the rate snapshot taken at creation, so a later
	// rate change never alters how a pending request resolves.
	PointsRequested  int64 `json:"points_requested,omitempty" db:"points_requested"`
	RateKoboPerPoint int64 `json:"rate_kobo_per_point,omitempty" db:"rate_kobo_per_point"`
	PayoutKobo       int64 `json:"payout_kobo,omitempty" db:"payout_kobo"`

	// funding
	BankReference string  `json:"bank_reference,omitempty" db:"bank_reference"`
	ProofRef      *string `json:"proof_ref,omitempty" db:"proof_ref"`

	// withdrawal payout destination
	AccountName   string `json:"account_name,omitempty" db:"account_name"`
	AccountNumber string `json:"account_number,omitempty" db:"account_number"`
	BankCode      string `json:"bank_code,omitempty" db:"bank_code"`

	// subscription
	PlanKey       string `json:"plan_key,omitempty" db:"plan_key"`
	PaymentMethod string `json:"payment_method,omitempty" db:"payment_method"`

	AdminNotes  string     `json:"admin_notes,omitempty" db:"admin_notes"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// FundingInput is the request body for createFundingRequest.
type FundingInput struct {
	AmountKobo    int64  `json:"amountKobo" validate:"required,gt=0"`
	BankReference string `json:"bankReference" validate:"required,max=64"`
	AccountName   string `json:"accountName" validate:"required,max=140"`
	AccountNumber string `json:"accountNumber" validate:"required,max=10"`
	BankCode      string `json:"bankCode" validate:"required,max=6"`
	ProofRef      string `json:"proofRef" validate:"required,max=255"`
}

// WithdrawalInput is the request body for createWithdrawalRequest.
// Minimum points are enforced against config, not a struct tag.
type WithdrawalInput struct {
	PointsRequested int64  `json:"pointsRequested" validate:"required,gt=0"`
	AccountName     string `json:"accountName" validate:"required,max=140"`
	AccountNumber   string `json:"accountNumber" validate:"required,max=10"`
	BankCode        string `json:"bankCode" validate:"required,max=6"`
}

// SubscriptionInput is the request body for createSubscriptionPaymentRequest.
type SubscriptionInput struct {
	PlanKey       string `json:"planKey" validate:"required,max=32"`
	AmountKobo    int64  `json:"amountKobo" validate:"required,gt=0"`
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=bank_transfer card ussd"`
}

// ReviewResult is the per-id outcome of a bulk approve/reject.
type ReviewResult struct {
	RequestID string `json:"requestId"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

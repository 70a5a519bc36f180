package services

import (
	"errors"
	"net/http"
)

// Sentinel errors for the payment lifecycle. Handlers map these onto HTTP
// statuses; everything else is a 500.
var (
	// ErrValidation marks malformed or out-of-range input. Wrap it with
	// detail: fmt.Errorf("%w: reason", ErrValidation).
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientBalance is returned when a debit or points lock exceeds
	// what the wallet holds.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrWithdrawalWindowClosed is returned for withdrawal requests created
	// outside the configured monthly window.
	ErrWithdrawalWindowClosed = errors.New("withdrawal window closed")

	// ErrAlreadyProcessed is returned when approving or rejecting a payment
	// request that is no longer pending.
	ErrAlreadyProcessed = errors.New("request is not pending")

	// ErrAlreadyFinalized is returned when releasing or refunding an escrow
	// that is no longer held.
	ErrAlreadyFinalized = errors.New("escrow already finalized")

	// ErrNotFound is returned for unknown request, escrow, or wallet ids.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller is not a party to the record.
	ErrForbidden = errors.New("forbidden")
)

// HTTPStatus maps a service error to its response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrWithdrawalWindowClosed):
		return http.StatusForbidden
	case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrAlreadyFinalized):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// SendServiceError writes the JSON error envelope for a service error.
// Unknown errors get a generic message so internals never leak.
func SendServiceError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	SendErrorResponse(w, msg, status, nil)
}

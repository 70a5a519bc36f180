package services

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("%w: amount must be positive", ErrValidation), http.StatusBadRequest},
		{ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{ErrWithdrawalWindowClosed, http.StatusForbidden},
		{ErrAlreadyProcessed, http.StatusConflict},
		{ErrAlreadyFinalized, http.StatusConflict},
		{ErrNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{errors.New("database exploded"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err), c.err.Error())
	}
}

func TestSendServiceError_HidesInternals(t *testing.T) {
	w := httptest.NewRecorder()
	SendServiceError(w, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestSendServiceError_SurfacesConflicts(t *testing.T) {
	w := httptest.NewRecorder()
	SendServiceError(w, ErrAlreadyProcessed)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not pending")
}

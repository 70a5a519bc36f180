package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/craftbridge/backend/internal/config"
	"github.com/craftbridge/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// subscriptionTerm is how long a plan activation lasts. Plans renew by a new
// subscription payment request, not automatically.
const subscriptionTerm = 30 * 24 * time.Hour

// PaymentRequestService owns the funding / withdrawal / subscription request
// lifecycle: creation by users, approval or rejection by admins. Every
// transition re-reads the request row under a lock inside the same database
// transaction that applies its effects, so a request resolves exactly once.
type PaymentRequestService struct {
	db        *sql.DB
	ledger    *LedgerService
	wallets   *WalletService
	cfg       *config.Platform
	notifier  *NotificationService
	referrals *ReferralService
	validator *ValidationHelper
	now       func() time.Time
}

func NewPaymentRequestService(db *sql.DB, ledger *LedgerService, wallets *WalletService, cfg *config.Platform, notifier *NotificationService, referrals *ReferralService) *PaymentRequestService {
	return &PaymentRequestService{
		db:        db,
		ledger:    ledger,
		wallets:   wallets,
		cfg:       cfg,
		notifier:  notifier,
		referrals: referrals,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

// CreateFunding records a user's claim to have transferred money to the
// platform account. No balance moves until an admin confirms the transfer.
func (s *PaymentRequestService) CreateFunding(ctx context.Context, userID string, in models.FundingInput) (*models.PaymentRequest, error) {
	if err := s.validator.ValidateStruct(&in); err != nil {
		return nil, err
	}
	if !knownBankCode(in.BankCode) {
		return nil, fmt.Errorf("%w: unknown bank code %s", ErrValidation, in.BankCode)
	}

	req := &models.PaymentRequest{
		ID:            uuid.New().String(),
		UserID:        userID,
		Kind:          models.KindFunding,
		Status:        models.StatusPending,
		Source:        "manual",
		AmountKobo:    in.AmountKobo,
		BankReference: in.BankReference,
		ProofRef:      &in.ProofRef,
		AccountName:   in.AccountName,
		AccountNumber: in.AccountNumber,
		BankCode:      in.BankCode,
		CreatedAt:     s.now(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_requests (id, user_id, kind, status, source, amount_kobo, bank_reference, proof_ref, account_name, account_number, bank_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.UserID, req.Kind, req.Status, req.Source, req.AmountKobo,
		req.BankReference, req.ProofRef, req.AccountName, req.AccountNumber, req.BankCode, req.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create funding request: %w", err)
	}
	return req, nil
}

// CreateWithdrawal converts available points into a pending cash payout.
// The points are locked in the same transaction that writes the request, so
// overlapping requests cannot double-spend them. The points rate in force
// now is snapshotted onto the request.
func (s *PaymentRequestService) CreateWithdrawal(ctx context.Context, userID string, in models.WithdrawalInput) (*models.PaymentRequest, error) {
	if err := s.validator.ValidateStruct(&in); err != nil {
		return nil, err
	}
	if !s.cfg.WithdrawalWindowOpen(s.now()) {
		return nil, fmt.Errorf("%w: requests are accepted between day %d and day %d of the month",
			ErrWithdrawalWindowClosed, s.cfg.WithdrawalWindowStartDay, s.cfg.WithdrawalWindowEndDay)
	}
	if in.PointsRequested < s.cfg.MinWithdrawalPoints {
		return nil, fmt.Errorf("%w: minimum withdrawal is %d points", ErrValidation, s.cfg.MinWithdrawalPoints)
	}
	if !knownBankCode(in.BankCode) {
		return nil, fmt.Errorf("%w: unknown bank code %s", ErrValidation, in.BankCode)
	}

	req := &models.PaymentRequest{
		ID:               uuid.New().String(),
		UserID:           userID,
		Kind:             models.KindWithdrawal,
		Status:           models.StatusPending,
		Source:           "manual",
		PointsRequested:  in.PointsRequested,
		RateKoboPerPoint: s.cfg.PointRateKobo,
		PayoutKobo:       s.cfg.PointsToKobo(in.PointsRequested),
		AccountName:      in.AccountName,
		AccountNumber:    in.AccountNumber,
		BankCode:         in.BankCode,
		CreatedAt:        s.now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.ledger.LockPointsTx(tx, userID, in.PointsRequested, req.ID, "Withdrawal request hold"); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO payment_requests (id, user_id, kind, status, source, points_requested, rate_kobo_per_point, payout_kobo, account_name, account_number, bank_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.UserID, req.Kind, req.Status, req.Source, req.PointsRequested,
		req.RateKoboPerPoint, req.PayoutKobo, req.AccountName, req.AccountNumber, req.BankCode, req.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.wallets.InvalidateCache(ctx, userID)
	return req, nil
}

// CreateSubscription records a pending subscription payment. The plan is
// only activated on admin approval (or directly by a gateway webhook, which
// creates the request already approved through a separate path).
func (s *PaymentRequestService) CreateSubscription(ctx context.Context, userID string, in models.SubscriptionInput) (*models.PaymentRequest, error) {
	if err := s.validator.ValidateStruct(&in); err != nil {
		return nil, err
	}

	req := &models.PaymentRequest{
		ID:            uuid.New().String(),
		UserID:        userID,
		Kind:          models.KindSubscription,
		Status:        models.StatusPending,
		Source:        "manual",
		AmountKobo:    in.AmountKobo,
		PlanKey:       in.PlanKey,
		PaymentMethod: in.PaymentMethod,
		CreatedAt:     s.now(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_requests (id, user_id, kind, status, source, amount_kobo, plan_key, payment_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.UserID, req.Kind, req.Status, req.Source, req.AmountKobo,
		req.PlanKey, req.PaymentMethod, req.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription request: %w", err)
	}
	return req, nil
}

// Approve resolves a pending request. The status is re-checked under a row
// lock inside the transaction that applies the effects, so a second approval
// of the same request fails with ErrAlreadyProcessed and changes nothing.
func (s *PaymentRequestService) Approve(ctx context.Context, adminID, requestID, notes string) (*models.PaymentRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	req, err := s.lockRequest(tx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending {
		return nil, ErrAlreadyProcessed
	}

	processedAt := s.now()
	switch req.Kind {
	case models.KindFunding:
		if err := s.ledger.CreditBalanceTx(tx, req.UserID, req.AmountKobo, req.ID, "Wallet funding confirmed"); err != nil {
			return nil, err
		}
	case models.KindWithdrawal:
		if err := s.ledger.BurnLockedPointsTx(tx, req.UserID, req.PointsRequested, req.ID, "Withdrawal payout"); err != nil {
			return nil, err
		}
	case models.KindSubscription:
		_, err := tx.Exec(`
			INSERT INTO subscriptions (id, user_id, plan_key, request_id, starts_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), req.UserID, req.PlanKey, req.ID, processedAt, processedAt.Add(subscriptionTerm))
		if err != nil {
			return nil, fmt.Errorf("failed to activate plan: %w", err)
		}
	}

	result, err := tx.Exec(`
		UPDATE payment_requests
		SET status = 'approved', admin_notes = $2, processed_at = $3
		WHERE id = $1 AND status = 'pending'`,
		requestID, notes, processedAt)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrAlreadyProcessed
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	req.Status = models.StatusApproved
	req.AdminNotes = notes
	req.ProcessedAt = &processedAt

	log.Printf("[PAYMENT] request %s (%s) approved by %s", req.ID, req.Kind, adminID)
	s.wallets.InvalidateCache(ctx, req.UserID)
	s.notifier.NotifyAsync(req.UserID, models.NotifyRequestApproved,
		"Request approved", approvalNotice(req), req.ID)
	if req.Kind == models.KindSubscription {
		s.referrals.RecordEarningAsync(req.UserID, models.EarningSourceSubscription, req.ID, req.AmountKobo)
	}
	return req, nil
}

// Reject resolves a pending request negatively. A withdrawal rejection
// unlocks the points held at creation. The reason is mandatory.
func (s *PaymentRequestService) Reject(ctx context.Context, adminID, requestID, reason string) (*models.PaymentRequest, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	req, err := s.lockRequest(tx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending {
		return nil, ErrAlreadyProcessed
	}

	if req.Kind == models.KindWithdrawal {
		if err := s.ledger.UnlockPointsTx(tx, req.UserID, req.PointsRequested, req.ID, "Withdrawal request rejected"); err != nil {
			return nil, err
		}
	}

	processedAt := s.now()
	result, err := tx.Exec(`
		UPDATE payment_requests
		SET status = 'rejected', admin_notes = $2, processed_at = $3
		WHERE id = $1 AND status = 'pending'`,
		requestID, reason, processedAt)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrAlreadyProcessed
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	req.Status = models.StatusRejected
	req.AdminNotes = reason
	req.ProcessedAt = &processedAt

	log.Printf("[PAYMENT] request %s (%s) rejected by %s: %s", req.ID, req.Kind, adminID, reason)
	s.wallets.InvalidateCache(ctx, req.UserID)
	s.notifier.NotifyAsync(req.UserID, models.NotifyRequestRejected,
		"Request rejected", reason, req.ID)
	return req, nil
}

// Review applies approve or reject to a batch of ids. Each id is processed
// independently: one failure never aborts the rest, and the caller gets a
// per-id outcome list.
func (s *PaymentRequestService) Review(ctx context.Context, adminID, action string, requestIDs []string, notes string) []models.ReviewResult {
	results := make([]models.ReviewResult, 0, len(requestIDs))
	for _, id := range requestIDs {
		var err error
		if action == "approve" {
			_, err = s.Approve(ctx, adminID, id, notes)
		} else {
			_, err = s.Reject(ctx, adminID, id, notes)
		}
		result := models.ReviewResult{RequestID: id, Succeeded: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// lockRequest loads the fields a transition needs, locking the row.
func (s *PaymentRequestService) lockRequest(tx *sql.Tx, requestID string) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	err := tx.QueryRow(`
		SELECT id, user_id, kind, status, amount_kobo, points_requested, payout_kobo, plan_key, bank_reference
		FROM payment_requests
		WHERE id = $1
		FOR UPDATE`, requestID).
		Scan(&req.ID, &req.UserID, &req.Kind, &req.Status, &req.AmountKobo,
			&req.PointsRequested, &req.PayoutKobo, &req.PlanKey, &req.BankReference)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request %s: %w", requestID, err)
	}
	return &req, nil
}

func approvalNotice(req *models.PaymentRequest) string {
	switch req.Kind {
	case models.KindFunding:
		return fmt.Sprintf("Your wallet was funded with NGN %.2f", float64(req.AmountKobo)/100)
	case models.KindWithdrawal:
		return fmt.Sprintf("Your withdrawal of %d points (NGN %.2f) is on its way to your bank", req.PointsRequested, float64(req.PayoutKobo)/100)
	case models.KindSubscription:
		return fmt.Sprintf("Your %s plan is now active", req.PlanKey)
	}
	return "Your request was approved"
}

// ---- HTTP handlers ----

// CreateFundingRequest handles funding request creation.
// @Summary Create funding request
// @Description Record a bank transfer claim awaiting admin confirmation
// @Tags payments
// @Accept json
// @Produce json
// @Param request body models.FundingInput true "Funding details"
// @Success 201 {object} models.PaymentRequest
// @Failure 400 {object} ErrorResponse
// @Router /payments/funding [post]
func (s *PaymentRequestService) CreateFundingRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var in models.FundingInput
	if !decodeBody(w, r, &in) {
		return
	}

	req, err := s.CreateFunding(r.Context(), userID, in)
	if err != nil {
		sendCreateError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req)
}

// CreateWithdrawalRequest handles withdrawal request creation.
// @Summary Create withdrawal request
// @Description Convert points to a pending cash payout; points are locked immediately
// @Tags payments
// @Accept json
// @Produce json
// @Param request body models.WithdrawalInput true "Withdrawal details"
// @Success 201 {object} models.PaymentRequest
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /payments/withdrawal [post]
func (s *PaymentRequestService) CreateWithdrawalRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var in models.WithdrawalInput
	if !decodeBody(w, r, &in) {
		return
	}

	req, err := s.CreateWithdrawal(r.Context(), userID, in)
	if err != nil {
		sendCreateError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req)
}

// CreateSubscriptionRequest handles subscription payment request creation.
// @Summary Create subscription payment request
// @Tags payments
// @Accept json
// @Produce json
// @Param request body models.SubscriptionInput true "Subscription details"
// @Success 201 {object} models.PaymentRequest
// @Failure 400 {object} ErrorResponse
// @Router /payments/subscription [post]
func (s *PaymentRequestService) CreateSubscriptionRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var in models.SubscriptionInput
	if !decodeBody(w, r, &in) {
		return
	}

	req, err := s.CreateSubscription(r.Context(), userID, in)
	if err != nil {
		sendCreateError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req)
}

// ApproveRequest handles admin approval.
// @Summary Approve payment request
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param body body object{notes=string} false "Reference or notes"
// @Success 200 {object} models.PaymentRequest
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/requests/{id}/approve [post]
func (s *PaymentRequestService) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)
	requestID := chi.URLParam(r, "id")

	var body struct {
		Notes string `json:"notes"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	req, err := s.Approve(r.Context(), adminID, requestID, body.Notes)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

// RejectRequest handles admin rejection. The reason is mandatory.
// @Summary Reject payment request
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param body body object{reason=string} true "Rejection reason"
// @Success 200 {object} models.PaymentRequest
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/requests/{id}/reject [post]
func (s *PaymentRequestService) RejectRequest(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)
	requestID := chi.URLParam(r, "id")

	var body struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	req, err := s.Reject(r.Context(), adminID, requestID, body.Reason)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

// BulkReview handles batched approve/reject with per-id outcomes.
// @Summary Bulk approve or reject requests
// @Tags admin
// @Accept json
// @Produce json
// @Param body body object{action=string,requestIds=[]string,notes=string} true "Batch"
// @Success 200 {object} object{results=[]models.ReviewResult,succeeded=int,failed=int}
// @Failure 400 {object} ErrorResponse
// @Router /admin/requests/bulk [post]
func (s *PaymentRequestService) BulkReview(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)

	var body struct {
		Action     string   `json:"action" validate:"required,oneof=approve reject"`
		RequestIDs []string `json:"requestIds" validate:"required,min=1,max=100"`
		Notes      string   `json:"notes"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.validator.ValidateStruct(&body); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	results := s.Review(r.Context(), adminID, body.Action, body.RequestIDs, body.Notes)

	succeeded := 0
	for _, res := range results {
		if res.Succeeded {
			succeeded++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"results":   results,
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

// ListPendingRequests returns pending requests for the admin dashboard.
// @Summary List pending payment requests
// @Tags admin
// @Produce json
// @Param kind query string false "funding | withdrawal | subscription"
// @Param page query int false "Page (default 1, 50 per page)"
// @Success 200 {object} object{requests=[]models.PaymentRequest,count=int,page=int}
// @Router /admin/requests [get]
func (s *PaymentRequestService) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	const pageSize = 50

	query := `
		SELECT id, user_id, kind, status, source, amount_kobo, points_requested, rate_kobo_per_point, payout_kobo,
		       bank_reference, proof_ref, account_name, account_number, bank_code, plan_key, payment_method,
		       admin_notes, created_at, processed_at
		FROM payment_requests
		WHERE status = 'pending'`
	args := []any{}
	if kind != "" {
		query += ` AND kind = $1`
		args = append(args, kind)
	}
	query += fmt.Sprintf(` ORDER BY created_at ASC LIMIT %d OFFSET %d`, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch requests", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	requests, err := scanRequests(rows)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"requests": requests,
		"count":    len(requests),
		"page":     page,
	})
}

// ListMyRequests returns the caller's own payment requests.
// @Summary List my payment requests
// @Tags payments
// @Produce json
// @Success 200 {object} object{requests=[]models.PaymentRequest,count=int}
// @Router /payments/requests [get]
func (s *PaymentRequestService) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, user_id, kind, status, source, amount_kobo, points_requested, rate_kobo_per_point, payout_kobo,
		       bank_reference, proof_ref, account_name, account_number, bank_code, plan_key, payment_method,
		       admin_notes, created_at, processed_at
		FROM payment_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 100`, userID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch requests", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	requests, err := scanRequests(rows)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"requests": requests,
		"count":    len(requests),
	})
}

func scanRequests(rows *sql.Rows) ([]models.PaymentRequest, error) {
	requests := []models.PaymentRequest{}
	for rows.Next() {
		var req models.PaymentRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.Kind, &req.Status, &req.Source,
			&req.AmountKobo, &req.PointsRequested, &req.RateKoboPerPoint, &req.PayoutKobo,
			&req.BankReference, &req.ProofRef, &req.AccountName, &req.AccountNumber, &req.BankCode,
			&req.PlanKey, &req.PaymentMethod, &req.AdminNotes, &req.CreatedAt, &req.ProcessedAt); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// decodeBody decodes a single JSON object, rejecting unknown fields and
// oversized payloads. Writes the error response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

// sendCreateError distinguishes validator errors from service errors on the
// create paths.
func sendCreateError(w http.ResponseWriter, err error) {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, fieldErrs)
		return
	}
	SendServiceError(w, err)
}

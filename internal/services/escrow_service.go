package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/craftbridge/backend/internal/config"
	"github.com/craftbridge/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// EscrowService owns the held -> released | refunded state machine. The
// client debit and the escrow record are written in one transaction, and
// every terminal transition re-checks status under a row lock, so the admin
// path and the auto-release sweep can race on the same id with exactly one
// winner.
type EscrowService struct {
	db        *sql.DB
	ledger    *LedgerService
	wallets   *WalletService
	cfg       *config.Platform
	notifier  *NotificationService
	referrals *ReferralService
	validator *ValidationHelper
	now       func() time.Time
}

func NewEscrowService(db *sql.DB, ledger *LedgerService, wallets *WalletService, cfg *config.Platform, notifier *NotificationService, referrals *ReferralService) *EscrowService {
	return &EscrowService{
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

// Fund debits the client's wallet and writes the held escrow record in the
// same transaction. Either both happen or neither does.
func (s *EscrowService) Fund(ctx context.Context, clientID string, in models.FundEscrowInput) (*models.EscrowTransaction, error) {
	if err := s.validator.ValidateStruct(&in); err != nil {
		return nil, err
	}

	now := s.now()
	esc := &models.EscrowTransaction{
		ID:              uuid.New().String(),
		JobID:           in.JobID,
		ClientID:        clientID,
		AmountKobo:      in.AmountKobo,
		Status:          models.EscrowHeld,
		AutoReleaseDate: now.AddDate(0, 0, in.DeadlineDays+s.cfg.EscrowGraceDays),
		CreatedAt:       now,
	}
	if in.ApprenticeID != "" {
		esc.ApprenticeID = &in.ApprenticeID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.ledger.DebitBalanceTx(tx, clientID, in.AmountKobo, esc.ID, "Escrow hold for job "+in.JobID); err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO escrow_transactions (id, job_id, client_id, apprentice_id, amount_kobo, status, auto_release_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		esc.ID, esc.JobID, esc.ClientID, esc.ApprenticeID, esc.AmountKobo, esc.Status, esc.AutoReleaseDate, esc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create escrow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.wallets.InvalidateCache(ctx, clientID)
	if esc.ApprenticeID != nil {
		s.notifier.NotifyAsync(*esc.ApprenticeID, models.NotifyEscrowFunded,
			"Job funded", fmt.Sprintf("NGN %.2f is held in escrow for job %s", float64(esc.AmountKobo)/100, esc.JobID), esc.ID)
	}
	return esc, nil
}

// Release pays the apprentice the escrow amount minus commission and closes
// the escrow. Callable by the client, an admin, or the auto-release sweep
// (auto=true). Status is re-checked under the row lock, so a concurrent
// release or refund loses with ErrAlreadyFinalized.
func (s *EscrowService) Release(ctx context.Context, actorID, role, escrowID string, auto bool) (*models.EscrowTransaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	esc, err := s.lockEscrow(tx, escrowID)
	if err != nil {
		return nil, err
	}
	if esc.Status != models.EscrowHeld {
		return nil, ErrAlreadyFinalized
	}
	if !auto && actorID != esc.ClientID && role != "admin" {
		return nil, ErrForbidden
	}
	if esc.ApprenticeID == nil {
		return nil, fmt.Errorf("%w: escrow has no apprentice assigned", ErrValidation)
	}
	if auto {
		var disputed bool
		if err := tx.QueryRow(`SELECT EXISTS (SELECT 1 FROM disputes WHERE escrow_id = $1 AND status = 'open')`, escrowID).Scan(&disputed); err != nil {
			return nil, err
		}
		if disputed {
			return nil, fmt.Errorf("%w: escrow has an open dispute", ErrForbidden)
		}
	}

	commission := s.cfg.PlatformCommission(esc.AmountKobo)
	payout := esc.AmountKobo - commission
	releasedAt := s.now()

	if err := s.ledger.CreditBalanceTx(tx, *esc.ApprenticeID, payout, esc.ID, "Job payout for "+esc.JobID); err != nil {
		return nil, err
	}

	result, err := tx.Exec(`
		UPDATE escrow_transactions
		SET status = 'released', commission_kobo = $2, payout_kobo = $3, released_at = $4
		WHERE id = $1 AND status = 'held'`,
		escrowID, commission, payout, releasedAt)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrAlreadyFinalized
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	esc.Status = models.EscrowReleased
	esc.CommissionKobo = commission
	esc.PayoutKobo = payout
	esc.ReleasedAt = &releasedAt

	log.Printf("[ESCROW] %s released (auto=%t) payout=%d commission=%d", esc.ID, auto, payout, commission)
	s.wallets.InvalidateCache(ctx, *esc.ApprenticeID)
	s.notifier.NotifyAsync(*esc.ApprenticeID, models.NotifyEscrowReleased,
		"Payment released", fmt.Sprintf("NGN %.2f was released for job %s", float64(payout)/100, esc.JobID), esc.ID)
	s.notifier.NotifyAsync(esc.ClientID, models.NotifyEscrowReleased,
		"Escrow released", fmt.Sprintf("Escrow for job %s was released to the apprentice", esc.JobID), esc.ID)
	s.referrals.RecordEarningAsync(*esc.ApprenticeID, models.EarningSourceEscrow, esc.ID, esc.AmountKobo)
	return esc, nil
}

// Refund returns the full escrow amount to the client and closes the escrow.
// The reason is mandatory. Admins may refund any held escrow; the client may
// refund their own before release.
func (s *EscrowService) Refund(ctx context.Context, actorID, role, escrowID, reason string) (*models.EscrowTransaction, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: refund reason is required", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	esc, err := s.lockEscrow(tx, escrowID)
	if err != nil {
		return nil, err
	}
	if esc.Status != models.EscrowHeld {
		return nil, ErrAlreadyFinalized
	}
	if actorID != esc.ClientID && role != "admin" {
		return nil, ErrForbidden
	}

	refundedAt := s.now()
	if err := s.ledger.CreditBalanceTx(tx, esc.ClientID, esc.AmountKobo, esc.ID, "Escrow refund for job "+esc.JobID); err != nil {
		return nil, err
	}

	result, err := tx.Exec(`
		UPDATE escrow_transactions
		SET status = 'refunded', refund_reason = $2, refunded_at = $3
		WHERE id = $1 AND status = 'held'`,
		escrowID, reason, refundedAt)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrAlreadyFinalized
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	esc.Status = models.EscrowRefunded
	esc.RefundReason = reason
	esc.RefundedAt = &refundedAt

	log.Printf("[ESCROW] %s refunded by %s: %s", esc.ID, actorID, reason)
	s.wallets.InvalidateCache(ctx, esc.ClientID)
	s.notifier.NotifyAsync(esc.ClientID, models.NotifyEscrowRefunded,
		"Escrow refunded", fmt.Sprintf("NGN %.2f was returned to your wallet: %s", float64(esc.AmountKobo)/100, reason), esc.ID)
	if esc.ApprenticeID != nil {
		s.notifier.NotifyAsync(*esc.ApprenticeID, models.NotifyEscrowRefunded,
			"Escrow refunded", fmt.Sprintf("Escrow for job %s was refunded to the client", esc.JobID), esc.ID)
	}
	return esc, nil
}

// ReleaseDueIDs lists held escrows past their auto-release date with an
// apprentice assigned and no open dispute. The sweep re-checks all of this
// inside Release; this query only selects candidates.
func (s *EscrowService) ReleaseDueIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id
		FROM escrow_transactions e
		WHERE e.status = 'held'
		  AND e.auto_release_date < $1
		  AND e.apprentice_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM disputes d WHERE d.escrow_id = e.id AND d.status = 'open')
		ORDER BY e.auto_release_date ASC
		LIMIT $2`, s.now(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FileDispute records an objection on a held escrow, blocking auto-release
// until an admin resolves it.
func (s *EscrowService) FileDispute(ctx context.Context, filerID, escrowID, reason string) (*models.Dispute, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: dispute reason is required", ErrValidation)
	}

	var clientID string
	var apprenticeID sql.NullString
	var status models.EscrowStatus
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, apprentice_id, status FROM escrow_transactions WHERE id = $1`, escrowID).
		Scan(&clientID, &apprenticeID, &status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if status != models.EscrowHeld {
		return nil, ErrAlreadyFinalized
	}
	if filerID != clientID && (!apprenticeID.Valid || filerID != apprenticeID.String) {
		return nil, ErrForbidden
	}

	d := &models.Dispute{
		ID:        uuid.New().String(),
		EscrowID:  escrowID,
		FilerID:   filerID,
		Reason:    reason,
		Status:    models.DisputeOpen,
		CreatedAt: s.now(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disputes (id, escrow_id, filer_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.EscrowID, d.FilerID, d.Reason, d.Status, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to file dispute: %w", err)
	}

	log.Printf("[ESCROW] dispute %s filed on %s by %s", d.ID, escrowID, filerID)
	return d, nil
}

// ResolveDispute closes an open dispute and applies the decided outcome:
// release pays the apprentice, refund returns the money to the client.
func (s *EscrowService) ResolveDispute(ctx context.Context, adminID, disputeID, resolution, note string) (*models.EscrowTransaction, error) {
	if resolution != "release" && resolution != "refund" {
		return nil, fmt.Errorf("%w: resolution must be release or refund", ErrValidation)
	}

	var escrowID string
	var status models.DisputeStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT escrow_id, status FROM disputes WHERE id = $1`, disputeID).
		Scan(&escrowID, &status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if status != models.DisputeOpen {
		return nil, ErrAlreadyFinalized
	}

	var esc *models.EscrowTransaction
	if resolution == "release" {
		esc, err = s.Release(ctx, adminID, "admin", escrowID, false)
	} else {
		reason := note
		if reason == "" {
			reason = "Dispute resolved in client's favour"
		}
		esc, err = s.Refund(ctx, adminID, "admin", escrowID, reason)
	}
	if errors.Is(err, ErrAlreadyFinalized) {
		// The escrow went terminal through another path while the dispute
		// stayed open. Close the dispute with the outcome that actually
		// happened instead of leaving it open forever.
		esc, err = s.loadEscrow(ctx, escrowID)
		if err != nil {
			return nil, err
		}
		switch esc.Status {
		case models.EscrowReleased:
			resolution = "release"
		case models.EscrowRefunded:
			resolution = "refund"
		}
		log.Printf("[ESCROW] dispute %s reconciled to already-%s escrow %s", disputeID, esc.Status, escrowID)
	} else if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = 'resolved', resolution = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = 'open'`,
		disputeID, resolution, adminID, s.now())
	if err != nil {
		// The escrow transitioned but the dispute row is still open; the next
		// resolve attempt reconciles it through the branch above.
		log.Printf("[ESCROW] dispute %s close failed after %s: %v", disputeID, resolution, err)
	}
	return esc, nil
}

func (s *EscrowService) loadEscrow(ctx context.Context, escrowID string) (*models.EscrowTransaction, error) {
	var esc models.EscrowTransaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, client_id, apprentice_id, amount_kobo, status, commission_kobo, payout_kobo,
		       refund_reason, auto_release_date, created_at, released_at, refunded_at
		FROM escrow_transactions
		WHERE id = $1`, escrowID).
		Scan(&esc.ID, &esc.JobID, &esc.ClientID, &esc.ApprenticeID, &esc.AmountKobo, &esc.Status,
			&esc.CommissionKobo, &esc.PayoutKobo, &esc.RefundReason, &esc.AutoReleaseDate,
			&esc.CreatedAt, &esc.ReleasedAt, &esc.RefundedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow %s: %w", escrowID, err)
	}
	return &esc, nil
}

func (s *EscrowService) lockEscrow(tx *sql.Tx, escrowID string) (*models.EscrowTransaction, error) {
	var esc models.EscrowTransaction
	err := tx.QueryRow(`
		SELECT id, job_id, client_id, apprentice_id, amount_kobo, status, auto_release_date, created_at
		FROM escrow_transactions
		WHERE id = $1
		FOR UPDATE`, escrowID).
		Scan(&esc.ID, &esc.JobID, &esc.ClientID, &esc.ApprenticeID, &esc.AmountKobo, &esc.Status, &esc.AutoReleaseDate, &esc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow %s: %w", escrowID, err)
	}
	return &esc, nil
}

// ---- HTTP handlers ----

// FundJobEscrow handles escrow creation by the client.
// @Summary Fund job escrow
// @Description Debit the client wallet and hold the amount until delivery
// @Tags escrow
// @Accept json
// @Produce json
// @Param request body models.FundEscrowInput true "Escrow details"
// @Success 201 {object} models.EscrowTransaction
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /escrow [post]
func (s *EscrowService) FundJobEscrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var in models.FundEscrowInput
	if !decodeBody(w, r, &in) {
		return
	}

	esc, err := s.Fund(r.Context(), userID, in)
	if err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			SendErrorResponse(w, "Validation failed", http.StatusBadRequest, fieldErrs)
			return
		}
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(esc)
}

// ReleaseEscrow handles client or admin release.
// @Summary Release escrow to the apprentice
// @Tags escrow
// @Produce json
// @Param id path string true "Escrow ID"
// @Success 200 {object} models.EscrowTransaction
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /escrow/{id}/release [post]
func (s *EscrowService) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("userID").(string)
	role, _ := r.Context().Value("role").(string)
	escrowID := chi.URLParam(r, "id")

	esc, err := s.Release(r.Context(), userID, role, escrowID, false)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(esc)
}

// RefundEscrow handles client or admin refund. The reason is mandatory.
// @Summary Refund escrow to the client
// @Tags escrow
// @Accept json
// @Produce json
// @Param id path string true "Escrow ID"
// @Param body body object{reason=string} true "Refund reason"
// @Success 200 {object} models.EscrowTransaction
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /escrow/{id}/refund [post]
func (s *EscrowService) RefundEscrow(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("userID").(string)
	role, _ := r.Context().Value("role").(string)
	escrowID := chi.URLParam(r, "id")

	var body struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	esc, err := s.Refund(r.Context(), userID, role, escrowID, body.Reason)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(esc)
}

// FileDisputeRequest handles dispute filing by a party to the escrow.
// @Summary File a dispute on a held escrow
// @Tags escrow
// @Accept json
// @Produce json
// @Param id path string true "Escrow ID"
// @Param body body object{reason=string} true "Dispute reason"
// @Success 201 {object} models.Dispute
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /escrow/{id}/dispute [post]
func (s *EscrowService) FileDisputeRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("userID").(string)
	escrowID := chi.URLParam(r, "id")

	var body struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	d, err := s.FileDispute(r.Context(), userID, escrowID, body.Reason)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(d)
}

// ResolveDisputeRequest handles admin dispute resolution.
// @Summary Resolve a dispute
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Dispute ID"
// @Param body body object{resolution=string,note=string} true "release or refund"
// @Success 200 {object} models.EscrowTransaction
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/disputes/{id}/resolve [post]
func (s *EscrowService) ResolveDisputeRequest(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)
	disputeID := chi.URLParam(r, "id")

	var body struct {
		Resolution string `json:"resolution"`
		Note       string `json:"note"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	esc, err := s.ResolveDispute(r.Context(), adminID, disputeID, body.Resolution, body.Note)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(esc)
}

// ListEscrowTransactions lists escrows for the admin dashboard, optionally
// filtered by status.
// @Summary List escrow transactions
// @Tags admin
// @Produce json
// @Param status query string false "held | released | refunded"
// @Success 200 {object} object{escrows=[]models.EscrowTransaction,count=int}
// @Router /admin/escrow [get]
func (s *EscrowService) ListEscrowTransactions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	query := `
		SELECT id, job_id, client_id, apprentice_id, amount_kobo, status, commission_kobo, payout_kobo,
		       refund_reason, auto_release_date, created_at, released_at, refunded_at
		FROM escrow_transactions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT 200`

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch escrow transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	escrows := []models.EscrowTransaction{}
	for rows.Next() {
		var esc models.EscrowTransaction
		if err := rows.Scan(&esc.ID, &esc.JobID, &esc.ClientID, &esc.ApprenticeID, &esc.AmountKobo, &esc.Status,
			&esc.CommissionKobo, &esc.PayoutKobo, &esc.RefundReason, &esc.AutoReleaseDate,
			&esc.CreatedAt, &esc.ReleasedAt, &esc.RefundedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch escrow transactions", http.StatusInternalServerError, nil)
			return
		}
		escrows = append(escrows, esc)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"escrows": escrows,
		"count":   len(escrows),
	})
}

// GetEscrow returns one escrow. Parties to the escrow and admins only.
// @Summary Get escrow transaction
// @Tags escrow
// @Produce json
// @Param id path string true "Escrow ID"
// @Success 200 {object} models.EscrowTransaction
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /escrow/{id} [get]
func (s *EscrowService) GetEscrow(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("userID").(string)
	role, _ := r.Context().Value("role").(string)
	escrowID := chi.URLParam(r, "id")

	esc, err := s.loadEscrow(r.Context(), escrowID)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	party := userID == esc.ClientID || (esc.ApprenticeID != nil && userID == *esc.ApprenticeID)
	if !party && role != "admin" {
		SendServiceError(w, ErrForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(esc)
}

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/craftbridge/backend/internal/config"
	"github.com/craftbridge/backend/internal/models"
	"github.com/google/uuid"
)

// ReferralService credits referrers when a user they referred pays a
// subscription or has an escrow released. Crediting is always a post-commit
// side effect of those operations, never a user-initiated mutation, and its
// failure never rolls the primary operation back.
type ReferralService struct {
	db     *sql.DB
	ledger *LedgerService
	cfg    *config.Platform
}

func NewReferralService(db *sql.DB, ledger *LedgerService, cfg *config.Platform) *ReferralService {
	return &ReferralService{db: db, ledger: ledger, cfg: cfg}
}

// RecordEarning credits the referrer of sourceUserID, if one exists, with
// points derived from baseAmountKobo. Idempotent per (sourceType, sourceID):
// a retry after a crash cannot double-credit.
func (s *ReferralService) RecordEarning(ctx context.Context, sourceUserID, sourceType, sourceID string, baseAmountKobo int64) error {
	points := s.cfg.ReferralPoints(baseAmountKobo)
	if points <= 0 {
		return nil
	}

	var referrerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT referrer_id FROM referrals WHERE referred_user_id = $1`, sourceUserID).
		Scan(&referrerID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up referrer: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Insert the earning first: the unique (source_type, source_id) makes a
	// duplicate run a no-op before any points move.
	result, err := tx.Exec(`
		INSERT INTO referral_earnings (id, referrer_id, source_user_id, source_type, source_id, points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_type, source_id) DO NOTHING`,
		uuid.New().String(), referrerID, sourceUserID, sourceType, sourceID, points, time.Now())
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return nil // already credited
	}

	if err := s.ledger.CreditPointsTx(tx, referrerID, points, sourceID, "Referral commission ("+sourceType+")"); err != nil {
		return err
	}

	return tx.Commit()
}

// RecordEarningAsync runs RecordEarning post-commit; failures are logged.
func (s *ReferralService) RecordEarningAsync(sourceUserID, sourceType, sourceID string, baseAmountKobo int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.RecordEarning(ctx, sourceUserID, sourceType, sourceID, baseAmountKobo); err != nil {
			log.Printf("[REFERRAL] earning for %s on %s %s failed: %v", sourceUserID, sourceType, sourceID, err)
		}
	}()
}

// ListMyEarnings returns the caller's referral earnings.
// @Summary List referral earnings
// @Tags referrals
// @Produce json
// @Success 200 {object} object{earnings=[]models.ReferralEarning,totalPoints=int}
// @Router /referrals/earnings [get]
func (s *ReferralService) ListMyEarnings(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, referrer_id, source_user_id, source_type, source_id, points, created_at
		FROM referral_earnings
		WHERE referrer_id = $1
		ORDER BY created_at DESC
		LIMIT 100`, userID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch referral earnings", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	earnings := []models.ReferralEarning{}
	var total int64
	for rows.Next() {
		var e models.ReferralEarning
		if err := rows.Scan(&e.ID, &e.ReferrerID, &e.SourceUserID, &e.SourceType, &e.SourceID, &e.Points, &e.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch referral earnings", http.StatusInternalServerError, nil)
			return
		}
		total += e.Points
		earnings = append(earnings, e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"earnings":    earnings,
		"totalPoints": total,
	})
}

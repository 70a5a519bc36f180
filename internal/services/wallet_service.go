package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/craftbridge/backend/internal/models"
	"github.com/go-redis/redis/v8"
)

const walletCacheTTL = 30 * time.Second

// WalletService reads wallet snapshots and ledger history. Wallets are never
// mutated here; only approved requests and escrow transitions move money,
// through LedgerService.
type WalletService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewWalletService(db *sql.DB, redisClient *redis.Client) *WalletService {
	return &WalletService{db: db, redis: redisClient}
}

// GetOrCreate fetches the user's wallet, creating an empty one on first
// touch.
func (s *WalletService) GetOrCreate(ctx context.Context, userID string) (*models.Wallet, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}
	return s.fetch(ctx, userID)
}

func (s *WalletService) fetch(ctx context.Context, userID string) (*models.Wallet, error) {
	var w models.Wallet
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, balance_kobo, available_points, locked_points, total_points, version, created_at, updated_at
		FROM wallets
		WHERE user_id = $1`, userID).
		Scan(&w.UserID, &w.BalanceKobo, &w.AvailablePoints, &w.LockedPoints, &w.TotalPoints, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Snapshot returns the wallet, served from cache when fresh.
func (s *WalletService) Snapshot(ctx context.Context, userID string) (*models.Wallet, error) {
	key := "wallet:" + userID
	if s.redis != nil {
		if data, err := s.redis.Get(ctx, key).Bytes(); err == nil {
			var w models.Wallet
			if json.Unmarshal(data, &w) == nil {
				return &w, nil
			}
		}
	}

	w, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(w); err == nil {
			if err := s.redis.Set(ctx, key, data, walletCacheTTL).Err(); err != nil {
				log.Printf("[WALLET] cache write failed for %s: %v", userID, err)
			}
		}
	}
	return w, nil
}

// InvalidateCache drops the cached snapshot after a mutation commits.
func (s *WalletService) InvalidateCache(ctx context.Context, userID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, "wallet:"+userID).Err(); err != nil {
		log.Printf("[WALLET] cache invalidation failed for %s: %v", userID, err)
	}
}

// GetWallet returns the caller's wallet snapshot. Admins may pass ?userId=
// to inspect another user's wallet.
// @Summary Get wallet
// @Tags wallet
// @Produce json
// @Param userId query string false "Admin only: inspect another user"
// @Success 200 {object} models.Wallet
// @Failure 403 {object} ErrorResponse
// @Router /wallet [get]
func (s *WalletService) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	target := userID
	if q := r.URL.Query().Get("userId"); q != "" && q != userID {
		role, _ := r.Context().Value("role").(string)
		if role != "admin" {
			SendErrorResponse(w, "Admin access required", http.StatusForbidden, nil)
			return
		}
		target = q
	}

	wallet, err := s.Snapshot(r.Context(), target)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wallet)
}

// GetLedger returns the caller's recent ledger entries.
// @Summary Get wallet ledger history
// @Tags wallet
// @Produce json
// @Param limit query int false "Number of entries (default 50, max 200)"
// @Success 200 {object} object{entries=[]models.LedgerEntry,count=int}
// @Router /wallet/ledger [get]
func (s *WalletService) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
		if limit < 1 || limit > 200 {
			limit = 50
		}
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, wallet_user_id, entry_type, amount_kobo, points, balance_after_kobo, points_after, reference, description, created_at
		FROM ledger_entries
		WHERE wallet_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch ledger entries", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletUserID, &e.EntryType, &e.AmountKobo, &e.Points, &e.BalanceAfterKobo, &e.PointsAfter, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch ledger entries", http.StatusInternalServerError, nil)
			return
		}
		entries = append(entries, e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// ListWallets returns all wallets for the admin dashboard.
// @Summary List wallets
// @Tags admin
// @Produce json
// @Success 200 {object} object{wallets=[]models.Wallet,count=int}
// @Router /admin/wallets [get]
func (s *WalletService) ListWallets(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT user_id, balance_kobo, available_points, locked_points, total_points, version, created_at, updated_at
		FROM wallets
		ORDER BY updated_at DESC
		LIMIT 200`)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch wallets", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	wallets := []models.Wallet{}
	for rows.Next() {
		var wl models.Wallet
		if err := rows.Scan(&wl.UserID, &wl.BalanceKobo, &wl.AvailablePoints, &wl.LockedPoints, &wl.TotalPoints, &wl.Version, &wl.CreatedAt, &wl.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch wallets", http.StatusInternalServerError, nil)
			return
		}
		wallets = append(wallets, wl)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"wallets": wallets,
		"count":   len(wallets),
	})
}

package services

import (
	"bytes"
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

// NotificationService records in-app notices and optionally mirrors them to
// an ops webhook. Dispatch is best-effort: a failed notification is logged
// and never surfaces to the operation that triggered it.
type NotificationService struct {
	db         *sql.DB
	webhookURL string
	client     *http.Client
}

func NewNotificationService(db *sql.DB, cfg *config.Platform) *NotificationService {
	return &NotificationService{
		db:         db,
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify persists a notification row and mirrors it to the webhook.
func (s *NotificationService) Notify(ctx context.Context, userID, ntype, title, body, reference string) error {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, userID, ntype, title, body, reference, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	if s.webhookURL != "" {
		if err := s.sendWebhook(map[string]any{
			"id":        id,
			"userId":    userID,
			"type":      ntype,
			"title":     title,
			"body":      body,
			"reference": reference,
		}); err != nil {
			log.Printf("[NOTIFY] webhook delivery failed: %v", err)
		}
	}
	return nil
}

// NotifyAsync dispatches post-commit in a goroutine. Failures are logged
// and swallowed; the committed state transition stands regardless.
func (s *NotificationService) NotifyAsync(userID, ntype, title, body, reference string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Notify(ctx, userID, ntype, title, body, reference); err != nil {
			log.Printf("[NOTIFY] failed for user %s type %s: %v", userID, ntype, err)
		}
	}()
}

func (s *NotificationService) sendWebhook(payload any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CraftBridge-Webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
}

// ListNotifications returns the caller's recent notifications.
// @Summary List notifications
// @Tags notifications
// @Produce json
// @Success 200 {object} object{notifications=[]models.Notification,count=int}
// @Router /notifications [get]
func (s *NotificationService) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, user_id, type, title, body, reference, created_at, read_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 50`, userID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch notifications", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Reference, &n.CreatedAt, &n.ReadAt); err != nil {
			SendErrorResponse(w, "Failed to fetch notifications", http.StatusInternalServerError, nil)
			return
		}
		notifications = append(notifications, n)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"time"

	"github.com/craftbridge/backend/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// instructionTTL is how long an issued transfer reference stays resolvable.
// Bank transfers can take a day to land.
const instructionTTL = 24 * time.Hour

// FundingInstructionService issues bank-transfer instructions for wallet
// funding: the settlement account details plus a one-time transfer reference,
// rendered as a QR code for banking apps. References are held in Redis so an
// admin reviewing a funding request can check the claimed reference was
// actually issued to that user.
type FundingInstructionService struct {
	redis     *redis.Client
	cfg       *config.Platform
	validator *ValidationHelper
}

func NewFundingInstructionService(redisClient *redis.Client, cfg *config.Platform) *FundingInstructionService {
	return &FundingInstructionService{
		redis:     redisClient,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// FundingInstruction is what the user transfers against.
type FundingInstruction struct {
	Reference     string `json:"reference"`
	BankName      string `json:"bankName"`
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	AmountKobo    int64  `json:"amountKobo"`
	ExpiresAt     int64  `json:"expiresAt"`
	QRImage       string `json:"qrImage,omitempty"` // base64 PNG
}

// Issue creates a transfer reference for the user and amount and renders the
// instruction QR.
func (s *FundingInstructionService) Issue(ctx context.Context, userID string, amountKobo int64) (*FundingInstruction, error) {
	if amountKobo <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	inst := &FundingInstruction{
		Reference:     "CB-" + s.generateNonce(),
		BankName:      s.cfg.BankName,
		AccountName:   s.cfg.BankAccountName,
		AccountNumber: s.cfg.BankAccountNumber,
		AmountKobo:    amountKobo,
		ExpiresAt:     time.Now().Add(instructionTTL).Unix(),
	}

	payload, err := json.Marshal(map[string]any{
		"reference":     inst.Reference,
		"userId":        userID,
		"amountKobo":    amountKobo,
		"bankName":      inst.BankName,
		"accountName":   inst.AccountName,
		"accountNumber": inst.AccountNumber,
	})
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		key := fmt.Sprintf("funding:ref:%s", inst.Reference)
		if err := s.redis.Set(ctx, key, payload, instructionTTL).Err(); err != nil {
			return nil, err
		}
	}

	qr, err := qrcode.New(string(payload), qrcode.Medium)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, err
	}
	inst.QRImage = base64.StdEncoding.EncodeToString(buf.Bytes())

	return inst, nil
}

// Resolve looks up an issued reference. Used by admins reviewing funding
// requests; an unknown reference means it was never issued or has expired.
func (s *FundingInstructionService) Resolve(ctx context.Context, reference string) (map[string]any, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("reference lookup unavailable")
	}

	data, err := s.redis.Get(ctx, fmt.Sprintf("funding:ref:%s", reference)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *FundingInstructionService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// GenerateFundingInstructions handles instruction issuance.
// @Summary Get bank transfer instructions for wallet funding
// @Tags payments
// @Accept json
// @Produce json
// @Param request body object{amountKobo=int64} true "Amount to transfer"
// @Success 200 {object} FundingInstruction
// @Failure 400 {object} ErrorResponse
// @Router /payments/funding/instructions [post]
func (s *FundingInstructionService) GenerateFundingInstructions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var body struct {
		AmountKobo int64 `json:"amountKobo" validate:"required,gt=0"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.validator.ValidateStruct(&body); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	inst, err := s.Issue(r.Context(), userID, body.AmountKobo)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inst)
}

// ResolveFundingReference handles admin reference verification.
// @Summary Resolve an issued funding reference
// @Tags admin
// @Produce json
// @Param reference query string true "Transfer reference"
// @Success 200 {object} object{}
// @Failure 404 {object} ErrorResponse
// @Router /admin/funding/reference [get]
func (s *FundingInstructionService) ResolveFundingReference(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		SendErrorResponse(w, "reference is required", http.StatusBadRequest, nil)
		return
	}

	result, err := s.Resolve(r.Context(), reference)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

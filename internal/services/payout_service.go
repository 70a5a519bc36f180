package services

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/craftbridge/backend/internal/models"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

const platformBIC = "CRAFTBRG"

// PayoutService exports approved withdrawal requests as ISO 20022 pacs.008
// credit transfer batches for the settlement bank. Export is read-only: the
// withdrawal lifecycle stays in PaymentRequestService.
type PayoutService struct {
	db *sql.DB
}

func NewPayoutService(db *sql.DB) *PayoutService {
	return &PayoutService{db: db}
}

// ApprovedWithdrawals lists withdrawal requests approved inside [from, to).
func (s *PayoutService) ApprovedWithdrawals(ctx context.Context, from, to time.Time) ([]models.PaymentRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, points_requested, payout_kobo, account_name, account_number, bank_code, processed_at
		FROM payment_requests
		WHERE kind = 'withdrawal' AND status = 'approved' AND processed_at >= $1 AND processed_at < $2
		ORDER BY processed_at ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.PaymentRequest{}
	for rows.Next() {
		var req models.PaymentRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.PointsRequested, &req.PayoutKobo,
			&req.AccountName, &req.AccountNumber, &req.BankCode, &req.ProcessedAt); err != nil {
			return nil, err
		}
		req.Kind = models.KindWithdrawal
		req.Status = models.StatusApproved
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// BuildPacs008 assembles one FIToFICustomerCreditTransfer message covering
// the given withdrawals, one credit transfer per request.
func (s *PayoutService) BuildPacs008(requests []models.PaymentRequest) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: no approved withdrawals in range", ErrValidation)
	}

	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()

	var totalKobo int64
	for _, req := range requests {
		totalKobo += req.PayoutKobo
	}

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: common.Max15NumericText(strconv.Itoa(len(requests))),
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode("NGN"),
				Value: float64(totalKobo) / 100,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
	}

	for _, req := range requests {
		doc.CdtTrfTxInf = append(doc.CdtTrfTxInf, pacs_v08.CreditTransferTransaction39{
			PmtId: pacs_v08.PaymentIdentification7{
				InstrId:    &[]common.Max35Text{common.Max35Text(req.ID)}[0],
				EndToEndId: common.Max35Text(req.ID),
				TxId:       &[]common.Max35Text{common.Max35Text(req.ID)}[0],
			},
			IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode("NGN"),
				Value: float64(req.PayoutKobo) / 100,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			ChrgBr:        "SLEV",
			DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
				FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
					BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(platformBIC)}[0],
				},
			},
			Dbtr: pacs_v08.PartyIdentification135{
				Nm: &[]common.Max140Text{common.Max140Text("CraftBridge Ltd")}[0],
			},
			CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
				FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
					ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
						MmbId: common.Max35Text(req.BankCode),
					},
				},
			},
			Cdtr: pacs_v08.PartyIdentification135{
				Nm: &[]common.Max140Text{common.Max140Text(req.AccountName)}[0],
			},
		})
	}

	return doc, nil
}

// ConvertToXML renders an ISO 20022 document as an XML string.
func (s *PayoutService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

// ExportWithdrawals handles the pacs.008 batch export.
// @Summary Export approved withdrawals as pacs.008 XML
// @Description Build an ISO 20022 credit transfer batch for the settlement bank
// @Tags admin
// @Produce xml
// @Param from query string true "RFC3339 start (inclusive)"
// @Param to query string true "RFC3339 end (exclusive)"
// @Success 200 {string} string "pacs.008.001.08 document"
// @Failure 400 {object} ErrorResponse
// @Router /admin/payouts/export [get]
func (s *PayoutService) ExportWithdrawals(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		SendErrorResponse(w, "from must be RFC3339", http.StatusBadRequest, nil)
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		SendErrorResponse(w, "to must be RFC3339", http.StatusBadRequest, nil)
		return
	}

	requests, err := s.ApprovedWithdrawals(r.Context(), from, to)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch withdrawals", http.StatusInternalServerError, nil)
		return
	}

	doc, err := s.BuildPacs008(requests)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	xmlData, err := s.ConvertToXML(doc)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xmlData))
}

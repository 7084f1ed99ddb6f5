// internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	commonerrors "transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/common/validation"
	"transfer-reconciler/internal/models"
	indexmatchattempt "transfer-reconciler/internal/workers/data-access/index-match-attempt"
	extractpaymentinfo "transfer-reconciler/internal/workers/extraction/extract-payment-info"
)

const maxBodyBytes = 1 << 20

type createPaymentRequest struct {
	TransactionID string          `json:"transaction_id" validate:"required,max=128"`
	Amount        decimal.Decimal `json:"amount"`
	PayerName     string          `json:"payer_name" validate:"max=255"`
	AccountNumber string          `json:"account_number" validate:"omitempty,numeric,min=6,max=20"`
	BusinessID    *int64          `json:"business_id" validate:"omitempty,min=1"`
	WebhookURL    string          `json:"webhook_url" validate:"omitempty,url"`
	ExpiresAt     *time.Time      `json:"expires_at"`
}

type createPaymentResponse struct {
	Payment      *models.PaymentRequest `json:"payment"`
	RecheckJobID string                 `json:"recheckJobId,omitempty"`
}

// readValidated reads the body, checks it against schema and decodes it into
// out. It writes the error response itself and reports false on failure.
func (s *Server) readValidated(w http.ResponseWriter, r *http.Request, schema string, out interface{}) bool {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, string(commonerrors.ErrCodeInvalidPayload), "request body too large", nil)
		return false
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeInvalidPayload), "body is not valid JSON", nil)
		return false
	}

	result, err := validation.Validate(schema, doc)
	if err != nil {
		s.logger.Error("schema validation failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, string(commonerrors.ErrCodeInternal), "validation unavailable", nil)
		return false
	}
	if !result.Valid {
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeInvalidPayload), "request failed validation", result.Errors)
		return false
	}

	if err := json.Unmarshal(raw, out); err != nil {
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeInvalidPayload), err.Error(), nil)
		return false
	}
	return true
}

func (s *Server) createPaymentRequest(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !s.readValidated(w, r, validation.PaymentRequestSchema, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeInvalidPayload), err.Error(), nil)
		return
	}

	p := &models.PaymentRequest{
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		PayerName:     req.PayerName,
		AccountNumber: req.AccountNumber,
		BusinessID:    req.BusinessID,
		WebhookURL:    req.WebhookURL,
		ExpiresAt:     req.ExpiresAt,
	}
	if err := s.deps.Payments.Create(r.Context(), p); err != nil {
		if commonerrors.HasCode(err, commonerrors.ErrCodeInvalidPayload) {
			writeError(w, http.StatusConflict, string(commonerrors.ErrCodeInvalidPayload), err.Error(), nil)
			return
		}
		s.logger.Error("failed to create payment request", map[string]interface{}{
			"transactionId": req.TransactionID,
			"error":         err.Error(),
		})
		writeError(w, http.StatusInternalServerError, string(commonerrors.ErrCodeDatabaseQueryFailed), "could not store payment request", nil)
		return
	}

	resp := createPaymentResponse{Payment: p}
	if s.deps.Scheduler != nil {
		job, err := s.deps.Scheduler.Schedule(r.Context(), p.ID)
		if err != nil {
			s.logger.Warn("failed to schedule recheck", map[string]interface{}{
				"paymentId": p.ID,
				"error":     err.Error(),
			})
		} else {
			resp.RecheckJobID = job.ID
		}
	}

	s.logger.Info("payment request created", map[string]interface{}{
		"paymentId":     p.ID,
		"transactionId": p.TransactionID,
		"amount":        p.Amount.String(),
	})
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var input extractpaymentinfo.Input
	if !s.readValidated(w, r, validation.ExtractRequestSchema, &input) {
		return
	}

	out, err := s.deps.Extractor.Execute(r.Context(), &input)
	switch {
	case errors.Is(err, extractpaymentinfo.ErrExtractionFailed):
		writeJSON(w, http.StatusUnprocessableEntity, out)
	case err != nil:
		writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeInvalidPayload), err.Error(), nil)
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) searchMatchAttempts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Attempts == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "match attempt index is disabled", nil)
		return
	}

	q := r.URL.Query()
	input := &indexmatchattempt.SearchInput{
		TransactionID: q.Get("transaction_id"),
		Result:        q.Get("match_result"),
	}
	for name, dst := range map[string]*int64{"email_id": &input.EmailID, "payment_id": &input.PaymentID} {
		if v := q.Get(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeInvalidPayload), fmt.Sprintf("%s must be an integer", name), nil)
				return
			}
			*dst = n
		}
	}
	for name, dst := range map[string]*int{"from": &input.From, "size": &input.Size} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, string(commonerrors.ErrCodeInvalidPayload), fmt.Sprintf("%s must be an integer", name), nil)
				return
			}
			*dst = n
		}
	}

	out, err := s.deps.Attempts.Search(r.Context(), input)
	if err != nil {
		s.logger.Error("match attempt search failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusBadGateway, string(commonerrors.ErrCodeTransientIO), "search unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

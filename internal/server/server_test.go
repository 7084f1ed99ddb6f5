// internal/server/server_test.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-reconciler/internal/common/config"
	commonerrors "transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/queue"
	"transfer-reconciler/internal/models"
	indexmatchattempt "transfer-reconciler/internal/workers/data-access/index-match-attempt"
	extractpaymentinfo "transfer-reconciler/internal/workers/extraction/extract-payment-info"
)

// ==========================
// Test Helper Functions
// ==========================

type fakePayments struct {
	created []*models.PaymentRequest
	err     error
}

func (f *fakePayments) Create(ctx context.Context, p *models.PaymentRequest) error {
	if f.err != nil {
		return f.err
	}
	p.ID = int64(len(f.created) + 1)
	p.Status = models.PaymentStatusPending
	f.created = append(f.created, p)
	return nil
}

type fakeScheduler struct {
	scheduled []int64
	err       error
}

func (f *fakeScheduler) Schedule(ctx context.Context, paymentID int64) (*queue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.scheduled = append(f.scheduled, paymentID)
	return &queue.Job{ID: "recheck-1", Type: queue.JobTypeRecheckPayment}, nil
}

type fakeSearcher struct {
	input *indexmatchattempt.SearchInput
}

func (f *fakeSearcher) Search(ctx context.Context, input *indexmatchattempt.SearchInput) (*indexmatchattempt.SearchOutput, error) {
	f.input = input
	return &indexmatchattempt.SearchOutput{TotalHits: 0, Attempts: []indexmatchattempt.Document{}}, nil
}

type fixture struct {
	server    *Server
	payments  *fakePayments
	scheduler *fakeScheduler
}

func newFixture(t *testing.T) *fixture {
	extractor, err := extractpaymentinfo.NewHandler(nil, nil, logger.NewNoOpLogger())
	require.NoError(t, err)

	f := &fixture{payments: &fakePayments{}, scheduler: &fakeScheduler{}}
	f.server = New(config.ServerConfig{}, Deps{
		Payments:  f.payments,
		Scheduler: f.scheduler,
		Extractor: extractor,
	}, logger.NewTestLogger(t))
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ==========================
// Payment Request Tests
// ==========================

func TestCreatePaymentRequest(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setup          func(f *fixture)
		wantStatus     int
		validateOutput func(t *testing.T, f *fixture, body map[string]interface{})
	}{
		{
			name:       "valid request is stored and rechecked",
			body:       `{"transaction_id":"TXN-1","amount":5000,"payer_name":"John Doe","account_number":"0123456789","webhook_url":"https://shop.example/hook"}`,
			wantStatus: http.StatusCreated,
			validateOutput: func(t *testing.T, f *fixture, body map[string]interface{}) {
				require.Len(t, f.payments.created, 1)
				assert.Equal(t, "5000", f.payments.created[0].Amount.String())
				assert.Equal(t, []int64{1}, f.scheduler.scheduled)
				assert.Equal(t, "recheck-1", body["recheckJobId"])
			},
		},
		{
			name:       "missing amount",
			body:       `{"transaction_id":"TXN-1"}`,
			wantStatus: http.StatusBadRequest,
			validateOutput: func(t *testing.T, f *fixture, body map[string]interface{}) {
				assert.Equal(t, "INVALID_PAYLOAD", body["error"])
				assert.Contains(t, body["details"].([]interface{})[0].(map[string]interface{})["field"], "amount")
				assert.Empty(t, f.payments.created)
			},
		},
		{
			name:       "non-positive amount",
			body:       `{"transaction_id":"TXN-1","amount":0}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"transaction_id":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "duplicate transaction id",
			body:       `{"transaction_id":"TXN-1","amount":10}`,
			setup:      func(f *fixture) { f.payments.err = commonerrors.NewInvalidPayloadError("duplicate") },
			wantStatus: http.StatusConflict,
		},
		{
			name:       "database failure",
			body:       `{"transaction_id":"TXN-1","amount":10}`,
			setup:      func(f *fixture) { f.payments.err = commonerrors.NewDatabaseQueryFailedError("insert", errors.New("down")) },
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "scheduling failure still creates",
			body:       `{"transaction_id":"TXN-1","amount":10}`,
			setup:      func(f *fixture) { f.scheduler.err = errors.New("redis down") },
			wantStatus: http.StatusCreated,
			validateOutput: func(t *testing.T, f *fixture, body map[string]interface{}) {
				assert.Nil(t, body["recheckJobId"])
				assert.Len(t, f.payments.created, 1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			rec := f.do(http.MethodPost, "/api/v1/payment-requests", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.validateOutput != nil {
				tt.validateOutput(t, f, decode(t, rec))
			}
		})
	}
}

// ==========================
// Extraction Endpoint Tests
// ==========================

func TestExtract(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/extract", `{"subject":"Credit","text_body":"Amount: NGN 12,500.00 received"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "currency_pattern", body["method"])
	assert.Equal(t, "12500", body["data"].(map[string]interface{})["amount"])

	rec = f.do(http.MethodPost, "/api/v1/extract", `{"text_body":"Your statement is ready"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotNil(t, decode(t, rec)["diagnostics"])

	rec = f.do(http.MethodPost, "/api/v1/extract", `{"subject":"no body"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ==========================
// Operational Endpoint Tests
// ==========================

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	f.server.now = func() time.Time { return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) }

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	f.server.deps.Checks = map[string]Checker{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	}
	rec = f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not_ready", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "connection refused", checks["redis"])

	rec = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchMatchAttempts(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/match-attempts", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	searcher := &fakeSearcher{}
	f.server.deps.Attempts = searcher

	rec = f.do(http.MethodGet, "/api/v1/match-attempts?email_id=9&match_result=unmatched&size=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(9), searcher.input.EmailID)
	assert.Equal(t, "unmatched", searcher.input.Result)
	assert.Equal(t, 5, searcher.input.Size)

	rec = f.do(http.MethodGet, "/api/v1/match-attempts?payment_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

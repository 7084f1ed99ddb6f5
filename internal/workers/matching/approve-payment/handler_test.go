// internal/workers/matching/approve-payment/handler_test.go
package approvepayment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/queue"
	"transfer-reconciler/internal/models"
	"transfer-reconciler/internal/repository"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeStore struct {
	business    *models.Business
	businessErr error
	approveErr  error
	approvals   []repository.Approval
}

func (f *fakeStore) Approve(ctx context.Context, a repository.Approval) error {
	if f.approveErr != nil {
		return f.approveErr
	}
	f.approvals = append(f.approvals, a)
	return nil
}

func (f *fakeStore) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	return f.business, f.businessErr
}

type fakeEnqueuer struct {
	err  error
	jobs []*queue.Job
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, jobType queue.JobType, payload map[string]interface{}) (*queue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	job := &queue.Job{ID: "job-1", Type: jobType, Payload: payload}
	f.jobs = append(f.jobs, job)
	return job, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func createTestInput(received string) *Input {
	businessID := int64(7)
	return &Input{
		Payment: &models.PaymentRequest{
			ID:            42,
			TransactionID: "TXN-42",
			Amount:        dec("50000"),
			Status:        models.PaymentStatusPending,
			BusinessID:    &businessID,
		},
		Email: &models.InboundEmail{
			ID:        9,
			MessageID: "<abc@bank>",
			MailboxID: "primary",
			Subject:   "Credit Alert",
			EmailDate: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
			Extracted: &models.ExtractedSignal{
				Amount:             dec(received),
				SenderName:         "JOHN DOE",
				PayerAccountNumber: "0987654321",
				Bank:               "GTBank",
				Method:             "template",
			},
		},
	}
}

// ==========================
// Charges Tests
// ==========================

func TestComputeCharges(t *testing.T) {
	cfg := LoadConfig()

	tests := []struct {
		name           string
		amount         string
		business       *models.Business
		validateOutput func(t *testing.T, c models.ChargeBreakdown)
	}{
		{
			name:   "defaults round to nearest 500",
			amount: "50000",
			validateOutput: func(t *testing.T, c models.ChargeBreakdown) {
				assert.True(t, dec("500").Equal(c.Percentage))
				assert.True(t, dec("50").Equal(c.Fixed))
				assert.True(t, dec("49500").Equal(c.BusinessReceives))
				assert.True(t, dec("500").Equal(c.Total))
			},
		},
		{
			name:   "below 1000 rounds to nearest 100",
			amount: "800",
			validateOutput: func(t *testing.T, c models.ChargeBreakdown) {
				assert.True(t, dec("700").Equal(c.BusinessReceives))
				assert.True(t, dec("100").Equal(c.Total))
			},
		},
		{
			name:     "business override",
			amount:   "50000",
			business: &models.Business{ChargePercentage: decPtr("2"), ChargeFixed: decPtr("100")},
			validateOutput: func(t *testing.T, c models.ChargeBreakdown) {
				assert.True(t, dec("1000").Equal(c.Percentage))
				assert.True(t, dec("49000").Equal(c.BusinessReceives))
				assert.True(t, dec("1000").Equal(c.Total))
			},
		},
		{
			name:     "exempt business",
			amount:   "50000",
			business: &models.Business{ChargesExempt: true, ChargePercentage: decPtr("5")},
			validateOutput: func(t *testing.T, c models.ChargeBreakdown) {
				assert.True(t, c.Total.IsZero())
				assert.True(t, c.Percentage.IsZero())
				assert.True(t, dec("50000").Equal(c.BusinessReceives))
			},
		},
		{
			name:     "paid by customer",
			amount:   "50000",
			business: &models.Business{ChargesPaidByCustomer: true},
			validateOutput: func(t *testing.T, c models.ChargeBreakdown) {
				assert.True(t, c.PaidByCustomer)
				assert.True(t, dec("550").Equal(c.Total))
				assert.True(t, dec("50000").Equal(c.BusinessReceives))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validateOutput(t, ComputeCharges(dec(tt.amount), tt.business, cfg))
		})
	}
}

func TestMismatch(t *testing.T) {
	cfg := LoadConfig()

	tests := []struct {
		name     string
		received string
		want     bool
		contains string
	}{
		{"exact", "5000", false, ""},
		{"within epsilon", "5000.01", false, ""},
		{"underpayment", "4999.50", true, "difference: ₦0.50"},
		{"overpayment", "5000.75", true, "overpayment: ₦0.75"},
		{"beyond tolerance", "5001.50", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Mismatch(dec("5000"), dec(tt.received), cfg)
			assert.Equal(t, tt.want, got)
			if tt.contains != "" {
				assert.Contains(t, reason, tt.contains)
				assert.Contains(t, reason, "expected ₦5000.00")
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}

// ==========================
// Handler Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	fixedNow := time.Date(2026, 5, 1, 10, 3, 0, 0, time.UTC)

	tests := []struct {
		name           string
		store          *fakeStore
		enqueuer       *fakeEnqueuer
		input          *Input
		expectError    bool
		validateOutput func(t *testing.T, out *Output, err error, store *fakeStore, q *fakeEnqueuer)
	}{
		{
			name:     "approves and queues webhook",
			store:    &fakeStore{business: &models.Business{ID: 7}},
			enqueuer: &fakeEnqueuer{},
			input:    createTestInput("50000"),
			validateOutput: func(t *testing.T, out *Output, err error, store *fakeStore, q *fakeEnqueuer) {
				require.NoError(t, err)
				assert.Equal(t, "job-1", out.WebhookJobID)
				assert.False(t, out.IsMismatch)

				require.Len(t, store.approvals, 1)
				a := store.approvals[0]
				assert.Equal(t, int64(42), a.PaymentID)
				assert.Equal(t, int64(9), a.EmailID)
				assert.Equal(t, fixedNow, a.MatchedAt)
				assert.Equal(t, "JOHN DOE", a.PayerName)
				assert.Equal(t, "GTBank", a.Bank)
				assert.Equal(t, "<abc@bank>", a.EmailData["message_id"])

				require.Len(t, q.jobs, 1)
				assert.Equal(t, queue.JobTypeDispatchWebhook, q.jobs[0].Type)
				assert.Equal(t, int64(42), q.jobs[0].Payload["payment_id"])
			},
		},
		{
			name:     "flags mismatch",
			store:    &fakeStore{},
			enqueuer: &fakeEnqueuer{},
			input:    createTestInput("49999.50"),
			validateOutput: func(t *testing.T, out *Output, err error, store *fakeStore, q *fakeEnqueuer) {
				require.NoError(t, err)
				assert.True(t, out.IsMismatch)
				assert.True(t, store.approvals[0].IsMismatch)
				assert.Contains(t, store.approvals[0].MismatchReason, "Payment approved with mismatch flag")
			},
		},
		{
			name:        "already processed is surfaced without webhook",
			store:       &fakeStore{approveErr: commonerrors.NewAlreadyProcessedError("payment 42 is no longer pending")},
			enqueuer:    &fakeEnqueuer{},
			input:       createTestInput("50000"),
			expectError: true,
			validateOutput: func(t *testing.T, out *Output, err error, store *fakeStore, q *fakeEnqueuer) {
				assert.True(t, commonerrors.IsAlreadyProcessed(err))
				assert.Nil(t, out)
				assert.Empty(t, q.jobs)
			},
		},
		{
			name:        "business lookup failure",
			store:       &fakeStore{businessErr: commonerrors.NewDatabaseQueryFailedError("get business", errors.New("timeout"))},
			enqueuer:    &fakeEnqueuer{},
			input:       createTestInput("50000"),
			expectError: true,
			validateOutput: func(t *testing.T, out *Output, err error, store *fakeStore, q *fakeEnqueuer) {
				assert.True(t, commonerrors.IsRetryable(err))
				assert.Empty(t, store.approvals)
			},
		},
		{
			name:     "enqueue failure keeps approval",
			store:    &fakeStore{},
			enqueuer: &fakeEnqueuer{err: errors.New("redis down")},
			input:    createTestInput("50000"),
			validateOutput: func(t *testing.T, out *Output, err error, store *fakeStore, q *fakeEnqueuer) {
				require.NoError(t, err)
				assert.Empty(t, out.WebhookJobID)
				assert.Len(t, store.approvals, 1)
			},
		},
		{
			name:     "missing extraction",
			store:    &fakeStore{},
			enqueuer: &fakeEnqueuer{},
			input: func() *Input {
				in := createTestInput("50000")
				in.Email.Extracted = nil
				return in
			}(),
			expectError: true,
			validateOutput: func(t *testing.T, out *Output, err error, store *fakeStore, q *fakeEnqueuer) {
				assert.ErrorIs(t, err, ErrMissingExtraction)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil, tt.store, tt.enqueuer, logger.NewTestLogger(t))
			h.now = func() time.Time { return fixedNow }

			out, err := h.Execute(context.Background(), tt.input)
			if tt.expectError {
				require.Error(t, err)
			}
			tt.validateOutput(t, out, err, tt.store, tt.enqueuer)
		})
	}
}

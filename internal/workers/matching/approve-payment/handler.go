// internal/workers/matching/approve-payment/handler.go
package approvepayment

import (
	"context"
	"errors"
	"strconv"
	"time"

	commonerrors "transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/metrics"
	"transfer-reconciler/internal/common/queue"
	"transfer-reconciler/internal/models"
	"transfer-reconciler/internal/repository"
)

const TaskType = "approve-payment"

var (
	ErrMissingPayment    = errors.New("MISSING_PAYMENT")
	ErrMissingEmail      = errors.New("MISSING_EMAIL")
	ErrMissingExtraction = errors.New("MISSING_EXTRACTION")
)

// Store is the part of the payment repository approval writes through.
type Store interface {
	Approve(ctx context.Context, a repository.Approval) error
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
}

// Enqueuer schedules the follow-up webhook job.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType queue.JobType, payload map[string]interface{}) (*queue.Job, error)
}

type Handler struct {
	config *Config
	store  Store
	queue  Enqueuer
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, store Store, q Enqueuer, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	return &Handler{
		config: config,
		store:  store,
		queue:  q,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:    time.Now,
	}
}

// Execute settles input.Payment with input.Email in one transaction and
// queues the webhook. A request or email settled by someone else returns an
// ALREADY_PROCESSED error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Payment == nil {
		return nil, ErrMissingPayment
	}
	if input.Email == nil {
		return nil, ErrMissingEmail
	}
	if input.Email.Extracted == nil {
		return nil, ErrMissingExtraction
	}

	payment, email := input.Payment, input.Email
	signal := email.Extracted

	var business *models.Business
	if payment.BusinessID != nil {
		b, err := h.store.GetBusiness(ctx, *payment.BusinessID)
		if err != nil {
			return nil, err
		}
		business = b
	}

	charges := ComputeCharges(payment.Amount, business, h.config)
	isMismatch, reason := Mismatch(payment.Amount, signal.Amount, h.config)

	approval := repository.Approval{
		PaymentID:          payment.ID,
		EmailID:            email.ID,
		ReceivedAmount:     signal.Amount,
		MatchedAt:          h.now().UTC(),
		PayerName:          signal.SenderName,
		PayerAccountNumber: signal.PayerAccountNumber,
		Bank:               signal.Bank,
		IsMismatch:         isMismatch,
		MismatchReason:     reason,
		Charges:            charges,
		EmailData:          email.Snapshot(),
	}

	if err := h.store.Approve(ctx, approval); err != nil {
		result := "error"
		if commonerrors.IsAlreadyProcessed(err) {
			result = "already_processed"
		}
		metrics.Approvals.WithLabelValues(result, strconv.FormatBool(isMismatch)).Inc()
		return nil, err
	}
	metrics.Approvals.WithLabelValues("approved", strconv.FormatBool(isMismatch)).Inc()

	h.logger.Info("payment approved", map[string]interface{}{
		"paymentId":     payment.ID,
		"transactionId": payment.TransactionID,
		"emailId":       email.ID,
		"received":      signal.Amount.StringFixed(2),
		"isMismatch":    isMismatch,
	})

	output := &Output{
		PaymentID:      payment.ID,
		TransactionID:  payment.TransactionID,
		ReceivedAmount: signal.Amount,
		IsMismatch:     isMismatch,
		MismatchReason: reason,
		Charges:        charges,
	}

	// The approval is committed; a failed enqueue is logged and never undoes it.
	job, err := h.queue.Enqueue(ctx, queue.JobTypeDispatchWebhook, queue.DispatchWebhookPayload{PaymentID: payment.ID}.ToMap())
	if err != nil {
		h.logger.Error("failed to enqueue webhook dispatch", map[string]interface{}{
			"paymentId": payment.ID,
			"error":     err.Error(),
		})
		return output, nil
	}
	output.WebhookJobID = job.ID
	return output, nil
}

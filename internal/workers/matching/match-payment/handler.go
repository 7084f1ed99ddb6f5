// internal/workers/matching/match-payment/handler.go
package matchpayment

import (
	"context"
	"fmt"
	"time"

	commonerrors "transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/metrics"
	"transfer-reconciler/internal/common/queue"
	"transfer-reconciler/internal/models"
	"transfer-reconciler/internal/repository"
	extractpaymentinfo "transfer-reconciler/internal/workers/extraction/extract-payment-info"
	approvepayment "transfer-reconciler/internal/workers/matching/approve-payment"
)

const TaskType = "match-payment"

type EmailStore interface {
	GetByID(ctx context.Context, id int64) (*models.InboundEmail, error)
	SaveExtraction(ctx context.Context, id int64, sig *models.ExtractedSignal, diagnostics interface{}) error
}

type CandidateSource interface {
	ListCandidates(ctx context.Context, q repository.CandidateQuery) ([]*models.PaymentRequest, error)
}

type Extractor interface {
	Extract(ctx context.Context, e *models.InboundEmail) *extractpaymentinfo.Result
}

type Approver interface {
	Execute(ctx context.Context, input *approvepayment.Input) (*approvepayment.Output, error)
}

type AttemptStore interface {
	Insert(ctx context.Context, a *models.MatchAttempt) error
}

// AttemptIndexer mirrors attempts to a search index; optional.
type AttemptIndexer interface {
	Index(ctx context.Context, a *models.MatchAttempt) error
}

type Handler struct {
	config    *Config
	emails    EmailStore
	payments  CandidateSource
	extractor Extractor
	approver  Approver
	attempts  AttemptStore
	indexer   AttemptIndexer
	logger    logger.Logger
	now       func() time.Time
}

type Deps struct {
	Emails    EmailStore
	Payments  CandidateSource
	Extractor Extractor
	Approver  Approver
	Attempts  AttemptStore
	Indexer   AttemptIndexer
}

func NewHandler(config *Config, deps Deps, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	return &Handler{
		config:    config,
		emails:    deps.Emails,
		payments:  deps.Payments,
		extractor: deps.Extractor,
		approver:  deps.Approver,
		attempts:  deps.Attempts,
		indexer:   deps.Indexer,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:       time.Now,
	}
}

// HandleJob runs a process-email job from the queue.
func (h *Handler) HandleJob(ctx context.Context, job *queue.Job) error {
	payload, err := queue.ProcessEmailPayloadFromMap(job.Payload)
	if err != nil || payload.EmailID == 0 {
		return commonerrors.NewInvalidPayloadError(fmt.Sprintf("process-email payload: %v", job.Payload))
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &Input{EmailID: payload.EmailID})
	if err != nil {
		return err
	}

	h.logger.Info("email processed", map[string]interface{}{
		"jobId":     job.ID,
		"emailId":   output.EmailID,
		"outcome":   output.Outcome,
		"paymentId": output.PaymentID,
		"evaluated": output.Evaluated,
	})
	return nil
}

// Execute loads the email, extracts it if needed, and matches it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	email, err := h.emails.GetByID(ctx, input.EmailID)
	if err != nil {
		return nil, err
	}

	if email.IsBound() {
		metrics.MatchOutcomes.WithLabelValues(OutcomeAlreadyBound).Inc()
		return &Output{EmailID: email.ID, Outcome: OutcomeAlreadyBound, PaymentID: *email.MatchedPaymentID}, nil
	}

	ok, err := h.EnsureExtracted(ctx, email)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.MatchOutcomes.WithLabelValues(OutcomeExtractionFailed).Inc()
		return &Output{EmailID: email.ID, Outcome: OutcomeExtractionFailed}, nil
	}

	return h.MatchEmail(ctx, email)
}

// EnsureExtracted runs the extractor for an email with no stored signal and
// persists the result. It reports whether the email has a signal afterwards.
func (h *Handler) EnsureExtracted(ctx context.Context, email *models.InboundEmail) (bool, error) {
	if email.Extracted != nil {
		return true, nil
	}

	result := h.extractor.Extract(ctx, email)
	signal := result.Signal()
	if err := h.emails.SaveExtraction(ctx, email.ID, signal, result.Diagnostics); err != nil {
		return false, err
	}
	if signal == nil {
		h.logger.Info("no payment data extracted", map[string]interface{}{
			"emailId": email.ID,
			"errors":  result.Diagnostics.Errors,
		})
		return false, nil
	}
	email.Extracted = signal
	return true, nil
}

// MatchEmail finds the earliest open request the email satisfies and approves
// it. Every candidate in the window is considered.
func (h *Handler) MatchEmail(ctx context.Context, email *models.InboundEmail) (*Output, error) {
	started := h.now()
	output := &Output{EmailID: email.ID, Outcome: OutcomeUnmatched}

	candidates, err := h.payments.ListCandidates(ctx, repository.CandidateQuery{
		MailboxID: email.MailboxID,
		EmailDate: email.EmailDate,
		LookBack:  h.config.LookBack,
		Now:       started,
	})
	if err != nil {
		return nil, err
	}

	winner, attempts := SelectCandidate(h.config, email, candidates, started)
	if len(attempts) == 0 {
		attempts = append(attempts, noCandidateAttempt(email))
	}
	output.Evaluated = len(candidates)

	elapsed := h.now().Sub(started).Milliseconds()
	for _, a := range attempts {
		a.ProcessingTimeMs = elapsed
		h.record(ctx, a)
	}

	if winner == nil {
		metrics.MatchOutcomes.WithLabelValues(OutcomeUnmatched).Inc()
		return output, nil
	}

	output.PaymentID = winner.ID
	output.TransactionID = winner.TransactionID

	if _, err := h.approver.Execute(ctx, &approvepayment.Input{Payment: winner, Email: email}); err != nil {
		if commonerrors.IsAlreadyProcessed(err) {
			h.logger.Info("match lost the approval race", map[string]interface{}{
				"emailId":   email.ID,
				"paymentId": winner.ID,
				"reason":    err.Error(),
			})
			output.Outcome = OutcomeAlreadyProcessed
			metrics.MatchOutcomes.WithLabelValues(OutcomeAlreadyProcessed).Inc()
			return output, nil
		}
		return nil, err
	}

	output.Outcome = OutcomeMatched
	metrics.MatchOutcomes.WithLabelValues(OutcomeMatched).Inc()
	return output, nil
}

// record persists an attempt. Audit failures never fail the match.
func (h *Handler) record(ctx context.Context, a *models.MatchAttempt) {
	if h.attempts != nil {
		if err := h.attempts.Insert(ctx, a); err != nil {
			h.logger.Warn("failed to store match attempt", map[string]interface{}{
				"emailId": a.InboundEmailID,
				"error":   err.Error(),
			})
		}
	}
	if h.indexer != nil {
		if err := h.indexer.Index(ctx, a); err != nil {
			h.logger.Warn("failed to index match attempt", map[string]interface{}{
				"emailId": a.InboundEmailID,
				"error":   err.Error(),
			})
		}
	}
}

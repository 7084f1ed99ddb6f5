// internal/workers/scheduling/recheck-payment/handler.go
package recheckpayment

import (
	"context"
	"fmt"
	"time"

	commonerrors "transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/queue"
	"transfer-reconciler/internal/models"
	"transfer-reconciler/internal/repository"
	matchpayment "transfer-reconciler/internal/workers/matching/match-payment"
)

const TaskType = "recheck-payment"

type PaymentSource interface {
	GetByID(ctx context.Context, id int64) (*models.PaymentRequest, error)
}

type EmailSource interface {
	ListRecheckCandidates(ctx context.Context, q repository.RecheckQuery) ([]*models.InboundEmail, error)
}

// Matcher is the extraction and matching half of the pipeline.
type Matcher interface {
	EnsureExtracted(ctx context.Context, email *models.InboundEmail) (bool, error)
	MatchEmail(ctx context.Context, email *models.InboundEmail) (*matchpayment.Output, error)
}

// MailboxFetcher triggers an immediate poll; "" polls every mailbox.
type MailboxFetcher interface {
	FetchNow(ctx context.Context, mailboxID string) error
}

type DelayedEnqueuer interface {
	EnqueueIn(ctx context.Context, jobType queue.JobType, payload map[string]interface{}, delay time.Duration) (*queue.Job, error)
}

type Handler struct {
	config   *Config
	payments PaymentSource
	emails   EmailSource
	matcher  Matcher
	fetcher  MailboxFetcher
	queue    DelayedEnqueuer
	logger   logger.Logger
	now      func() time.Time
}

type Deps struct {
	Payments PaymentSource
	Emails   EmailSource
	Matcher  Matcher
	Fetcher  MailboxFetcher
	Queue    DelayedEnqueuer
}

func NewHandler(config *Config, deps Deps, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	return &Handler{
		config:   config,
		payments: deps.Payments,
		emails:   deps.Emails,
		matcher:  deps.Matcher,
		fetcher:  deps.Fetcher,
		queue:    deps.Queue,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:      time.Now,
	}
}

// Schedule queues a recheck of paymentID after the configured delay.
func (h *Handler) Schedule(ctx context.Context, paymentID int64) (*queue.Job, error) {
	job, err := h.queue.EnqueueIn(ctx, queue.JobTypeRecheckPayment,
		queue.RecheckPaymentPayload{PaymentID: paymentID}.ToMap(), h.config.Delay)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("recheck scheduled", map[string]interface{}{
		"paymentId": paymentID,
		"jobId":     job.ID,
		"delay":     h.config.Delay.String(),
	})
	return job, nil
}

func (h *Handler) HandleJob(ctx context.Context, job *queue.Job) error {
	payload, err := queue.RecheckPaymentPayloadFromMap(job.Payload)
	if err != nil || payload.PaymentID == 0 {
		return commonerrors.NewInvalidPayloadError(fmt.Sprintf("recheck-payment payload: %v", job.Payload))
	}

	output, err := h.Execute(ctx, &Input{PaymentID: payload.PaymentID})
	if err != nil {
		return err
	}

	h.logger.Info("recheck finished", map[string]interface{}{
		"jobId":         job.ID,
		"paymentId":     output.PaymentID,
		"outcome":       output.Outcome,
		"emailsChecked": output.EmailsChecked,
	})
	return nil
}

// Execute looks for an already-stored email that settles the request. With
// no match it asks the watcher for an immediate poll and does nothing more.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	p, err := h.payments.GetByID(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}

	output := &Output{PaymentID: p.ID, Outcome: OutcomeClosed}
	if !p.IsOpen(h.now()) {
		return output, nil
	}

	emails, err := h.emails.ListRecheckCandidates(ctx, repository.RecheckQuery{
		Amount:        p.Amount,
		Tolerance:     h.config.AmountTolerance,
		AccountNumber: p.AccountNumber,
		CreatedAt:     p.CreatedAt,
		LookBack:      h.config.LookBack,
		MailboxID:     p.MailboxID,
		Limit:         h.config.Limit,
	})
	if err != nil {
		return nil, err
	}

	for _, email := range emails {
		if email.IsBound() {
			continue
		}
		ok, err := h.matcher.EnsureExtracted(ctx, email)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		output.EmailsChecked++

		// The email goes to the earliest request it qualifies for, which may
		// be an older one than p.
		result, err := h.matcher.MatchEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if result.PaymentID != p.ID {
			if result.Outcome == matchpayment.OutcomeMatched {
				output.SettledOther++
				h.logger.Info("recheck email settled an earlier request", map[string]interface{}{
					"paymentId": p.ID,
					"emailId":   email.ID,
					"settledId": result.PaymentID,
				})
			}
			continue
		}
		switch result.Outcome {
		case matchpayment.OutcomeMatched:
			output.Outcome = OutcomeMatched
			output.MatchedEmail = email.ID
			return output, nil
		case matchpayment.OutcomeAlreadyProcessed:
			return output, nil
		}
	}

	output.Outcome = OutcomeUnmatched
	if h.fetcher != nil {
		if err := h.fetcher.FetchNow(ctx, p.MailboxID); err != nil {
			h.logger.Warn("on-demand mailbox fetch failed", map[string]interface{}{
				"paymentId": p.ID,
				"mailboxId": p.MailboxID,
				"error":     err.Error(),
			})
		} else {
			output.FetchedMailbox = true
		}
	}
	return output, nil
}

// internal/workers/notification/dispatch-webhook/handler.go
package dispatchwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	commonerrors "transfer-reconciler/internal/common/errors"
	commonhttp "transfer-reconciler/internal/common/http"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/metrics"
	"transfer-reconciler/internal/common/queue"
	"transfer-reconciler/internal/models"
)

const TaskType = "dispatch-webhook"

var ErrNotApproved = errors.New("PAYMENT_NOT_APPROVED")

type Store interface {
	GetByID(ctx context.Context, id int64) (*models.PaymentRequest, error)
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
	UpdateWebhookDelivery(ctx context.Context, paymentID int64, rec models.WebhookDeliveryRecord) error
}

// Poster sends one JSON body; a non-2xx response is an error.
type Poster interface {
	PostJSON(ctx context.Context, url string, body []byte) error
}

type Handler struct {
	config *Config
	store  Store
	poster Poster
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, store Store, poster Poster, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	if poster == nil {
		poster = commonhttp.NewClient(config.Policy.Timeout, config.UserAgent)
	}
	return &Handler{
		config: config,
		store:  store,
		poster: poster,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:    time.Now,
	}
}

// HandleJob runs a dispatch-webhook job. Delivery failures are recorded on
// the request and never fail the job.
func (h *Handler) HandleJob(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DispatchWebhookPayloadFromMap(job.Payload)
	if err != nil || payload.PaymentID == 0 {
		return commonerrors.NewInvalidPayloadError(fmt.Sprintf("dispatch-webhook payload: %v", job.Payload))
	}

	output, err := h.Execute(ctx, &Input{PaymentID: payload.PaymentID})
	if errors.Is(err, ErrNotApproved) {
		h.logger.Warn("skipping webhook for unapproved payment", map[string]interface{}{
			"jobId":     job.ID,
			"paymentId": payload.PaymentID,
		})
		return nil
	}
	if err != nil {
		return err
	}

	h.logger.Info("webhook dispatch finished", map[string]interface{}{
		"jobId":     job.ID,
		"paymentId": payload.PaymentID,
		"status":    string(output.Status),
		"attempts":  output.Attempts,
		"urlsSent":  len(output.URLsSent),
	})
	return nil
}

type deliveryResult struct {
	url      string
	attempts int
	err      error
}

// Execute delivers the approval payload to every webhook URL concurrently
// and stores the aggregate outcome.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	p, err := h.store.GetByID(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusApproved {
		return nil, fmt.Errorf("%w: payment %d is %s", ErrNotApproved, p.ID, p.Status)
	}

	var business *models.Business
	if p.BusinessID != nil {
		if business, err = h.store.GetBusiness(ctx, *p.BusinessID); err != nil {
			return nil, err
		}
	}

	urls := CollectURLs(p, business)
	body, err := json.Marshal(BuildPayload(p, h.now()))
	if err != nil {
		return nil, commonerrors.NewInvalidPayloadError(fmt.Sprintf("marshal webhook payload: %v", err))
	}

	results := make([]deliveryResult, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			attempts, err := commonhttp.DeliverWithRetry(ctx, h.config.Policy, func(ctx context.Context) error {
				return h.poster.PostJSON(ctx, url, body)
			})
			results[i] = deliveryResult{url: url, attempts: attempts, err: err}
		}(i, url)
	}
	wg.Wait()

	output := aggregate(results)
	record := models.WebhookDeliveryRecord{
		Status:   output.Status,
		Attempts: output.Attempts,
		URLsSent: output.URLsSent,
	}
	if len(output.Errors) > 0 {
		raw, _ := json.Marshal(output.Errors)
		record.LastError = string(raw)
	}
	if output.Status == models.WebhookStatusSent {
		sentAt := h.now().UTC()
		record.SentAt = &sentAt
	}

	for _, r := range results {
		if r.err != nil {
			h.logger.Warn("webhook delivery failed", map[string]interface{}{
				"paymentId": p.ID,
				"url":       r.url,
				"attempts":  r.attempts,
				"error":     r.err.Error(),
			})
		}
	}

	if err := h.store.UpdateWebhookDelivery(ctx, p.ID, record); err != nil {
		return nil, err
	}
	return output, nil
}

// aggregate folds per-URL results: sent when any URL succeeded or there was
// nothing to send.
func aggregate(results []deliveryResult) *Output {
	out := &Output{URLsSent: []string{}}
	for _, r := range results {
		out.Attempts += r.attempts
		if r.err == nil {
			out.URLsSent = append(out.URLsSent, r.url)
			metrics.WebhookDeliveries.WithLabelValues("sent").Inc()
			continue
		}
		if out.Errors == nil {
			out.Errors = make(map[string]string)
		}
		out.Errors[r.url] = r.err.Error()
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
	}

	out.Status = models.WebhookStatusFailed
	if len(results) == 0 || len(out.URLsSent) > 0 {
		out.Status = models.WebhookStatusSent
	}
	return out
}

// internal/workers/ingestion/mailbox-watcher/forwarder.go
package mailboxwatcher

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/queue"
	"transfer-reconciler/internal/models"
)

const dedupeKeyPrefix = "reconciler:email:"

// Forwarder hands a parsed email to the rest of the pipeline. It reports
// whether the email was new; duplicates are not an error.
type Forwarder interface {
	Forward(ctx context.Context, e *models.InboundEmail) (bool, error)
}

// EmailStager is the durable record of what has been forwarded.
type EmailStager interface {
	Stage(ctx context.Context, e *models.InboundEmail) (bool, error)
	MarkForwarded(ctx context.Context, id int64) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, jobType queue.JobType, payload map[string]interface{}) (*queue.Job, error)
}

// PipelineForwarder stores new emails and queues a process-email job. The
// forwarded_at column is the source of truth; a Redis key written after a
// successful forward only short-circuits messages seen recently.
type PipelineForwarder struct {
	emails    EmailStager
	queue     Enqueuer
	dedupe    *redis.Client
	dedupeTTL time.Duration
	logger    logger.Logger
}

func NewPipelineForwarder(emails EmailStager, q Enqueuer, dedupe *redis.Client, ttl time.Duration, log logger.Logger) *PipelineForwarder {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &PipelineForwarder{
		emails:    emails,
		queue:     q,
		dedupe:    dedupe,
		dedupeTTL: ttl,
		logger:    log,
	}
}

// Forward reports true once a process-email job exists for e. A stored email
// whose enqueue failed earlier is forwarded again on the next call.
func (f *PipelineForwarder) Forward(ctx context.Context, e *models.InboundEmail) (bool, error) {
	key := dedupeKeyPrefix + e.MessageID
	if f.cached(ctx, key) {
		return false, nil
	}

	pending, err := f.emails.Stage(ctx, e)
	if err != nil {
		return false, err
	}
	if !pending {
		f.remember(ctx, key, e.MailboxID)
		return false, nil
	}

	job, err := f.queue.Enqueue(ctx, queue.JobTypeProcessEmail,
		queue.ProcessEmailPayload{EmailID: e.ID, MailboxID: e.MailboxID}.ToMap())
	if err != nil {
		return false, err
	}

	// The job is queued; a lost stamp only means a second, idempotent job if
	// the message is ever seen unread again.
	if err := f.emails.MarkForwarded(ctx, e.ID); err != nil {
		f.logger.Warn("failed to mark email forwarded", map[string]interface{}{
			"emailId": e.ID,
			"error":   err.Error(),
		})
	}
	f.remember(ctx, key, e.MailboxID)

	f.logger.Debug("email forwarded", map[string]interface{}{
		"emailId":   e.ID,
		"messageId": e.MessageID,
		"jobId":     job.ID,
	})
	return true, nil
}

func (f *PipelineForwarder) cached(ctx context.Context, key string) bool {
	if f.dedupe == nil {
		return false
	}
	n, err := f.dedupe.Exists(ctx, key).Result()
	if err != nil {
		f.logger.Warn("dedupe cache unavailable", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return n > 0
}

func (f *PipelineForwarder) remember(ctx context.Context, key, mailboxID string) {
	if f.dedupe == nil {
		return
	}
	if err := f.dedupe.Set(ctx, key, mailboxID, f.dedupeTTL).Err(); err != nil {
		f.logger.Warn("failed to cache forwarded email", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

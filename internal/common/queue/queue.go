// internal/common/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/metrics"
	"transfer-reconciler/internal/common/observability"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobDelayedKey    = "job_delayed"
	JobStatsKey      = "job_stats"

	DefaultMaxRetries = 3
	DefaultJobTTL     = 24 * time.Hour
)

// HandlerFunc runs one job. A returned error goes through the error handler
// to decide between retry, drop and silent success.
type HandlerFunc func(ctx context.Context, job *Job) error

// Options tune the worker pool. Zero values fall back to defaults.
type Options struct {
	Workers         int
	MaxRetries      int
	StuckAfter      time.Duration
	SweepInterval   time.Duration
	PromoteInterval time.Duration
	RetryBackoff    time.Duration
	JobTTL          time.Duration
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.StuckAfter <= 0 {
		o.StuckAfter = 10 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.PromoteInterval <= 0 {
		o.PromoteInterval = time.Second
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 5 * time.Second
	}
	if o.JobTTL <= 0 {
		o.JobTTL = DefaultJobTTL
	}
}

// Queue manages background jobs using Redis
type Queue struct {
	client     *redis.Client
	opts       Options
	log        logger.Logger
	errHandler *errors.ErrorHandler
	obs        *observability.Observability
	handlers   map[JobType]HandlerFunc
	now        func() time.Time

	workerPool chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueue creates a new job queue
func NewQueue(client *redis.Client, opts Options, log logger.Logger, obs *observability.Observability) *Queue {
	opts.applyDefaults()
	if obs == nil {
		obs = observability.NewNoop()
	}
	qlog := log.WithFields(map[string]interface{}{"component": "job-queue"})

	return &Queue{
		client:     client,
		opts:       opts,
		log:        qlog,
		errHandler: errors.NewErrorHandler(qlog),
		obs:        obs,
		handlers:   make(map[JobType]HandlerFunc),
		now:        time.Now,
		workerPool: make(chan struct{}, opts.Workers),
		stopCh:     make(chan struct{}),
	}
}

// Register binds a handler to a job type. Register before Start.
func (q *Queue) Register(jobType JobType, h HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	q.log.Info("starting job queue", map[string]interface{}{"workers": q.opts.Workers})

	for i := 0; i < q.opts.Workers; i++ {
		q.workerPool <- struct{}{}
	}

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.wg.Add(2)
	go q.stuckSweeper()
	go q.delayedPromoter()
}

// Stop stops the job queue workers and waits for in-flight jobs.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	q.log.Info("stopping job queue", nil)
	q.wg.Wait()
	q.log.Info("all queue workers stopped", nil)
}

// Enqueue adds a job for immediate processing.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	job := q.newJob(jobType, payload)

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, q.opts.JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.NewTransientIOError("enqueue job", err)
	}

	q.log.Debug("enqueued job", map[string]interface{}{"jobId": job.ID, "jobType": string(job.Type)})
	return job, nil
}

// EnqueueIn adds a job that becomes runnable after delay. The job waits in a
// sorted set scored by its due time in unix milliseconds.
func (q *Queue) EnqueueIn(ctx context.Context, jobType JobType, payload map[string]interface{}, delay time.Duration) (*Job, error) {
	job := q.newJob(jobType, payload)
	runAt := q.now().Add(delay)
	job.RunAt = &runAt
	job.Status = JobStatusScheduled

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, q.opts.JobTTL+delay)
	pipe.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID})
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusScheduled), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.NewTransientIOError("schedule job", err)
	}

	q.log.Debug("scheduled job", map[string]interface{}{
		"jobId":   job.ID,
		"jobType": string(job.Type),
		"runAt":   runAt,
	})
	return job, nil
}

func (q *Queue) newJob(jobType JobType, payload map[string]interface{}) *Job {
	now := q.now()
	return &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: q.opts.MaxRetries,
	}
}

// PromoteDue moves every delayed job whose due time has passed onto the
// pending list. ZREM decides ownership so concurrent promoters never
// double-push a job.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	upper := strconv.FormatInt(q.now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, JobDelayedKey, &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, JobDelayedKey, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, JobQueueKey, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (q *Queue) delayedPromoter() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.PromoteInterval)
	defer ticker.Stop()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			if n, err := q.PromoteDue(ctx); err != nil {
				q.log.Error("failed to promote delayed jobs", map[string]interface{}{"error": err})
			} else if n > 0 {
				q.log.Debug("promoted delayed jobs", map[string]interface{}{"count": n})
			}
		}
	}
}

// stuckSweeper periodically requeues jobs left in the processing list by a
// crashed worker.
func (q *Queue) stuckSweeper() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.SweepInterval)
	defer ticker.Stop()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			if n, err := q.SweepStuck(ctx); err != nil {
				q.log.Error("stuck sweep failed", map[string]interface{}{"error": err})
			} else if n > 0 {
				q.log.Warn("recovered stuck jobs", map[string]interface{}{"count": n})
			}
			if _, err := q.Depth(ctx); err != nil {
				q.log.Warn("queue depth unavailable", map[string]interface{}{"error": err})
			}
		}
	}
}

// SweepStuck returns jobs that have been processing longer than StuckAfter to
// the pending list and drops stray entries.
func (q *Queue) SweepStuck(ctx context.Context) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	now := q.now()
	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		if job.Status != JobStatusProcessing {
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}

		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= q.opts.StuckAfter {
			continue
		}

		q.log.Warn("recovering stuck job", map[string]interface{}{
			"jobId":   job.ID,
			"jobType": string(job.Type),
			"age":     now.Sub(started).String(),
		})
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		q.updateJob(ctx, job)
		_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
		_ = q.client.RPush(ctx, JobQueueKey, id).Err()
		recovered++
	}
	return recovered, nil
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		default:
			<-q.workerPool

			job, err := q.dequeueJob(ctx)
			if err != nil {
				if err != redis.Nil {
					q.log.Error("error dequeuing job", map[string]interface{}{"worker": id, "error": err})
					time.Sleep(time.Second)
				}
				q.workerPool <- struct{}{}
				continue
			}

			if job != nil {
				q.processJob(ctx, job)
			}

			q.workerPool <- struct{}{}
		}
	}
}

// dequeueJob moves the next job id into the processing list and loads it.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("job %s unreadable: %w", jobID, err)
	}
	return job, nil
}

// processJob runs a dequeued job and settles its state.
func (q *Queue) processJob(ctx context.Context, job *Job) {
	taskType := string(job.Type)
	start := time.Now()

	job.MarkAsProcessing()
	q.updateJob(ctx, job)
	metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()

	q.mu.Lock()
	handler, ok := q.handlers[job.Type]
	q.mu.Unlock()

	var err error
	if !ok {
		err = errors.NewInvalidPayloadError(fmt.Sprintf("unknown job type: %s", job.Type))
	} else {
		spanCtx, end := q.obs.StartSpan(ctx, taskType, map[string]string{"job.id": job.ID})
		err = handler(spanCtx, job)
		end(err)
	}

	status := "completed"
	if err != nil {
		decision := q.errHandler.HandleJobError(job.ID, taskType, job.RetryCount+1, err)
		switch {
		case decision.Success:
			err = nil
		case decision.Retry && job.RetryCount+1 < job.MaxRetries:
			job.MarkAsFailed(err.Error())
			job.MarkAsRetrying()
			status = "retrying"
			q.scheduleRetry(ctx, job)
		default:
			job.MarkAsFailed(err.Error())
			status = "failed"
			q.updateJobStats(ctx, JobStatusFailed, 1)
			metrics.WorkerJobsFailed.WithLabelValues(taskType, string(decision.Error.Code)).Inc()
		}
	}

	if err == nil {
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		metrics.WorkerJobsCompleted.WithLabelValues(taskType).Inc()
		q.removeJob(ctx, job.ID)
	} else {
		q.updateJob(ctx, job)
	}

	q.removeFromProcessing(ctx, job.ID)
	metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
	q.obs.RecordJobProcessed(ctx, taskType, status)
	q.obs.RecordJobDuration(ctx, taskType, time.Since(start), status)
}

// scheduleRetry parks a failed job in the delayed set with linear backoff.
func (q *Queue) scheduleRetry(ctx context.Context, job *Job) {
	runAt := q.now().Add(q.opts.RetryBackoff * time.Duration(job.RetryCount))
	job.RunAt = &runAt
	q.updateJob(ctx, job)

	if err := q.client.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID}).Err(); err != nil {
		q.log.Error("failed to schedule retry", map[string]interface{}{"jobId": job.ID, "error": err})
		return
	}
	q.log.Info("retrying job", map[string]interface{}{
		"jobId":   job.ID,
		"jobType": string(job.Type),
		"attempt": job.RetryCount,
		"runAt":   runAt,
	})
}

func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		q.log.Error("failed to marshal job", map[string]interface{}{"jobId": job.ID, "error": err})
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, q.opts.JobTTL).Err(); err != nil {
		q.log.Error("failed to update job", map[string]interface{}{"jobId": job.ID, "error": err})
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		q.log.Error("failed to remove job from processing list", map[string]interface{}{"jobId": jobID, "error": err})
	}
}

func (q *Queue) removeJob(ctx context.Context, jobID string) {
	if err := q.client.Del(ctx, JobKeyPrefix+jobID).Err(); err != nil {
		q.log.Error("failed to remove completed job", map[string]interface{}{"jobId": jobID, "error": err})
	}
}

func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		q.log.Error("failed to update job stats", map[string]interface{}{"error": err})
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobData, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// GetJobStats returns statistics about job statuses
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	stats, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[JobStatus]int64)
	for status, count := range stats {
		if n, err := strconv.ParseInt(count, 10, 64); err == nil {
			result[JobStatus(status)] = n
		}
	}
	return result, nil
}

// Depth reports the pending, processing and delayed list sizes and
// publishes them as gauges.
func (q *Queue) Depth(ctx context.Context) (map[string]int64, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, JobQueueKey)
	processing := pipe.LLen(ctx, JobProcessingKey)
	delayed := pipe.ZCard(ctx, JobDelayedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	depth := map[string]int64{
		"pending":    pending.Val(),
		"processing": processing.Val(),
		"delayed":    delayed.Val(),
	}
	for list, n := range depth {
		metrics.QueueDepth.WithLabelValues(list).Set(float64(n))
	}
	return depth, nil
}

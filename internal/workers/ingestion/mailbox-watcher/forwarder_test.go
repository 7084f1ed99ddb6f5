// internal/workers/ingestion/mailbox-watcher/forwarder_test.go
package mailboxwatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/queue"
	"transfer-reconciler/internal/models"
)

type stagedEmail struct {
	id        int64
	forwarded bool
}

// fakeStager mirrors the inbound_emails forwarded_at bookkeeping.
type fakeStager struct {
	rows   map[string]*stagedEmail
	err    error
	stages int
}

func newFakeStager() *fakeStager {
	return &fakeStager{rows: map[string]*stagedEmail{}}
}

func (f *fakeStager) Stage(ctx context.Context, e *models.InboundEmail) (bool, error) {
	f.stages++
	if f.err != nil {
		return false, f.err
	}
	row, ok := f.rows[e.MessageID]
	if !ok {
		row = &stagedEmail{id: int64(41 + len(f.rows) + 1)}
		f.rows[e.MessageID] = row
	}
	if row.forwarded {
		return false, nil
	}
	e.ID = row.id
	return true, nil
}

func (f *fakeStager) MarkForwarded(ctx context.Context, id int64) error {
	for _, row := range f.rows {
		if row.id == id {
			row.forwarded = true
		}
	}
	return nil
}

type fakeEnqueuer struct {
	jobs []map[string]interface{}
	err  error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, jobType queue.JobType, payload map[string]interface{}) (*queue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.jobs = append(f.jobs, payload)
	return &queue.Job{ID: "job-1", Type: jobType, Payload: payload}, nil
}

func TestPipelineForwarder_Forward(t *testing.T) {
	ttl := time.Hour
	key := dedupeKeyPrefix + "<m1@bank>"
	email := func() *models.InboundEmail {
		return &models.InboundEmail{MessageID: "<m1@bank>", MailboxID: "shop"}
	}

	t.Run("new email is stored, queued and cached", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectExists(key).SetVal(0)
		mock.ExpectSet(key, "shop", ttl).SetVal("OK")

		stager := newFakeStager()
		q := &fakeEnqueuer{}
		f := NewPipelineForwarder(stager, q, client, ttl, logger.NewTestLogger(t))

		isNew, err := f.Forward(context.Background(), email())
		require.NoError(t, err)
		assert.True(t, isNew)
		require.Len(t, q.jobs, 1)
		assert.True(t, stager.rows["<m1@bank>"].forwarded)

		payload, err := queue.ProcessEmailPayloadFromMap(q.jobs[0])
		require.NoError(t, err)
		assert.Equal(t, int64(42), payload.EmailID)
		assert.Equal(t, "shop", payload.MailboxID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cached message id skips the database", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectExists(key).SetVal(1)

		stager := newFakeStager()
		f := NewPipelineForwarder(stager, &fakeEnqueuer{}, client, ttl, logger.NewTestLogger(t))

		isNew, err := f.Forward(context.Background(), email())
		require.NoError(t, err)
		assert.False(t, isNew)
		assert.Equal(t, 0, stager.stages)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed enqueue is forwarded on the next poll", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectExists(key).SetVal(0)
		mock.ExpectExists(key).SetVal(0)
		mock.ExpectSet(key, "shop", ttl).SetVal("OK")

		stager := newFakeStager()
		q := &fakeEnqueuer{err: errors.New("redis down")}
		f := NewPipelineForwarder(stager, q, client, ttl, logger.NewTestLogger(t))

		isNew, err := f.Forward(context.Background(), email())
		require.Error(t, err)
		assert.False(t, isNew)
		assert.False(t, stager.rows["<m1@bank>"].forwarded)

		q.err = nil
		isNew, err = f.Forward(context.Background(), email())
		require.NoError(t, err)
		assert.True(t, isNew)
		require.Len(t, q.jobs, 1)
		payload, err := queue.ProcessEmailPayloadFromMap(q.jobs[0])
		require.NoError(t, err)
		assert.Equal(t, int64(42), payload.EmailID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store failure leaves nothing cached", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectExists(key).SetVal(0)

		stager := newFakeStager()
		stager.err = errors.New("db down")
		f := NewPipelineForwarder(stager, &fakeEnqueuer{}, client, ttl, logger.NewTestLogger(t))

		_, err := f.Forward(context.Background(), email())
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache outage falls through to the database", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectExists(key).SetErr(errors.New("redis down"))
		mock.ExpectSet(key, "shop", ttl).SetErr(errors.New("redis down"))

		q := &fakeEnqueuer{}
		f := NewPipelineForwarder(newFakeStager(), q, client, ttl, logger.NewTestLogger(t))

		isNew, err := f.Forward(context.Background(), email())
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.Len(t, q.jobs, 1)
	})

	t.Run("forwarded message without cache", func(t *testing.T) {
		q := &fakeEnqueuer{}
		stager := newFakeStager()
		stager.rows["<m1@bank>"] = &stagedEmail{id: 7, forwarded: true}
		f := NewPipelineForwarder(stager, q, nil, ttl, logger.NewTestLogger(t))

		isNew, err := f.Forward(context.Background(), email())
		require.NoError(t, err)
		assert.False(t, isNew)
		assert.Empty(t, q.jobs)
	})
}

// internal/common/observability/metrics_test.go
package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_RecordsErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	o := &Observability{tracerProvider: tp, tracer: tp.Tracer("test")}

	_, end := o.StartSpan(context.Background(), "process-email", map[string]string{"job_id": "j1"})
	end(nil)
	_, end = o.StartSpan(context.Background(), "dispatch-webhook", nil)
	end(errors.New("receiver down"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "process-email", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "receiver down", spans[1].Status().Description)
}

func TestNoop_IsSafe(t *testing.T) {
	o := NewNoop()
	ctx, end := o.StartSpan(context.Background(), "recheck-payment", nil)
	end(nil)

	o.RecordJobProcessed(ctx, "recheck-payment", "completed")
	o.RecordJobDuration(ctx, "recheck-payment", time.Millisecond, "completed")
	o.Shutdown()
}

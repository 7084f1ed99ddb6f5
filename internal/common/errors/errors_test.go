// internal/common/errors/errors_test.go
package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	errors []map[string]interface{}
	infos  []map[string]interface{}
}

func (r *recordingLogger) Error(_ string, fields map[string]interface{}) {
	r.errors = append(r.errors, fields)
}

func (r *recordingLogger) Info(_ string, fields map[string]interface{}) {
	r.infos = append(r.infos, fields)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *StandardError
		code      ErrorCode
		retryable bool
	}{
		{"transient io", NewTransientIOError("webhook POST", stderrors.New("connection reset")), ErrCodeTransientIO, true},
		{"extraction", NewExtractionFailedError("no amount"), ErrCodeExtractionFailed, false},
		{"already processed", NewAlreadyProcessedError("payment 4"), ErrCodeAlreadyProcessed, false},
		{"configuration", NewConfigurationError("mailbox a", stderrors.New("missing password")), ErrCodeConfiguration, false},
		{"db", NewDatabaseQueryFailedError("select_candidates", stderrors.New("timeout")), ErrCodeDatabaseQueryFailed, true},
		{"payload", NewInvalidPayloadError("amount required"), ErrCodeInvalidPayload, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.False(t, tt.err.Timestamp.IsZero())
			assert.Contains(t, tt.err.Error(), string(tt.code))
		})
	}
}

func TestUnwrapAndHelpers(t *testing.T) {
	cause := stderrors.New("dial tcp: i/o timeout")
	wrapped := fmt.Errorf("deliver: %w", NewTransientIOError("webhook POST", cause))

	assert.True(t, stderrors.Is(wrapped, cause))
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeTransientIO))
	assert.False(t, IsAlreadyProcessed(wrapped))

	noop := fmt.Errorf("approve: %w", NewAlreadyProcessedError("status=approved"))
	assert.True(t, IsAlreadyProcessed(noop))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "TRANSPORT", GetErrorCategory(ErrCodeTransientIO))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeDatabaseQueryFailed))
	assert.Equal(t, "EXTRACTION", GetErrorCategory(ErrCodeExtractionFailed))
	assert.Equal(t, "STATE", GetErrorCategory(ErrCodePaymentNotFound))
	assert.Equal(t, "STATE", GetErrorCategory(ErrCodeAlreadyProcessed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeConfiguration))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestErrorHandler_HandleJobError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		attempt     int
		wantRetry   bool
		wantSuccess bool
		wantCode    ErrorCode
	}{
		{
			name:      "retryable within budget",
			err:       NewDatabaseQueryFailedError("approve", stderrors.New("deadlock")),
			attempt:   1,
			wantRetry: true,
			wantCode:  ErrCodeDatabaseQueryFailed,
		},
		{
			name:     "retryable budget exhausted",
			err:      NewTransientIOError("imap", stderrors.New("eof")),
			attempt:  3,
			wantCode: ErrCodeTransientIO,
		},
		{
			name:        "already processed is success",
			err:         NewAlreadyProcessedError("payment 9"),
			wantSuccess: true,
			wantCode:    ErrCodeAlreadyProcessed,
		},
		{
			name:     "plain error normalized",
			err:      stderrors.New("nil pointer"),
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			h := NewErrorHandler(log)

			d := h.HandleJobError("job-1", "process-email", tt.attempt, tt.err)
			require.NotNil(t, d.Error)
			assert.Equal(t, tt.wantRetry, d.Retry)
			assert.Equal(t, tt.wantSuccess, d.Success)
			assert.Equal(t, tt.wantCode, d.Error.Code)

			if tt.wantSuccess {
				assert.Len(t, log.infos, 1)
				assert.Empty(t, log.errors)
			} else {
				assert.Len(t, log.errors, 1)
				assert.Equal(t, string(tt.wantCode), log.errors[0]["errorCode"])
			}
		})
	}
}

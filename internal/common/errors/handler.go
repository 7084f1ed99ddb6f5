// internal/common/errors/handler.go
package errors

import "time"

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
}

// Decision tells the job runner what to do with a failed job.
type Decision struct {
	Retry   bool
	Success bool
	Error   *StandardError
}

// ErrorHandler normalizes job errors and decides between retry, drop and
// silent success.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError classifies err for the job identified by jobID/jobType.
// ALREADY_PROCESSED is treated as success.
func (h *ErrorHandler) HandleJobError(jobID, jobType string, attempt int, err error) Decision {
	stdErr := h.normalizeError(err)

	if stdErr.Code == ErrCodeAlreadyProcessed {
		h.logger.Info("job was a no-op", map[string]interface{}{
			"jobId":   jobID,
			"jobType": jobType,
			"details": stdErr.Details,
		})
		return Decision{Success: true, Error: stdErr}
	}

	retries := GetRetryCount(stdErr.Code)
	retry := stdErr.Retryable && attempt < retries

	h.logger.Error("job failed", map[string]interface{}{
		"jobId":         jobID,
		"jobType":       jobType,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"attempt":       attempt,
		"maxRetries":    retries,
		"willRetry":     retry,
		"errorCategory": GetErrorCategory(stdErr.Code),
	})

	return Decision{Retry: retry, Error: stdErr}
}

// normalizeError ensures we always have a StandardError
func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

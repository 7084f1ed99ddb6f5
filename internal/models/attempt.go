// internal/models/attempt.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MatchResult string

const (
	MatchResultMatched   MatchResult = "matched"
	MatchResultUnmatched MatchResult = "unmatched"
)

// MatchAttempt records one evaluation of an email against a candidate request.
type MatchAttempt struct {
	ID               int64                  `json:"id"`
	PaymentID        *int64                 `json:"payment_id,omitempty"`
	InboundEmailID   int64                  `json:"inbound_email_id"`
	TransactionID    string                 `json:"transaction_id,omitempty"`
	Result           MatchResult            `json:"match_result"`
	Reason           string                 `json:"reason"`
	PaymentAmount    *decimal.Decimal       `json:"payment_amount,omitempty"`
	ExtractedAmount  *decimal.Decimal       `json:"extracted_amount,omitempty"`
	PaymentName      string                 `json:"payment_name,omitempty"`
	ExtractedName    string                 `json:"extracted_name,omitempty"`
	AmountDiff       *decimal.Decimal       `json:"amount_diff,omitempty"`
	TimeDiffMinutes  *int                   `json:"time_diff_minutes,omitempty"`
	ExtractionMethod string                 `json:"extraction_method,omitempty"`
	Details          map[string]interface{} `json:"details,omitempty"`
	ProcessingTimeMs int64                  `json:"processing_time_ms"`
	CreatedAt        time.Time              `json:"created_at"`
}

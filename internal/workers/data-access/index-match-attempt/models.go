// internal/workers/data-access/index-match-attempt/models.go
package indexmatchattempt

import (
	"time"

	"transfer-reconciler/internal/models"
)

// Document is the indexed shape of a match attempt. Amounts are plain
// numbers so range queries work.
type Document struct {
	AttemptID        int64     `json:"attempt_id,omitempty"`
	PaymentID        int64     `json:"payment_id,omitempty"`
	InboundEmailID   int64     `json:"inbound_email_id"`
	TransactionID    string    `json:"transaction_id,omitempty"`
	Result           string    `json:"match_result"`
	Reason           string    `json:"reason"`
	PaymentAmount    *float64  `json:"payment_amount,omitempty"`
	ExtractedAmount  *float64  `json:"extracted_amount,omitempty"`
	AmountDiff       *float64  `json:"amount_diff,omitempty"`
	PaymentName      string    `json:"payment_name,omitempty"`
	ExtractedName    string    `json:"extracted_name,omitempty"`
	TimeDiffMinutes  *int      `json:"time_diff_minutes,omitempty"`
	ExtractionMethod string    `json:"extraction_method,omitempty"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

func toDocument(a *models.MatchAttempt) Document {
	doc := Document{
		AttemptID:        a.ID,
		InboundEmailID:   a.InboundEmailID,
		TransactionID:    a.TransactionID,
		Result:           string(a.Result),
		Reason:           a.Reason,
		PaymentName:      a.PaymentName,
		ExtractedName:    a.ExtractedName,
		TimeDiffMinutes:  a.TimeDiffMinutes,
		ExtractionMethod: a.ExtractionMethod,
		ProcessingTimeMs: a.ProcessingTimeMs,
		CreatedAt:        a.CreatedAt.UTC(),
	}
	if a.PaymentID != nil {
		doc.PaymentID = *a.PaymentID
	}
	if a.PaymentAmount != nil {
		v := a.PaymentAmount.InexactFloat64()
		doc.PaymentAmount = &v
	}
	if a.ExtractedAmount != nil {
		v := a.ExtractedAmount.InexactFloat64()
		doc.ExtractedAmount = &v
	}
	if a.AmountDiff != nil {
		v := a.AmountDiff.InexactFloat64()
		doc.AmountDiff = &v
	}
	return doc
}

// SearchInput filters the audit index. Zero values are ignored.
type SearchInput struct {
	EmailID       int64  `json:"email_id"`
	PaymentID     int64  `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Result        string `json:"match_result"`
	From          int    `json:"from"`
	Size          int    `json:"size"`
}

type SearchOutput struct {
	Attempts  []Document `json:"attempts"`
	TotalHits int64      `json:"total_hits"`
	Took      int        `json:"took"`
}

// internal/workers/matching/match-payment/models.go
package matchpayment

type Input struct {
	EmailID int64 `json:"emailId"`
}

type Output struct {
	EmailID       int64  `json:"emailId"`
	Outcome       string `json:"outcome"`
	PaymentID     int64  `json:"paymentId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Evaluated     int    `json:"evaluated"`
}

// Outcomes of processing one email.
const (
	OutcomeMatched          = "matched"
	OutcomeUnmatched        = "unmatched"
	OutcomeAlreadyBound     = "already_bound"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeExtractionFailed = "extraction_failed"
)

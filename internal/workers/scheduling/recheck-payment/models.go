// internal/workers/scheduling/recheck-payment/models.go
package recheckpayment

type Input struct {
	PaymentID int64 `json:"paymentId"`
}

type Output struct {
	PaymentID      int64  `json:"paymentId"`
	Outcome        string `json:"outcome"`
	EmailsChecked  int    `json:"emailsChecked"`
	MatchedEmail   int64  `json:"matchedEmailId,omitempty"`
	SettledOther   int    `json:"settledOther,omitempty"`
	FetchedMailbox bool   `json:"fetchedMailbox"`
}

const (
	OutcomeClosed    = "closed"
	OutcomeMatched   = "matched"
	OutcomeUnmatched = "unmatched"
)

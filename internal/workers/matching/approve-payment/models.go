// internal/workers/matching/approve-payment/models.go
package approvepayment

import (
	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/models"
)

type Input struct {
	Payment *models.PaymentRequest
	Email   *models.InboundEmail
}

type Output struct {
	PaymentID      int64                  `json:"paymentId"`
	TransactionID  string                 `json:"transactionId"`
	ReceivedAmount decimal.Decimal        `json:"receivedAmount"`
	IsMismatch     bool                   `json:"isMismatch"`
	MismatchReason string                 `json:"mismatchReason,omitempty"`
	Charges        models.ChargeBreakdown `json:"charges"`
	WebhookJobID   string                 `json:"webhookJobId,omitempty"`
}

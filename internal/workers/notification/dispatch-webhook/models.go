// internal/workers/notification/dispatch-webhook/models.go
package dispatchwebhook

import (
	"time"

	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/models"
)

const EventPaymentApproved = "payment.approved"

type Input struct {
	PaymentID int64 `json:"paymentId"`
}

type Output struct {
	Status   models.WebhookStatus `json:"status"`
	Attempts int                  `json:"attempts"`
	URLsSent []string             `json:"urlsSent"`
	Errors   map[string]string    `json:"errors,omitempty"`
}

// Payload is the body POSTed to every webhook URL. Every key is always
// present; unknown values are empty strings or null.
type Payload struct {
	Event              string                 `json:"event"`
	TransactionID      string                 `json:"transaction_id"`
	Status             string                 `json:"status"`
	Amount             decimal.Decimal        `json:"amount"`
	ReceivedAmount     *decimal.Decimal       `json:"received_amount"`
	PayerName          string                 `json:"payer_name"`
	Bank               string                 `json:"bank"`
	PayerAccountNumber string                 `json:"payer_account_number"`
	AccountNumber      string                 `json:"account_number"`
	IsMismatch         bool                   `json:"is_mismatch"`
	MismatchReason     string                 `json:"mismatch_reason"`
	Charges            PayloadCharges         `json:"charges"`
	Timestamp          string                 `json:"timestamp"`
	EmailData          map[string]interface{} `json:"email_data"`
}

type PayloadCharges struct {
	Percentage       decimal.Decimal `json:"percentage"`
	Fixed            decimal.Decimal `json:"fixed"`
	Total            decimal.Decimal `json:"total"`
	BusinessReceives decimal.Decimal `json:"business_receives"`
}

// BuildPayload renders an approved request for delivery.
func BuildPayload(p *models.PaymentRequest, now time.Time) Payload {
	payload := Payload{
		Event:              EventPaymentApproved,
		TransactionID:      p.TransactionID,
		Status:             string(p.Status),
		Amount:             p.Amount,
		ReceivedAmount:     p.ReceivedAmount,
		PayerName:          p.PayerName,
		Bank:               p.Bank,
		PayerAccountNumber: p.PayerAccountNumber,
		AccountNumber:      p.AccountNumber,
		IsMismatch:         p.IsMismatch,
		MismatchReason:     p.MismatchReason,
		Timestamp:          now.UTC().Format(time.RFC3339),
		EmailData:          p.EmailData,
	}
	if c := p.Charges; c != nil {
		payload.Charges = PayloadCharges{
			Percentage:       c.Percentage,
			Fixed:            c.Fixed,
			Total:            c.Total,
			BusinessReceives: c.BusinessReceives,
		}
	}
	return payload
}

// CollectURLs returns the distinct non-empty webhook targets in order:
// the request's own, the business's, then approved websites.
func CollectURLs(p *models.PaymentRequest, b *models.Business) []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	add(p.WebhookURL)
	if b != nil {
		add(b.WebhookURL)
		for _, u := range b.ApprovedWebsiteWebhook {
			add(u)
		}
	}
	return urls
}

// internal/models/payment.go
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
	PaymentStatusExpired  PaymentStatus = "expired"
)

type WebhookStatus string

const (
	WebhookStatusNotAttempted WebhookStatus = "not_attempted"
	WebhookStatusSent         WebhookStatus = "sent"
	WebhookStatusFailed       WebhookStatus = "failed"
)

// PaymentRequest is an outstanding transfer expected from a customer.
// Optional string fields use "" for unset.
type PaymentRequest struct {
	ID            int64           `json:"id"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	PayerName     string          `json:"payerName,omitempty"`
	AccountNumber string          `json:"accountNumber,omitempty"`
	Status        PaymentStatus   `json:"status"`
	BusinessID    *int64          `json:"businessId,omitempty"`
	WebhookURL    string          `json:"webhookUrl,omitempty"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`

	// Scope is the mailbox the owning business reads from; "" is the shared pool.
	MailboxID string `json:"mailboxId,omitempty"`

	MatchedAt          *time.Time             `json:"matchedAt,omitempty"`
	ReceivedAmount     *decimal.Decimal       `json:"receivedAmount,omitempty"`
	PayerAccountNumber string                 `json:"payerAccountNumber,omitempty"`
	Bank               string                 `json:"bank,omitempty"`
	IsMismatch         bool                   `json:"isMismatch"`
	MismatchReason     string                 `json:"mismatchReason,omitempty"`
	Charges            *ChargeBreakdown       `json:"charges,omitempty"`
	EmailData          map[string]interface{} `json:"emailData,omitempty"`
	ProcessedEmailID   *int64                 `json:"processedEmailId,omitempty"`

	Webhook WebhookDeliveryRecord `json:"webhook"`
}

// IsExpired reports whether the request's expiry has passed at now.
func (p *PaymentRequest) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// IsOpen reports whether the request can still be matched.
func (p *PaymentRequest) IsOpen(now time.Time) bool {
	return p.Status == PaymentStatusPending && !p.IsExpired(now)
}

// ChargeBreakdown is the fee split stamped at approval.
type ChargeBreakdown struct {
	Percentage       decimal.Decimal `json:"percentage"`
	Fixed            decimal.Decimal `json:"fixed"`
	Total            decimal.Decimal `json:"total"`
	BusinessReceives decimal.Decimal `json:"businessReceives"`
	PaidByCustomer   bool            `json:"paidByCustomer"`
}

// WebhookDeliveryRecord is the aggregate outcome of the approval notification.
type WebhookDeliveryRecord struct {
	Status    WebhookStatus `json:"status"`
	Attempts  int           `json:"attempts"`
	URLsSent  []string      `json:"urlsSent,omitempty"`
	LastError string        `json:"lastError,omitempty"`
	SentAt    *time.Time    `json:"sentAt,omitempty"`
}

// Business is read-only to the pipeline.
type Business struct {
	ID                     int64            `json:"id"`
	Name                   string           `json:"name"`
	WebhookURL             string           `json:"webhookUrl,omitempty"`
	MailboxID              string           `json:"mailboxId,omitempty"`
	ChargePercentage       *decimal.Decimal `json:"chargePercentage,omitempty"`
	ChargeFixed            *decimal.Decimal `json:"chargeFixed,omitempty"`
	ChargesExempt          bool             `json:"chargesExempt"`
	ChargesPaidByCustomer  bool             `json:"chargesPaidByCustomer"`
	ApprovedWebsiteWebhook []string         `json:"approvedWebsiteWebhooks,omitempty"`
}

// NormalizeName lowercases and collapses whitespace for exact name comparison.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// internal/models/email.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InboundEmail is a parsed bank notification as handed off by the watcher.
type InboundEmail struct {
	ID        int64     `json:"id"`
	MessageID string    `json:"messageId"`
	MailboxID string    `json:"mailboxId"`
	Subject   string    `json:"subject"`
	FromEmail string    `json:"fromEmail"`
	FromName  string    `json:"fromName,omitempty"`
	TextBody  string    `json:"textBody,omitempty"`
	HTMLBody  string    `json:"htmlBody,omitempty"`
	EmailDate time.Time `json:"emailDate"`

	Extracted        *ExtractedSignal `json:"extracted,omitempty"`
	MatchedPaymentID *int64           `json:"matchedPaymentId,omitempty"`
	MatchedAt        *time.Time       `json:"matchedAt,omitempty"`
}

// IsBound reports whether a payment request already claimed this email.
func (e *InboundEmail) IsBound() bool {
	return e.MatchedPaymentID != nil
}

// BoundTo reports whether the email is bound to paymentID specifically.
func (e *InboundEmail) BoundTo(paymentID int64) bool {
	return e.MatchedPaymentID != nil && *e.MatchedPaymentID == paymentID
}

// ExtractedSignal is the structured payment information pulled from an email.
type ExtractedSignal struct {
	Amount             decimal.Decimal `json:"amount"`
	AccountNumber      string          `json:"accountNumber,omitempty"`
	SenderName         string          `json:"senderName,omitempty"`
	PayerAccountNumber string          `json:"payerAccountNumber,omitempty"`
	TransactionDate    *time.Time      `json:"transactionDate,omitempty"`
	Reference          string          `json:"reference,omitempty"`
	Bank               string          `json:"bank,omitempty"`
	Method             string          `json:"method"`
}

// Snapshot is the email_data document stored on an approved request and
// echoed in the webhook.
func (e *InboundEmail) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"message_id": e.MessageID,
		"mailbox_id": e.MailboxID,
		"subject":    e.Subject,
		"from":       e.FromEmail,
		"from_name":  e.FromName,
		"date":       e.EmailDate.UTC().Format(time.RFC3339),
	}
	if x := e.Extracted; x != nil {
		snap["amount"] = x.Amount.StringFixed(2)
		snap["sender_name"] = x.SenderName
		snap["account_number"] = x.AccountNumber
		snap["payer_account_number"] = x.PayerAccountNumber
		snap["extraction_method"] = x.Method
		if x.Reference != "" {
			snap["reference"] = x.Reference
		}
	}
	return snap
}

// internal/workers/extraction/extract-payment-info/models.go
package extractpaymentinfo

import (
	"time"

	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/models"
)

// Input is the body of the synchronous diagnostics endpoint.
type Input struct {
	Subject   string    `json:"subject"`
	FromEmail string    `json:"from_email"`
	FromName  string    `json:"from_name,omitempty"`
	TextBody  string    `json:"text_body"`
	HTMLBody  string    `json:"html_body"`
	Date      time.Time `json:"date,omitempty"`
}

func (in *Input) toEmail() *models.InboundEmail {
	return &models.InboundEmail{
		Subject:   in.Subject,
		FromEmail: in.FromEmail,
		FromName:  in.FromName,
		TextBody:  in.TextBody,
		HTMLBody:  in.HTMLBody,
		EmailDate: in.Date,
	}
}

// Output is {data, method} on success and {diagnostics} on failure.
type Output struct {
	Data        *Data        `json:"data,omitempty"`
	Method      string       `json:"method,omitempty"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// Data is the payment signal pulled out of one email.
type Data struct {
	Amount             decimal.Decimal `json:"amount"`
	AccountNumber      string          `json:"account_number,omitempty"`
	SenderName         string          `json:"sender_name,omitempty"`
	PayerAccountNumber string          `json:"payer_account_number,omitempty"`
	TransactionDate    *time.Time      `json:"transaction_date,omitempty"`
	Reference          string          `json:"reference,omitempty"`
	Bank               string          `json:"bank,omitempty"`
}

// Diagnostics is recorded for every extraction, successful or not.
type Diagnostics struct {
	Steps       []string `json:"steps"`
	Errors      []string `json:"errors"`
	TextLength  int      `json:"text_length"`
	HTMLLength  int      `json:"html_length"`
	TextPreview string   `json:"text_preview"`
	HTMLPreview string   `json:"html_preview"`
}

func (d *Diagnostics) step(s string) {
	d.Steps = append(d.Steps, s)
}

func (d *Diagnostics) fail(s string) {
	d.Errors = append(d.Errors, s)
}

// Result never carries an error; a failed extraction has Success false and
// the reasons in Diagnostics.
type Result struct {
	Success     bool
	Data        *Data
	Method      string
	Diagnostics Diagnostics
}

// Signal converts a successful result to the stored form.
func (r *Result) Signal() *models.ExtractedSignal {
	if r == nil || !r.Success || r.Data == nil {
		return nil
	}
	return &models.ExtractedSignal{
		Amount:             r.Data.Amount,
		AccountNumber:      r.Data.AccountNumber,
		SenderName:         r.Data.SenderName,
		PayerAccountNumber: r.Data.PayerAccountNumber,
		TransactionDate:    r.Data.TransactionDate,
		Reference:          r.Data.Reference,
		Bank:               r.Data.Bank,
		Method:             r.Method,
	}
}

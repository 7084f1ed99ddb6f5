// internal/models/template.go
package models

import "strings"

// BankTemplate is an admin-configured extraction rule set for one bank's
// notification format.
type BankTemplate struct {
	ID                      int64  `json:"id"`
	BankName                string `json:"bankName"`
	SenderEmail             string `json:"senderEmail,omitempty"`
	SenderDomain            string `json:"senderDomain,omitempty"`
	Priority                int    `json:"priority"`
	IsActive                bool   `json:"isActive"`
	AmountFieldLabel        string `json:"amountFieldLabel,omitempty"`
	SenderNameFieldLabel    string `json:"senderNameFieldLabel,omitempty"`
	AccountNumberFieldLabel string `json:"accountNumberFieldLabel,omitempty"`
	AmountPattern           string `json:"amountPattern,omitempty"`
	SenderNamePattern       string `json:"senderNamePattern,omitempty"`
	AccountNumberPattern    string `json:"accountNumberPattern,omitempty"`
	SampleHTML              string `json:"sampleHtml,omitempty"`
	SampleText              string `json:"sampleText,omitempty"`
}

// Sender match specificity, higher wins.
const (
	SenderMatchNone     = 0
	SenderMatchWildcard = 1
	SenderMatchDomain   = 2
	SenderMatchExact    = 3
)

// SenderSpecificity returns how specifically the template targets from.
// A template with neither sender email nor domain applies to any sender.
func (t *BankTemplate) SenderSpecificity(from string) int {
	from = strings.ToLower(strings.TrimSpace(from))

	if t.SenderEmail != "" {
		if strings.EqualFold(t.SenderEmail, from) {
			return SenderMatchExact
		}
		return SenderMatchNone
	}

	if t.SenderDomain != "" {
		domain := strings.TrimPrefix(strings.ToLower(t.SenderDomain), "@")
		at := strings.LastIndex(from, "@")
		if at >= 0 && (from[at+1:] == domain || strings.HasSuffix(from[at+1:], "."+domain)) {
			return SenderMatchDomain
		}
		return SenderMatchNone
	}

	return SenderMatchWildcard
}

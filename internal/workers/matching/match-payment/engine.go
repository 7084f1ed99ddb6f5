// internal/workers/matching/match-payment/engine.go
package matchpayment

import (
	"fmt"
	"sort"
	"time"

	"transfer-reconciler/internal/models"
)

// Evaluate checks one email against one candidate request and returns the
// attempt record. It does not touch storage.
func Evaluate(cfg *Config, email *models.InboundEmail, p *models.PaymentRequest, now time.Time) *models.MatchAttempt {
	paymentID := p.ID
	paymentAmount := p.Amount
	attempt := &models.MatchAttempt{
		PaymentID:      &paymentID,
		InboundEmailID: email.ID,
		TransactionID:  p.TransactionID,
		Result:         models.MatchResultUnmatched,
		PaymentAmount:  &paymentAmount,
		PaymentName:    p.PayerName,
		Details:        map[string]interface{}{},
	}

	minutes := int(email.EmailDate.Sub(p.CreatedAt).Minutes())
	attempt.TimeDiffMinutes = &minutes

	sig := email.Extracted
	if sig == nil {
		attempt.Reason = "email has no extracted payment data"
		return attempt
	}
	extracted := sig.Amount
	attempt.ExtractedAmount = &extracted
	attempt.ExtractedName = sig.SenderName
	attempt.ExtractionMethod = sig.Method

	diff := extracted.Sub(p.Amount)
	attempt.AmountDiff = &diff

	switch {
	case email.MatchedPaymentID != nil && *email.MatchedPaymentID != p.ID:
		attempt.Reason = fmt.Sprintf("email already bound to payment %d", *email.MatchedPaymentID)
	case !p.IsOpen(now):
		attempt.Reason = fmt.Sprintf("payment is %s", closedState(p, now))
	case diff.Abs().GreaterThan(cfg.AmountTolerance):
		attempt.Reason = fmt.Sprintf("amount differs by %s (tolerance %s)", diff.Abs().StringFixed(2), cfg.AmountTolerance.StringFixed(2))
	case p.AccountNumber != "" && p.AccountNumber != sig.AccountNumber:
		attempt.Reason = "account number mismatch"
		attempt.Details["expected_account"] = p.AccountNumber
		attempt.Details["extracted_account"] = sig.AccountNumber
	case p.PayerName != "" && models.NormalizeName(p.PayerName) != models.NormalizeName(sig.SenderName):
		attempt.Reason = "payer name mismatch"
	default:
		attempt.Result = models.MatchResultMatched
		attempt.Reason = "amount within tolerance"
		if p.AccountNumber != "" {
			attempt.Details["account_checked"] = true
		}
		if p.PayerName != "" {
			attempt.Details["name_checked"] = true
		}
	}
	return attempt
}

func closedState(p *models.PaymentRequest, now time.Time) string {
	if p.Status == models.PaymentStatusPending && p.IsExpired(now) {
		return string(models.PaymentStatusExpired)
	}
	return string(p.Status)
}

// SelectCandidate evaluates candidates oldest first and stops at the first
// match. It returns the winner (nil when none) and every attempt evaluated.
func SelectCandidate(cfg *Config, email *models.InboundEmail, candidates []*models.PaymentRequest, now time.Time) (*models.PaymentRequest, []*models.MatchAttempt) {
	ordered := make([]*models.PaymentRequest, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	attempts := make([]*models.MatchAttempt, 0, len(ordered))
	for _, p := range ordered {
		a := Evaluate(cfg, email, p, now)
		attempts = append(attempts, a)
		if a.Result == models.MatchResultMatched {
			return p, attempts
		}
	}
	return nil, attempts
}

// noCandidateAttempt records an email that had nothing to be compared with.
func noCandidateAttempt(email *models.InboundEmail) *models.MatchAttempt {
	a := &models.MatchAttempt{
		InboundEmailID: email.ID,
		Result:         models.MatchResultUnmatched,
		Reason:         "no pending payment requests in window",
	}
	if sig := email.Extracted; sig != nil {
		amount := sig.Amount
		a.ExtractedAmount = &amount
		a.ExtractedName = sig.SenderName
		a.ExtractionMethod = sig.Method
	}
	return a
}

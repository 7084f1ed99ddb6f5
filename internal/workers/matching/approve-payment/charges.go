// internal/workers/matching/approve-payment/charges.go
package approvepayment

import (
	"fmt"

	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/models"
)

var (
	hundred     = decimal.NewFromInt(100)
	fiveHundred = decimal.NewFromInt(500)
	thousand    = decimal.NewFromInt(1000)
)

// ComputeCharges splits amount into platform charges and what the business
// receives. Business overrides win over the defaults; an exempt business
// pays nothing.
func ComputeCharges(amount decimal.Decimal, business *models.Business, cfg *Config) models.ChargeBreakdown {
	pct, fixed := cfg.DefaultPercentage, cfg.DefaultFixed
	paidByCustomer := false

	if business != nil {
		if business.ChargesExempt {
			return models.ChargeBreakdown{
				Percentage:       decimal.Zero,
				Fixed:            decimal.Zero,
				Total:            decimal.Zero,
				BusinessReceives: amount,
			}
		}
		if business.ChargePercentage != nil {
			pct = *business.ChargePercentage
		}
		if business.ChargeFixed != nil {
			fixed = *business.ChargeFixed
		}
		paidByCustomer = business.ChargesPaidByCustomer
	}

	percentageCharge := amount.Mul(pct).Div(hundred).Round(2)
	total := percentageCharge.Add(fixed)

	if paidByCustomer {
		return models.ChargeBreakdown{
			Percentage:       percentageCharge,
			Fixed:            fixed,
			Total:            total.Round(2),
			BusinessReceives: roundBusinessReceives(amount),
			PaidByCustomer:   true,
		}
	}

	receives := roundBusinessReceives(amount.Sub(total))
	return models.ChargeBreakdown{
		Percentage:       percentageCharge,
		Fixed:            fixed,
		Total:            amount.Sub(receives).Round(2),
		BusinessReceives: receives,
	}
}

// roundBusinessReceives rounds to the nearest 500 from 1000 up, otherwise to
// the nearest 100.
func roundBusinessReceives(v decimal.Decimal) decimal.Decimal {
	step := hundred
	if v.GreaterThanOrEqual(thousand) {
		step = fiveHundred
	}
	return v.Div(step).Round(0).Mul(step)
}

// Mismatch reports whether received differs from expected by more than
// epsilon while staying inside tolerance, and describes it.
func Mismatch(expected, received decimal.Decimal, cfg *Config) (bool, string) {
	diff := received.Sub(expected)
	abs := diff.Abs()
	if abs.LessThanOrEqual(cfg.MismatchEpsilon) || abs.GreaterThan(cfg.AmountTolerance) {
		return false, ""
	}

	kind := "difference"
	if diff.IsPositive() {
		kind = "overpayment"
	}
	return true, fmt.Sprintf(
		"Amount mismatch: expected ₦%s, received ₦%s (%s: ₦%s). Payment approved with mismatch flag.",
		expected.StringFixed(2), received.StringFixed(2), kind, abs.StringFixed(2),
	)
}

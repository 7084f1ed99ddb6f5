// internal/workers/matching/approve-payment/config.go
package approvepayment

import (
	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/common/config"
)

type Config struct {
	DefaultPercentage decimal.Decimal
	DefaultFixed      decimal.Decimal
	AmountTolerance   decimal.Decimal
	MismatchEpsilon   decimal.Decimal
}

func LoadConfig() *Config {
	return &Config{
		DefaultPercentage: decimal.NewFromInt(1),
		DefaultFixed:      decimal.NewFromInt(50),
		AmountTolerance:   decimal.NewFromInt(1),
		MismatchEpsilon:   decimal.RequireFromString("0.01"),
	}
}

// ConfigFrom builds the approval settings from the charges and matching sections.
func ConfigFrom(charges config.ChargesConfig, matching config.MatchingConfig) *Config {
	cfg := LoadConfig()
	if charges.Percentage > 0 {
		cfg.DefaultPercentage = decimal.NewFromFloat(charges.Percentage)
	}
	if charges.Fixed > 0 {
		cfg.DefaultFixed = decimal.NewFromFloat(charges.Fixed)
	}
	if matching.AmountTolerance > 0 {
		cfg.AmountTolerance = decimal.NewFromFloat(matching.AmountTolerance)
	}
	if matching.MismatchEpsilon > 0 {
		cfg.MismatchEpsilon = decimal.NewFromFloat(matching.MismatchEpsilon)
	}
	return cfg
}

// internal/workers/matching/match-payment/config.go
package matchpayment

import (
	"time"

	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/common/config"
)

type Config struct {
	AmountTolerance decimal.Decimal
	LookBack        time.Duration
	Timeout         time.Duration
}

func LoadConfig() *Config {
	return &Config{
		AmountTolerance: decimal.NewFromInt(1),
		LookBack:        5 * time.Minute,
		Timeout:         30 * time.Second,
	}
}

func ConfigFrom(c config.MatchingConfig) *Config {
	cfg := LoadConfig()
	if c.AmountTolerance > 0 {
		cfg.AmountTolerance = decimal.NewFromFloat(c.AmountTolerance)
	}
	if c.LookBack > 0 {
		cfg.LookBack = config.GetDuration(c.LookBack)
	}
	if c.Timeout > 0 {
		cfg.Timeout = config.GetDuration(c.Timeout)
	}
	return cfg
}

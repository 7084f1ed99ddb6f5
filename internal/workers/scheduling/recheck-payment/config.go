// internal/workers/scheduling/recheck-payment/config.go
package recheckpayment

import (
	"time"

	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/common/config"
)

type Config struct {
	Delay           time.Duration
	LookBack        time.Duration
	AmountTolerance decimal.Decimal
	Limit           int
}

func LoadConfig() *Config {
	return &Config{
		Delay:           time.Minute,
		LookBack:        5 * time.Minute,
		AmountTolerance: decimal.NewFromInt(1),
		Limit:           50,
	}
}

func ConfigFrom(s config.SchedulerConfig, m config.MatchingConfig) *Config {
	cfg := LoadConfig()
	if s.RecheckDelay > 0 {
		cfg.Delay = config.GetDuration(s.RecheckDelay)
	}
	if m.LookBack > 0 {
		cfg.LookBack = config.GetDuration(m.LookBack)
	}
	if m.AmountTolerance > 0 {
		cfg.AmountTolerance = decimal.NewFromFloat(m.AmountTolerance)
	}
	return cfg
}

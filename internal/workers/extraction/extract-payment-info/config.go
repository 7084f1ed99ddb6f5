// internal/workers/extraction/extract-payment-info/config.go
package extractpaymentinfo

import (
	"time"

	"github.com/shopspring/decimal"

	"transfer-reconciler/internal/common/config"
)

type Config struct {
	AmountCeiling     decimal.Decimal
	MinTemplateAmount decimal.Decimal
	PreviewLength     int
	Strategies        []string
	TemplateCacheTTL  time.Duration
}

// DefaultStrategyOrder is the fallback chain when none is configured.
var DefaultStrategyOrder = []string{
	StrategyTemplate,
	StrategyFixedWidth,
	StrategyCurrencyPattern,
	StrategyLabelledFields,
}

func LoadConfig() *Config {
	return &Config{
		AmountCeiling:     decimal.NewFromInt(1_000_000_000),
		MinTemplateAmount: decimal.NewFromInt(10),
		PreviewLength:     500,
		Strategies:        DefaultStrategyOrder,
		TemplateCacheTTL:  time.Minute,
	}
}

// ConfigFrom overlays the application's extraction section on the defaults.
func ConfigFrom(c config.ExtractionConfig) *Config {
	cfg := LoadConfig()
	if c.AmountCeiling > 0 {
		cfg.AmountCeiling = decimal.NewFromFloat(c.AmountCeiling)
	}
	if c.MinTemplateAmount > 0 {
		cfg.MinTemplateAmount = decimal.NewFromFloat(c.MinTemplateAmount)
	}
	if c.PreviewLength > 0 {
		cfg.PreviewLength = c.PreviewLength
	}
	if len(c.Strategies) > 0 {
		cfg.Strategies = c.Strategies
	}
	if c.TemplateCacheTTL > 0 {
		cfg.TemplateCacheTTL = config.GetDuration(c.TemplateCacheTTL)
	}
	return cfg
}

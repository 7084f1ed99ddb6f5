// internal/workers/notification/dispatch-webhook/config.go
package dispatchwebhook

import (
	"transfer-reconciler/internal/common/config"
	commonhttp "transfer-reconciler/internal/common/http"
)

type Config struct {
	Policy    commonhttp.RetryPolicy
	UserAgent string
}

func LoadConfig() *Config {
	return &Config{
		Policy:    commonhttp.DefaultRetryPolicy,
		UserAgent: "TransferReconciler/1.0",
	}
}

// ConfigFrom maps the webhook section; max_retries counts retries after the
// first attempt.
func ConfigFrom(c config.WebhookConfig) *Config {
	cfg := LoadConfig()
	if c.MaxRetries > 0 {
		cfg.Policy.MaxAttempts = c.MaxRetries + 1
	}
	if c.RetryDelay > 0 {
		cfg.Policy.Delay = config.GetDuration(c.RetryDelay)
	}
	if c.Timeout > 0 {
		cfg.Policy.Timeout = config.GetDuration(c.Timeout)
	}
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	return cfg
}

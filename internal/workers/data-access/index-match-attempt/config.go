// internal/workers/data-access/index-match-attempt/config.go
package indexmatchattempt

import (
	"time"

	"transfer-reconciler/internal/common/config"
)

type Config struct {
	Index       string
	Timeout     time.Duration
	DefaultSize int
	MaxSize     int
}

func LoadConfig() *Config {
	return &Config{
		Index:       "match-attempts",
		Timeout:     5 * time.Second,
		DefaultSize: 20,
		MaxSize:     200,
	}
}

func ConfigFrom(es config.ElasticsearchConfig) *Config {
	cfg := LoadConfig()
	if es.Index != "" {
		cfg.Index = es.Index
	}
	return cfg
}

// internal/common/config/config.go
package config

import (
	"fmt"
	"net/url"
)

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Mailboxes  []MailboxConfig  `mapstructure:"mailboxes"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Charges    ChargesConfig    `mapstructure:"charges"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the lib/pq keyword connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// GetURL returns the postgres:// form expected by golang-migrate.
func (p PostgresConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// ElasticsearchConfig is optional; an empty address list disables the
// match-attempt audit index.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

func (e ElasticsearchConfig) Enabled() bool {
	return len(e.Addresses) > 0
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Pipeline Configuration ---

// MailboxConfig describes one monitored inbox.
type MailboxConfig struct {
	ID                string `mapstructure:"id" validate:"required"`
	Host              string `mapstructure:"host" validate:"required,hostname|ip"`
	Port              int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	UseTLS            bool   `mapstructure:"use_tls"`
	Username          string `mapstructure:"username" validate:"required"`
	Password          string `mapstructure:"password" validate:"required"`
	Folder            string `mapstructure:"folder"`
	PollInterval      int    `mapstructure:"poll_interval"`      // milliseconds
	ErrorBackoff      int    `mapstructure:"error_backoff"`      // milliseconds
	DisconnectBackoff int    `mapstructure:"disconnect_backoff"` // milliseconds
	LookBack          int    `mapstructure:"look_back"`          // milliseconds
	DialTimeout       int    `mapstructure:"dial_timeout"`       // milliseconds
	CommandTimeout    int    `mapstructure:"command_timeout"`    // milliseconds
	Enabled           *bool  `mapstructure:"enabled"`
}

// IsEnabled treats an omitted flag as enabled.
func (m MailboxConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

type ExtractionConfig struct {
	AmountCeiling     float64  `mapstructure:"amount_ceiling"`
	MinTemplateAmount float64  `mapstructure:"min_template_amount"`
	PreviewLength     int      `mapstructure:"preview_length"`
	Strategies        []string `mapstructure:"strategies"`
	TemplateCacheTTL  int      `mapstructure:"template_cache_ttl"` // milliseconds
}

type MatchingConfig struct {
	AmountTolerance float64 `mapstructure:"amount_tolerance"`
	LookBack        int     `mapstructure:"look_back"` // milliseconds
	MismatchEpsilon float64 `mapstructure:"mismatch_epsilon"`
	Timeout         int     `mapstructure:"timeout"` // milliseconds
}

type ChargesConfig struct {
	Percentage float64 `mapstructure:"percentage"`
	Fixed      float64 `mapstructure:"fixed"`
}

type WebhookConfig struct {
	Timeout    int    `mapstructure:"timeout"`     // milliseconds
	MaxRetries int    `mapstructure:"max_retries"` // retries after the first attempt
	RetryDelay int    `mapstructure:"retry_delay"` // milliseconds
	UserAgent  string `mapstructure:"user_agent"`
}

type SchedulerConfig struct {
	RecheckDelay int `mapstructure:"recheck_delay"` // milliseconds
	PollInterval int `mapstructure:"poll_interval"` // milliseconds
}

type QueueConfig struct {
	Workers       int `mapstructure:"workers"`
	MaxRetries    int `mapstructure:"max_retries"`
	StuckAfter    int `mapstructure:"stuck_after"`    // milliseconds
	SweepInterval int `mapstructure:"sweep_interval"` // milliseconds
	JobTTL        int `mapstructure:"job_ttl"`        // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

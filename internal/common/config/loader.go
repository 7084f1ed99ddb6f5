// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml
// on top and lets environment variables override any key (database.postgres.host
// becomes DATABASE_POSTGRES_HOST).
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional overlay

	return build(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandMailboxSecrets(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in scalar string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// viper does not descend into list entries, so mailbox credentials are
// expanded after unmarshal.
func expandMailboxSecrets(cfg *Config) {
	for i := range cfg.Mailboxes {
		mb := &cfg.Mailboxes[i]
		mb.Host = os.ExpandEnv(mb.Host)
		mb.Username = os.ExpandEnv(mb.Username)
		mb.Password = os.ExpandEnv(mb.Password)
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "transfer-reconciler"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "match-attempts"
	}

	for i := range cfg.Mailboxes {
		mb := &cfg.Mailboxes[i]
		if mb.Port == 0 {
			mb.Port = 993
		}
		if mb.Folder == "" {
			mb.Folder = "INBOX"
		}
		if mb.PollInterval == 0 {
			mb.PollInterval = 30000
		}
		if mb.ErrorBackoff == 0 {
			mb.ErrorBackoff = 30000
		}
		if mb.DisconnectBackoff == 0 {
			mb.DisconnectBackoff = 10000
		}
		if mb.LookBack == 0 {
			mb.LookBack = 24 * 60 * 60 * 1000
		}
	}

	if cfg.Extraction.AmountCeiling == 0 {
		cfg.Extraction.AmountCeiling = 1_000_000_000
	}
	if cfg.Extraction.MinTemplateAmount == 0 {
		cfg.Extraction.MinTemplateAmount = 10
	}
	if cfg.Extraction.PreviewLength == 0 {
		cfg.Extraction.PreviewLength = 500
	}
	if cfg.Extraction.TemplateCacheTTL == 0 {
		cfg.Extraction.TemplateCacheTTL = 60000
	}

	if cfg.Matching.AmountTolerance == 0 {
		cfg.Matching.AmountTolerance = 1
	}
	if cfg.Matching.LookBack == 0 {
		cfg.Matching.LookBack = 5 * 60 * 1000
	}
	if cfg.Matching.MismatchEpsilon == 0 {
		cfg.Matching.MismatchEpsilon = 0.01
	}
	if cfg.Matching.Timeout == 0 {
		cfg.Matching.Timeout = 30000
	}

	if cfg.Charges.Percentage == 0 {
		cfg.Charges.Percentage = 1.0
	}
	if cfg.Charges.Fixed == 0 {
		cfg.Charges.Fixed = 50
	}

	if cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = 10000
	}
	if cfg.Webhook.MaxRetries == 0 {
		cfg.Webhook.MaxRetries = 2
	}
	if cfg.Webhook.RetryDelay == 0 {
		cfg.Webhook.RetryDelay = 2000
	}
	if cfg.Webhook.UserAgent == "" {
		cfg.Webhook.UserAgent = "TransferReconciler/1.0"
	}

	if cfg.Scheduler.RecheckDelay == 0 {
		cfg.Scheduler.RecheckDelay = 60000
	}
	if cfg.Scheduler.PollInterval == 0 {
		cfg.Scheduler.PollInterval = 1000
	}

	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 3
	}
	if cfg.Queue.StuckAfter == 0 {
		cfg.Queue.StuckAfter = 10 * 60 * 1000
	}
	if cfg.Queue.SweepInterval == 0 {
		cfg.Queue.SweepInterval = 60000
	}
	if cfg.Queue.JobTTL == 0 {
		cfg.Queue.JobTTL = 24 * 60 * 60 * 1000
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig checks the settings the process cannot run without. Mailbox
// entries are not validated here: a broken mailbox only disables itself at
// watcher startup.
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	seen := make(map[string]bool, len(cfg.Mailboxes))
	for _, mb := range cfg.Mailboxes {
		if mb.ID == "" {
			return fmt.Errorf("mailboxes[].id is required")
		}
		if seen[mb.ID] {
			return fmt.Errorf("duplicate mailbox id %q", mb.ID)
		}
		seen[mb.ID] = true
	}

	if cfg.Matching.AmountTolerance < 0 {
		return fmt.Errorf("matching.amount_tolerance must not be negative")
	}

	return nil
}

var structValidator = validator.New()

// ValidateMailbox checks the connection settings of a single mailbox.
func ValidateMailbox(mb MailboxConfig) error {
	if err := structValidator.Struct(mb); err != nil {
		return fmt.Errorf("mailbox %s: %w", mb.ID, err)
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

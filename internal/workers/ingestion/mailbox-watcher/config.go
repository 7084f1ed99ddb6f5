// internal/workers/ingestion/mailbox-watcher/config.go
package mailboxwatcher

import (
	"time"

	"transfer-reconciler/internal/common/config"
)

// Config is one mailbox's connection and polling settings.
type Config struct {
	ID                string
	Host              string
	Port              int
	UseTLS            bool
	Username          string
	Password          string
	Folder            string
	PollInterval      time.Duration
	ErrorBackoff      time.Duration
	DisconnectBackoff time.Duration
	LookBack          time.Duration
	DialTimeout       time.Duration
	CommandTimeout    time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Port:              993,
		UseTLS:            true,
		Folder:            "INBOX",
		PollInterval:      30 * time.Second,
		ErrorBackoff:      30 * time.Second,
		DisconnectBackoff: 10 * time.Second,
		LookBack:          24 * time.Hour,
		DialTimeout:       10 * time.Second,
		CommandTimeout:    60 * time.Second,
	}
}

func ConfigFrom(mb config.MailboxConfig) *Config {
	cfg := LoadConfig()
	cfg.ID = mb.ID
	cfg.Host = mb.Host
	cfg.UseTLS = mb.UseTLS
	cfg.Username = mb.Username
	cfg.Password = mb.Password
	if mb.Port > 0 {
		cfg.Port = mb.Port
	}
	if mb.Folder != "" {
		cfg.Folder = mb.Folder
	}
	if mb.PollInterval > 0 {
		cfg.PollInterval = config.GetDuration(mb.PollInterval)
	}
	if mb.ErrorBackoff > 0 {
		cfg.ErrorBackoff = config.GetDuration(mb.ErrorBackoff)
	}
	if mb.DisconnectBackoff > 0 {
		cfg.DisconnectBackoff = config.GetDuration(mb.DisconnectBackoff)
	}
	if mb.LookBack > 0 {
		cfg.LookBack = config.GetDuration(mb.LookBack)
	}
	if mb.DialTimeout > 0 {
		cfg.DialTimeout = config.GetDuration(mb.DialTimeout)
	}
	if mb.CommandTimeout > 0 {
		cfg.CommandTimeout = config.GetDuration(mb.CommandTimeout)
	}
	return cfg
}

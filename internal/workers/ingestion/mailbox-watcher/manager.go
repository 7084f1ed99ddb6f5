// internal/workers/ingestion/mailbox-watcher/manager.go
package mailboxwatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"transfer-reconciler/internal/common/config"
	commonerrors "transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/common/logger"
)

// Manager runs one Watcher per enabled mailbox.
type Manager struct {
	watchers map[string]*Watcher
	failed   map[string]error
	logger   logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds watchers for every enabled mailbox. A mailbox with
// invalid settings is logged and left out; the others still run.
func NewManager(mailboxes []config.MailboxConfig, dial Dialer, forwarder Forwarder, log logger.Logger) *Manager {
	m := &Manager{
		watchers: make(map[string]*Watcher),
		failed:   make(map[string]error),
		logger:   log.WithFields(map[string]interface{}{"component": "mailbox-manager"}),
	}

	for _, mb := range mailboxes {
		if !mb.IsEnabled() {
			continue
		}
		if err := config.ValidateMailbox(mb); err != nil {
			cfgErr := commonerrors.NewConfigurationError("mailbox "+mb.ID, err)
			m.failed[mb.ID] = cfgErr
			m.logger.Error("mailbox not started", map[string]interface{}{
				"mailboxId": mb.ID,
				"error":     cfgErr.Error(),
			})
			continue
		}
		m.watchers[mb.ID] = NewWatcher(ConfigFrom(mb), dial, forwarder, log)
	}
	return m
}

// Mailboxes returns the ids of the watchers that will run, sorted.
func (m *Manager) Mailboxes() []string {
	ids := make([]string, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Failed returns the configuration error for each mailbox that was skipped.
func (m *Manager) Failed() map[string]error {
	return m.failed
}

func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	for _, w := range m.watchers {
		m.wg.Add(1)
		go func(w *Watcher) {
			defer m.wg.Done()
			w.Run(ctx)
		}(w)
	}
	m.logger.Info("mailbox watchers started", map[string]interface{}{
		"mailboxes": m.Mailboxes(),
		"skipped":   len(m.failed),
	})
}

func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	m.logger.Info("mailbox watchers stopped", nil)
}

// FetchNow polls one mailbox immediately, or every mailbox when mailboxID is
// empty. A request for an unknown mailbox falls back to all of them.
func (m *Manager) FetchNow(ctx context.Context, mailboxID string) error {
	if w, ok := m.watchers[mailboxID]; ok {
		_, err := w.FetchNow(ctx)
		return err
	}
	if mailboxID != "" {
		if err, ok := m.failed[mailboxID]; ok {
			return err
		}
		m.logger.Debug("unknown mailbox, fetching all", map[string]interface{}{"mailboxId": mailboxID})
	}

	var failures []string
	for _, id := range m.Mailboxes() {
		if _, err := m.watchers[id].FetchNow(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", id, err))
		}
	}
	if len(failures) > 0 {
		return commonerrors.NewTransientIOError("fetch mailboxes", fmt.Errorf("%v", failures))
	}
	return nil
}

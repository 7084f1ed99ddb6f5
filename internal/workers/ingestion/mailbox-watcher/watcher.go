// internal/workers/ingestion/mailbox-watcher/watcher.go
package mailboxwatcher

import (
	"context"
	"sync"
	"time"

	"github.com/emersion/go-imap"

	commonerrors "transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/metrics"
)

const TaskType = "mailbox-watcher"

// PollResult counts what one poll cycle did.
type PollResult struct {
	Found      int
	Forwarded  int
	Duplicates int
	Failed     int
}

// Watcher polls one mailbox for unseen messages and forwards them.
type Watcher struct {
	config    *Config
	dial      Dialer
	forwarder Forwarder
	logger    logger.Logger
	now       func() time.Time

	// mu serializes poll cycles between the session loop and FetchNow.
	mu sync.Mutex
}

func NewWatcher(config *Config, dial Dialer, forwarder Forwarder, log logger.Logger) *Watcher {
	if dial == nil {
		dial = DialIMAP
	}
	return &Watcher{
		config:    config,
		dial:      dial,
		forwarder: forwarder,
		logger: log.WithFields(map[string]interface{}{
			"taskType":  TaskType,
			"mailboxId": config.ID,
		}),
		now: time.Now,
	}
}

func (w *Watcher) ID() string { return w.config.ID }

// Run keeps a session open until ctx is done, reconnecting after errors and
// after the server logs the session out.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("mailbox watcher started", map[string]interface{}{
		"host":   w.config.Host,
		"folder": w.config.Folder,
	})
	for {
		err := w.session(ctx)
		if ctx.Err() != nil {
			w.logger.Info("mailbox watcher stopped", nil)
			return
		}

		wait := w.config.DisconnectBackoff
		if err != nil {
			wait = w.config.ErrorBackoff
			w.logger.Error("mailbox session failed", map[string]interface{}{
				"error":   err.Error(),
				"retryIn": wait.String(),
			})
		} else {
			w.logger.Warn("mailbox session closed by server", map[string]interface{}{
				"retryIn": wait.String(),
			})
		}

		select {
		case <-ctx.Done():
			w.logger.Info("mailbox watcher stopped", nil)
			return
		case <-time.After(wait):
		}
	}
}

func (w *Watcher) session(ctx context.Context) error {
	c, err := w.connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Logout() }()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.poll(ctx, c); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.LoggedOut():
			return nil
		case <-ticker.C:
		}
	}
}

// FetchNow runs one poll cycle on a short-lived connection.
func (w *Watcher) FetchNow(ctx context.Context) (*PollResult, error) {
	c, err := w.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout() }()
	return w.poll(ctx, c)
}

func (w *Watcher) connect() (MailClient, error) {
	c, err := w.dial(w.config)
	if err != nil {
		return nil, commonerrors.NewTransientIOError("imap dial "+w.config.Host, err)
	}
	if err := c.Login(w.config.Username, w.config.Password); err != nil {
		_ = c.Logout()
		return nil, commonerrors.NewTransientIOError("imap login "+w.config.Username, err)
	}
	return c, nil
}

// poll selects the folder, fetches unseen messages inside the look-back
// window and marks \Seen only the ones that were handed off.
func (w *Watcher) poll(ctx context.Context, c MailClient) (*PollResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := &PollResult{}
	if _, err := c.Select(w.config.Folder, false); err != nil {
		return nil, commonerrors.NewTransientIOError("imap select "+w.config.Folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = w.now().Add(-w.config.LookBack)

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, commonerrors.NewTransientIOError("imap search", err)
	}
	if len(uids) == 0 {
		return result, nil
	}
	result.Found = len(uids)

	messages, err := w.fetch(c, uids)
	if err != nil {
		return nil, err
	}

	seen := new(imap.SeqSet)
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if w.handle(ctx, msg, result) {
			seen.AddNum(msg.Uid)
		}
	}

	if !seen.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.UidStore(seen, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return result, commonerrors.NewTransientIOError("imap store seen", err)
		}
	}

	if result.Forwarded > 0 || result.Failed > 0 {
		w.logger.Info("mailbox poll finished", map[string]interface{}{
			"found":      result.Found,
			"forwarded":  result.Forwarded,
			"duplicates": result.Duplicates,
			"failed":     result.Failed,
		})
	}
	return result, nil
}

func (w *Watcher) fetch(c MailClient, uids []uint32) ([]*imap.Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	items := []imap.FetchItem{bodySection.FetchItem(), imap.FetchEnvelope, imap.FetchUid}

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	var messages []*imap.Message
	for msg := range ch {
		messages = append(messages, msg)
	}
	if err := <-done; err != nil {
		return nil, commonerrors.NewTransientIOError("imap fetch", err)
	}
	return messages, nil
}

// handle parses and forwards one message and reports whether it may be
// marked \Seen.
func (w *Watcher) handle(ctx context.Context, msg *imap.Message, result *PollResult) bool {
	e, err := ParseMessage(w.config.ID, msg, w.now())
	if err != nil {
		result.Failed++
		metrics.EmailsIngested.WithLabelValues(w.config.ID, "parse_error").Inc()
		w.logger.Warn("skipping unparseable message", map[string]interface{}{
			"uid":   msg.Uid,
			"error": err.Error(),
		})
		return false
	}

	isNew, err := w.forwarder.Forward(ctx, e)
	if err != nil {
		result.Failed++
		metrics.EmailsIngested.WithLabelValues(w.config.ID, "forward_error").Inc()
		w.logger.Error("failed to forward message", map[string]interface{}{
			"uid":       msg.Uid,
			"messageId": e.MessageID,
			"error":     err.Error(),
		})
		return false
	}

	if isNew {
		result.Forwarded++
		metrics.EmailsIngested.WithLabelValues(w.config.ID, "new").Inc()
	} else {
		result.Duplicates++
		metrics.EmailsIngested.WithLabelValues(w.config.ID, "duplicate").Inc()
	}
	return true
}

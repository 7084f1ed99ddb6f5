// internal/workers/ingestion/mailbox-watcher/parser.go
package mailboxwatcher

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/jordan-wright/email"

	"transfer-reconciler/internal/models"
)

var ErrMissingBody = errors.New("MESSAGE_BODY_MISSING")

// bodySection fetches the full RFC 822 message without setting \Seen.
var bodySection = &imap.BodySectionName{Peek: true}

// ParseMessage turns a fetched IMAP message into an InboundEmail. now is used
// when neither the Date header nor the envelope carries a date.
func ParseMessage(mailboxID string, msg *imap.Message, now time.Time) (*models.InboundEmail, error) {
	body := msg.GetBody(bodySection)
	if body == nil {
		return nil, ErrMissingBody
	}

	parsed, err := email.NewEmailFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse uid %d: %w", msg.Uid, err)
	}

	e := &models.InboundEmail{
		MailboxID: mailboxID,
		Subject:   strings.TrimSpace(parsed.Subject),
		TextBody:  string(parsed.Text),
		HTMLBody:  string(parsed.HTML),
		EmailDate: messageDate(parsed, msg.Envelope, now),
	}
	e.FromEmail, e.FromName = messageFrom(parsed, msg.Envelope)

	e.MessageID = strings.TrimSpace(parsed.Headers.Get("Message-Id"))
	if e.MessageID == "" && msg.Envelope != nil {
		e.MessageID = strings.TrimSpace(msg.Envelope.MessageId)
	}
	if e.MessageID == "" {
		e.MessageID = fmt.Sprintf("%s|%s", e.EmailDate.UTC().Format(time.RFC3339), e.FromEmail)
	}
	if e.Subject == "" && msg.Envelope != nil {
		e.Subject = msg.Envelope.Subject
	}
	return e, nil
}

func messageDate(parsed *email.Email, env *imap.Envelope, now time.Time) time.Time {
	if raw := parsed.Headers.Get("Date"); raw != "" {
		if t, err := mail.ParseDate(raw); err == nil {
			return t.UTC()
		}
	}
	if env != nil && !env.Date.IsZero() {
		return env.Date.UTC()
	}
	return now.UTC()
}

func messageFrom(parsed *email.Email, env *imap.Envelope) (string, string) {
	if parsed.From != "" {
		if addr, err := mail.ParseAddress(parsed.From); err == nil {
			return strings.ToLower(addr.Address), addr.Name
		}
	}
	if env != nil && len(env.From) > 0 && env.From[0] != nil {
		from := env.From[0]
		return strings.ToLower(from.Address()), from.PersonalName
	}
	return strings.ToLower(strings.TrimSpace(parsed.From)), ""
}

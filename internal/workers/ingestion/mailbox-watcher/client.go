// internal/workers/ingestion/mailbox-watcher/client.go
package mailboxwatcher

import (
	"crypto/tls"
	"net"
	"strconv"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// MailClient is the subset of the IMAP client the watcher drives.
type MailClient interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	LoggedOut() <-chan struct{}
	Logout() error
}

// Dialer opens an unauthenticated connection for a mailbox.
type Dialer func(cfg *Config) (MailClient, error)

// DialIMAP connects over TLS when configured, plain TCP otherwise. The dial
// timeout also bounds the wait for the server greeting; every later command
// is bounded by CommandTimeout.
func DialIMAP(cfg *Config) (MailClient, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}

	var (
		c   *client.Client
		err error
	)
	if cfg.UseTLS {
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12})
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, err
	}
	c.Timeout = cfg.CommandTimeout
	return c, nil
}

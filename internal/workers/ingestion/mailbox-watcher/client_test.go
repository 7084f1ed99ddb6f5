// internal/workers/ingestion/mailbox-watcher/client_test.go
package mailboxwatcher

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-reconciler/internal/common/config"
)

// imapListener accepts plain TCP connections and writes greeting to each one.
// An empty greeting leaves the client waiting.
func imapListener(t *testing.T, greeting string) *Config {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			if greeting != "" {
				_, _ = conn.Write([]byte(greeting))
			}
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	cfg := LoadConfig()
	cfg.Host = host
	cfg.Port, _ = strconv.Atoi(port)
	cfg.UseTLS = false
	return cfg
}

func TestDialIMAP(t *testing.T) {
	t.Run("silent server times out", func(t *testing.T) {
		cfg := imapListener(t, "")
		cfg.DialTimeout = 200 * time.Millisecond

		started := time.Now()
		c, err := DialIMAP(cfg)
		require.Error(t, err)
		assert.Nil(t, c)
		assert.Less(t, time.Since(started), 3*time.Second)
	})

	t.Run("command timeout is applied", func(t *testing.T) {
		cfg := imapListener(t, "* OK [CAPABILITY IMAP4rev1] ready\r\n")
		cfg.CommandTimeout = 5 * time.Second

		c, err := DialIMAP(cfg)
		require.NoError(t, err)
		imapClient, ok := c.(*client.Client)
		require.True(t, ok)
		defer imapClient.Terminate()
		assert.Equal(t, 5*time.Second, imapClient.Timeout)
	})
}

func TestConfigFrom_Timeouts(t *testing.T) {
	cfg := ConfigFrom(config.MailboxConfig{ID: "shop", Host: "imap.example.com"})
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, 60*time.Second, cfg.CommandTimeout)

	cfg = ConfigFrom(config.MailboxConfig{ID: "shop", DialTimeout: 2500, CommandTimeout: 15000})
	assert.Equal(t, 2500*time.Millisecond, cfg.DialTimeout)
	assert.Equal(t, 15*time.Second, cfg.CommandTimeout)
}

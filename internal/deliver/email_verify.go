package deliver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"notedigest/internal/appinfo"
)

func init() {
	// Decode RFC2047 headers for common charsets, including IMAP ENVELOPE
	// decode paths.
	if message.CharsetReader != nil {
		imap.CharsetReader = message.CharsetReader
	}
}

// MailboxStatus is the dashboard-facing result of an email channel check.
type MailboxStatus struct {
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// VerifyMailbox logs into the configured IMAP server and selects INBOX. It
// proves the address and authorization code work before any digest is sent,
// so the dashboard can flag a broken email channel ahead of the next run.
func (s *EmailSink) VerifyMailbox(ctx context.Context) MailboxStatus {
	now := time.Now().UTC()
	if s == nil {
		return MailboxStatus{Error: "email sink is nil", CheckedAt: now}
	}
	if err := s.verifyIMAP(ctx); err != nil {
		return MailboxStatus{Error: err.Error(), CheckedAt: now}
	}
	return MailboxStatus{OK: true, CheckedAt: now}
}

func (s *EmailSink) verifyIMAP(ctx context.Context) error {
	server := strings.TrimSpace(s.cfg.IMAP.Server)
	if server == "" {
		return errors.New("imap.server is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", server, s.cfg.IMAP.Port)
	var (
		c   *client.Client
		err error
	)
	if s.cfg.IMAP.UseSSL {
		tlsCfg := &tls.Config{ServerName: server}
		c, err = client.DialTLS(addr, tlsCfg)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("imap dial failed: %w", err)
	}
	defer func() { _ = c.Logout() }()
	c.Timeout = 25 * time.Second

	if err := c.Login(strings.TrimSpace(s.cfg.EmailAddress), strings.TrimSpace(s.cfg.AuthorizationCode)); err != nil {
		return fmt.Errorf("imap login failed: %w", err)
	}

	// Some providers require IMAP ID before SELECT. Best-effort.
	_ = sendIMAPID(c)

	if _, err := c.Select("INBOX", true); err != nil {
		return fmt.Errorf("imap select INBOX failed: %w", err)
	}
	return nil
}

func sendIMAPID(c *client.Client) error {
	if c == nil {
		return errors.New("nil imap client")
	}
	cmd := &imap.Command{
		Name: "ID",
		Arguments: []interface{}{
			[]interface{}{
				"name", appinfo.Name,
				"version", appinfo.Version,
				"vendor", appinfo.Name,
			},
		},
	}
	_, err := c.Execute(cmd, nil)
	return err
}

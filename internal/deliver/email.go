package deliver

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type EmailConfig struct {
	EmailAddress      string     `json:"email_address"`
	AuthorizationCode string     `json:"authorization_code"`
	IMAP              IMAPConfig `json:"imap"`
	SMTP              SMTPConfig `json:"smtp"`
}

type IMAPConfig struct {
	Server string `json:"server"`
	Port   int    `json:"port"`
	UseSSL bool   `json:"use_ssl"`
}

type SMTPConfig struct {
	Server string `json:"server"`
	Port   int    `json:"port"`
	UseSSL bool   `json:"use_ssl"`
}

func (c EmailConfig) Validate() error {
	if strings.TrimSpace(c.EmailAddress) == "" {
		return errors.New("email_address is required")
	}
	if strings.TrimSpace(c.AuthorizationCode) == "" {
		return errors.New("authorization_code is required")
	}
	if strings.TrimSpace(c.SMTP.Server) == "" {
		return errors.New("smtp.server is required")
	}
	return nil
}

func (c *EmailConfig) applyDefaults() {
	if c.SMTP.Port <= 0 {
		c.SMTP.Port = 465
		c.SMTP.UseSSL = true
	}
	if c.IMAP.Port <= 0 {
		c.IMAP.Port = 993
		c.IMAP.UseSSL = true
	}
}

// EmailSink sends digests over SMTP as multipart/alternative text+HTML.
type EmailSink struct {
	cfg EmailConfig
}

func NewEmailSink(cfg EmailConfig) (*EmailSink, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EmailSink{cfg: cfg}, nil
}

func (s *EmailSink) Channel() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, req Request) error {
	if s == nil {
		return errors.New("email sink is nil")
	}
	to := strings.TrimSpace(req.Address)
	if to == "" {
		return errors.New("email address is required")
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = "(no subject)"
	}
	from := strings.TrimSpace(s.cfg.EmailAddress)

	htmlBody, err := renderDigestHTML(subject, req.Markdown)
	if err != nil {
		// Plain text still goes out when rendering fails.
		htmlBody = ""
	}

	addr := fmt.Sprintf("%s:%d", strings.TrimSpace(s.cfg.SMTP.Server), s.cfg.SMTP.Port)
	dialer := &net.Dialer{Timeout: 15 * time.Second}

	var conn net.Conn
	if s.cfg.SMTP.UseSSL {
		tlsCfg := &tls.Config{ServerName: strings.TrimSpace(s.cfg.SMTP.Server)}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, strings.TrimSpace(s.cfg.SMTP.Server))
	if err != nil {
		return fmt.Errorf("smtp client failed: %w", err)
	}
	defer func() { _ = c.Quit() }()

	auth := smtp.PlainAuth("", from, strings.TrimSpace(s.cfg.AuthorizationCode), strings.TrimSpace(s.cfg.SMTP.Server))
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO failed: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}

	subjectEncoded := mime.QEncoding.Encode("utf-8", subject)
	msg := buildAlternativeEmail(from, to, subjectEncoded, req.Markdown, htmlBody)
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close failed: %w", err)
	}
	return nil
}

func buildAlternativeEmail(from string, to string, subject string, textBody string, htmlBody string) string {
	if strings.TrimSpace(textBody) == "" {
		textBody = "(empty)"
	}
	textBody = strings.ReplaceAll(textBody, "\r\n", "\n")
	textBody = strings.ReplaceAll(textBody, "\n", "\r\n")

	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Date: " + time.Now().Format(time.RFC1123Z),
	}

	if strings.TrimSpace(htmlBody) == "" {
		headers = append(headers,
			"Content-Type: text/plain; charset=UTF-8",
			"Content-Transfer-Encoding: 8bit",
		)
		return strings.Join(headers, "\r\n") + "\r\n\r\n" + textBody + "\r\n"
	}

	boundary := randomBoundary("alt")
	headers = append(headers,
		fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"", boundary),
	)

	var b strings.Builder
	b.Grow(len(textBody) + len(htmlBody) + 1024)
	b.WriteString(strings.Join(headers, "\r\n"))
	b.WriteString("\r\n\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(textBody)
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(htmlBody, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "--\r\n")
	return b.String()
}

func randomBoundary(prefix string) string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	suffix := hex.EncodeToString(b[:])
	p := strings.TrimSpace(prefix)
	if p == "" {
		return suffix
	}
	return p + "-" + suffix
}

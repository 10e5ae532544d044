package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	UseSSL     bool // implicit TLS, usually port 465
	RequireTLS bool // fail when STARTTLS is not offered
}

type SMTPProvider struct {
	cfg         Config
	dialTimeout time.Duration
	now         func() time.Time
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, dialTimeout: 10 * time.Second, now: time.Now}
}

// NewSMTPFactory is the Factory used outside tests.
func NewSMTPFactory() Factory {
	return func(cfg Config) Provider {
		return NewSMTP(cfg)
	}
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	if err := validate(msg, p.cfg.From); err != nil {
		return err
	}
	body := p.buildMessage(msg)

	addr := net.JoinHostPort(p.cfg.Host, fmt.Sprintf("%d", p.cfg.Port))
	dialer := &net.Dialer{Timeout: p.dialTimeout}

	var conn net.Conn
	var err error
	if p.cfg.UseSSL {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: p.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if !p.cfg.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(p.tlsConfig()); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		} else if p.cfg.RequireTLS {
			return fmt.Errorf("smtp: server does not support STARTTLS")
		}
	}

	if strings.TrimSpace(p.cfg.Username) != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(p.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return c.Quit()
}

func (p *SMTPProvider) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: p.cfg.Host, MinVersion: tls.VersionTLS12}
}

func (p *SMTPProvider) buildMessage(msg Message) []byte {
	boundary := "alt_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	var buf bytes.Buffer
	write := func(format string, a ...any) { _, _ = fmt.Fprintf(&buf, format, a...) }

	write("From: %s\r\n", p.fromHeader())
	write("To: %s\r\n", msg.To)
	write("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	write("Date: %s\r\n", p.now().Format(time.RFC1123Z))
	write("MIME-Version: 1.0\r\n")
	write("Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	write("\r\n")

	write("--%s\r\n", boundary)
	write("Content-Type: text/plain; charset=UTF-8\r\n")
	write("Content-Transfer-Encoding: 8bit\r\n\r\n")
	write("%s\r\n\r\n", msg.Text)

	write("--%s\r\n", boundary)
	write("Content-Type: text/html; charset=UTF-8\r\n")
	write("Content-Transfer-Encoding: 8bit\r\n\r\n")
	write("%s\r\n\r\n", msg.HTML)

	write("--%s--\r\n", boundary)
	return buf.Bytes()
}

func (p *SMTPProvider) fromHeader() string {
	name := strings.TrimSpace(p.cfg.FromName)
	if name == "" {
		return p.cfg.From
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), p.cfg.From)
}

package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail through an SMTP relay with implicit TLS or STARTTLS.
type SMTPMailer struct {
	cfg     config.NotifyConfig
	logg    *logger.Logger
	deliver func(ctx context.Context, msg Message) error
}

// NewSMTPMailer validates the relay settings.
func NewSMTPMailer(cfg config.NotifyConfig, logg *logger.Logger) (*SMTPMailer, error) {
	if !cfg.SMTPEnabled() {
		return nil, errors.New("smtp host and from address required")
	}
	if _, err := mail.ParseAddress(cfg.SMTPFrom); err != nil {
		return nil, fmt.Errorf("invalid smtp from address: %w", err)
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.SMTPTimeout <= 0 {
		cfg.SMTPTimeout = 10 * time.Second
	}
	if cfg.SMTPRetries <= 0 {
		cfg.SMTPRetries = 1
	}
	m := &SMTPMailer{cfg: cfg, logg: logg}
	m.deliver = m.sendOnce
	return m, nil
}

// Send delivers msg, retrying with a linear backoff.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	var lastErr error
	for attempt := 1; attempt <= m.cfg.SMTPRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(attempt)):
			}
		}
		lastErr = m.deliver(ctx, msg)
		if lastErr == nil {
			return nil
		}
		if m.logg != nil {
			logCtx := m.logg.WithFields(ctx, map[string]any{"attempt": attempt, "error": lastErr.Error()})
			m.logg.Warn(logCtx, "smtp send attempt failed")
		}
	}
	return fmt.Errorf("smtp send failed after %d attempts: %w", m.cfg.SMTPRetries, lastErr)
}

func retryDelay(attempt int) time.Duration {
	delay := time.Duration(attempt-1) * 500 * time.Millisecond
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}
	return delay
}

func (m *SMTPMailer) sendOnce(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(m.cfg.SMTPHost, strconv.Itoa(m.cfg.SMTPPort))
	dialer := &net.Dialer{Timeout: m.cfg.SMTPTimeout}
	tlsConfig := &tls.Config{ServerName: m.cfg.SMTPHost, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	var err error
	if m.cfg.SMTPUseTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(m.cfg.SMTPTimeout))

	client, err := smtp.NewClient(conn, m.cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if !m.cfg.SMTPUseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if m.cfg.SMTPUsername != "" {
		auth := smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	from, _ := mail.ParseAddress(m.cfg.SMTPFrom)
	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("smtp sender: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp recipient: %w", err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write(buildMessage(from.String(), msg, time.Now())); err != nil {
		_ = wc.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp commit: %w", err)
	}
	return client.Quit()
}

func buildMessage(from string, msg Message, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mimeHeader(msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Text, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func mimeHeader(value string) string {
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	return mime.QEncoding.Encode("utf-8", value)
}

// LogMailer writes messages to the log instead of sending them. Bodies are only
// logged when revealBody is set, which is limited to development.
type LogMailer struct {
	logg       *logger.Logger
	revealBody bool
}

// NewLogMailer builds a log-only mailer.
func NewLogMailer(logg *logger.Logger, revealBody bool) *LogMailer {
	return &LogMailer{logg: logg, revealBody: revealBody}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if m.logg == nil {
		return nil
	}
	fields := map[string]any{"to": msg.To, "subject": msg.Subject}
	if m.revealBody {
		fields["body"] = msg.Text
	}
	m.logg.Info(m.logg.WithFields(ctx, fields), "email suppressed")
	return nil
}

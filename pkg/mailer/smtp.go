package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-insights-api/pkg/config"
)

// ErrNotConfigured is returned when no SMTP host or credentials are set.
var ErrNotConfigured = errors.New("smtp not configured")

// Message is a plain text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers messages through an SMTP relay, preferring implicit TLS.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
	logger   *zap.Logger

	send sendFunc
}

// NewSMTPMailer constructs a mailer from configuration.
func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) *SMTPMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	m := &SMTPMailer{
		host:     cfg.Host,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
		from:     from,
		timeout:  15 * time.Second,
		logger:   logger,
	}
	m.send = m.sendWithFallback
	return m
}

// Configured reports whether a host, a sender and credentials are available.
func (m *SMTPMailer) Configured() bool {
	return m != nil && m.host != "" && m.from != "" && m.username != "" && m.password != ""
}

// Send delivers the message. The context bounds only the wait before dispatch.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	if err := m.send(addr, auth, m.from, msg.To, m.buildMessage(msg)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.logger.Info("email sent", zap.Int("recipients", len(msg.To)), zap.String("subject", msg.Subject))
	return nil
}

func (m *SMTPMailer) sendWithFallback(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	err := m.sendWithTLS(addr, auth, from, to, msg)
	if err == nil {
		return nil
	}
	m.logger.Debug("implicit tls failed, using starttls", zap.Error(err))
	return smtp.SendMail(addr, auth, from, to, msg)
}

func (m *SMTPMailer) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	dialer := &net.Dialer{Timeout: m.timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close() //nolint:errcheck

	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (m *SMTPMailer) buildMessage(msg Message) []byte {
	headers := map[string]string{
		"From":         m.from,
		"To":           strings.Join(msg.To, ", "),
		"Subject":      msg.Subject,
		"MIME-Version": "1.0",
		"Content-Type": `text/plain; charset="utf-8"`,
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headers[k])
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

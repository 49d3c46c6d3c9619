package jobs

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"
)

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPConfig addresses the outgoing mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(msgs ...*gomail.Message) error
}

// NewSMTPMailer builds a mailer for cfg. STARTTLS is used when the relay offers it.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	return &SMTPMailer{cfg: cfg, send: dialer.DialAndSend}
}

// Send delivers msg. The dialer does not take a context, so cancellation is
// only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("mailer: header injection in recipient or subject")
	}
	if err := m.send(m.message(msg)); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) message(msg SendEmailPayload) *gomail.Message {
	out := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	out.SetHeader("From", m.cfg.From)
	out.SetHeader("To", msg.To)
	out.SetHeader("Subject", msg.Subject)
	out.SetBody("text/plain", msg.Body)
	return out
}

// LogMailer writes mail to the log instead of sending it; used when no SMTP
// relay is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail not sent, no smtp relay configured",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject))
	return nil
}

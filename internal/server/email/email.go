// Package email sends transactional mail. When SMTP is not configured the
// server falls back to logging outgoing messages, which keeps local
// development working without a mail relay.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/dmitrijs2005/tglinker/internal/server/config"
)

// Sender delivers a single plain-text message.
type Sender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// SMTPSender delivers mail through a configured SMTP relay.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender builds an SMTPSender from config. Auth is attached only when
// a username is present.
func NewSMTPSender(cfg *config.Config) *SMTPSender {
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	}
	from := cfg.SMTPFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		auth: auth,
		from: from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to string, subject string, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender writes outgoing messages to the log instead of delivering them.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "email")}
}

func (s *LogSender) Send(ctx context.Context, to string, subject string, body string) error {
	s.logger.Info(ctx, "email transport not configured, logging message",
		"to", to, "subject", subject, "body", body)
	return nil
}

// NewSender picks SMTP when a host is configured, otherwise the log fallback.
func NewSender(cfg *config.Config, logger logging.Logger) Sender {
	if cfg.SMTPHost != "" {
		return NewSMTPSender(cfg)
	}
	return NewLogSender(logger)
}

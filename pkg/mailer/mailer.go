package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a single HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends mail through a plain-auth SMTP relay.
type SMTPSender struct {
	addr     string
	host     string
	username string
	password string
	fromName string
	send     sendFunc
}

// New returns an SMTP sender when cfg is configured, otherwise a LogSender
// that only records the message.
func New(cfg config.SMTPConfig, logg *logger.Logger) Sender {
	if !cfg.Enabled() {
		return &LogSender{logg: logg}
	}
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		host:     cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		fromName: cfg.FromName,
		send:     smtp.SendMail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient required")
	}
	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := s.send(s.addr, auth, s.username, []string{msg.To}, s.build(msg)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func (s *SMTPSender) build(msg Message) []byte {
	from := s.username
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.username)
	}
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// LogSender is used when SMTP is not configured.
type LogSender struct {
	logg *logger.Logger
}

func (l *LogSender) Send(ctx context.Context, msg Message) error {
	if l.logg != nil {
		l.logg.Warn(l.logg.WithFields(ctx, map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
		}), "smtp not configured; email dropped")
	}
	return nil
}

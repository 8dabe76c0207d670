package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// SMTPSender delivers messages over plain SMTP.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// NewSMTPSender creates a sender. Auth is used only when a username is
// configured.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	s := &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from: cfg.From,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

// Send implements Sender. net/smtp has no context support, so the send
// runs in a goroutine and the result races the context deadline.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(b.String()))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender writes notifications to the log instead of delivering them.
// Used in local development where no SMTP relay exists.
type LogSender struct {
	Logger *zap.Logger
}

// Send implements Sender.
func (l LogSender) Send(ctx context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification (log sender)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/rimsurge/identity-service/internal/core/port"
	"github.com/rimsurge/identity-service/internal/infra/config"
	"github.com/rimsurge/identity-service/internal/infra/logger"
)

// SMTPMailer delivers mail through a configured SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	log    *zap.Logger
}

// NewSMTPMailer constructs a Mailer backed by gomail.
func NewSMTPMailer(cfg config.MailSettings, log *zap.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		log:    log,
	}
}

// Send delivers a plain-text message. The context deadline is honored by
// failing fast before dialing when already expired; gomail itself dials
// synchronously.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mail send aborted: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.log.Error("smtp delivery failed",
			zap.String("to", logger.MaskEmail(to)),
			zap.Error(err),
		)
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// DevMailer logs messages instead of delivering them. Used when SMTP is
// unconfigured, typically in development.
type DevMailer struct {
	log *zap.Logger
}

// NewDevMailer constructs a log-only Mailer.
func NewDevMailer(log *zap.Logger) *DevMailer {
	return &DevMailer{log: log}
}

// Send logs the message headers. The body may carry a verification code, so
// only its length is logged.
func (m *DevMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info("dev mailer: message suppressed",
		zap.String("to", logger.MaskEmail(to)),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)),
	)
	return nil
}

var (
	_ port.Mailer = (*SMTPMailer)(nil)
	_ port.Mailer = (*DevMailer)(nil)
)

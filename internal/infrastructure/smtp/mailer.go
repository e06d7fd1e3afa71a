package smtp

import (
	"log/slog"

	"github.com/genclean-otp/internal/config"
	"gopkg.in/gomail.v2"
)

// Mailer sends emails.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type mailer struct {
	dialer sender
	from   string
}

// NewMailer returns a gomail-backed Mailer, or a log-only one when no
// SMTP host is configured so local runs work without a relay.
func NewMailer(cfg *config.Config) Mailer {
	if cfg.SMTPHost == "" {
		return logMailer{}
	}
	return &mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.SMTPFrom,
	}
}

func (m *mailer) SendEmail(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}

type logMailer struct{}

func (logMailer) SendEmail(to, subject, body string) error {
	slog.Info("email not sent, SMTP_HOST is empty", "to", to, "subject", subject, "body", body)
	return nil
}

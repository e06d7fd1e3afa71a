package otp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/genclean-otp/internal/domain"
)

const MessageSubject = "Your GenClean verification code"

type mailer interface {
	SendEmail(to, subject, body string) error
}

// Service is the request-facing side of the registry: it issues a code and
// mails it, or verifies a submitted one.
type Service interface {
	Send(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string) error
}

type service struct {
	registry *Registry
	mailer   mailer
}

func NewService(registry *Registry, mailer mailer) Service {
	return &service{registry: registry, mailer: mailer}
}

func (s *service) Send(ctx context.Context, email string) error {
	code, err := s.registry.Issue(ctx, email)
	if err != nil {
		return err
	}
	to := NormalizeEmail(email)
	if err := s.mailer.SendEmail(to, MessageSubject, MessageBody(code, s.registry.Window())); err != nil {
		slog.Warn("otp email delivery failed", "email", to, "err", err)
		if rErr := s.registry.Revoke(ctx, to); rErr != nil {
			slog.Warn("failed to revoke undelivered otp", "email", to, "err", rErr)
		}
		return fmt.Errorf("could not send verification email: %w", domain.ErrDelivery)
	}
	return nil
}

func (s *service) Verify(ctx context.Context, email, code string) error {
	return s.registry.Verify(ctx, email, code)
}

// MessageBody renders the plain-text message carrying code.
func MessageBody(code string, window time.Duration) string {
	return fmt.Sprintf("Your GenClean verification code is %s. It expires in %d minutes.\n\n"+
		"If you did not request this, you can ignore this message.", code, int(window.Minutes()))
}

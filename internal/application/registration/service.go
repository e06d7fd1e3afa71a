package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/genclean-otp/internal/application/otp"
	"github.com/genclean-otp/internal/domain"
	"github.com/genclean-otp/internal/pkg/id"
	"github.com/genclean-otp/internal/pkg/validate"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTTL bounds how long a staged sign-up waits for its code.
const DefaultTTL = 30 * time.Minute

type codeRegistry interface {
	Issue(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) error
	Revoke(ctx context.Context, email string) error
	Window() time.Duration
}

type registrationStore interface {
	Get(ctx context.Context, email string) (*domain.Registration, error)
	Put(ctx context.Context, r *domain.Registration, ttl time.Duration) error
	Delete(ctx context.Context, email string) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type jwtSigner interface {
	Sign(userID, role string) (string, error)
}

type publisher interface {
	Publish(e domain.Event)
}

// Result is returned once a registration is committed. Bearer is empty when
// no signer is configured.
type Result struct {
	User   *domain.User
	Bearer string
}

type Service interface {
	Stage(ctx context.Context, req domain.StageRegistrationRequest) error
	Resend(ctx context.Context, email string) error
	Confirm(ctx context.Context, email, code string) (*Result, error)
	Commit(ctx context.Context, email string) (*Result, error)
}

// ServiceDeps groups the collaborators of the registration service. SMS,
// Signer and Events are optional.
type ServiceDeps struct {
	Codes         codeRegistry
	Registrations registrationStore
	Users         userStore
	Mailer        mailer
	SMS           smsSender
	Signer        jwtSigner
	Events        publisher
	TTL           time.Duration
	Now           func() time.Time
}

type service struct {
	ServiceDeps
}

func NewService(deps ServiceDeps) Service {
	if deps.TTL <= 0 {
		deps.TTL = DefaultTTL
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{ServiceDeps: deps}
}

func (s *service) Stage(ctx context.Context, req domain.StageRegistrationRequest) error {
	req.Email = otp.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return err
	}
	email := req.Email
	delivery := req.Delivery
	if delivery == "" {
		delivery = domain.DeliveryEmail
	}
	if delivery == domain.DeliverySMS && req.Phone == nil {
		return fmt.Errorf("phone is required for sms delivery: %w", domain.ErrValidation)
	}

	_, err := s.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("lookup user: %w", err)
	}

	// A pending payload is never replaced, so nobody can swap in their own
	// password for an address they do not control.
	_, err = s.Registrations.Get(ctx, email)
	switch {
	case err == nil:
		return fmt.Errorf("a registration for this email is already pending: %w", domain.ErrConflict)
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("lookup registration: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := s.Now()
	reg := &domain.Registration{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Delivery:     delivery,
		State:        domain.RegistrationStaged,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.TTL),
	}
	if err := s.Registrations.Put(ctx, reg, s.TTL); err != nil {
		return fmt.Errorf("stage registration: %w", err)
	}

	if err := s.deliver(ctx, reg); err != nil {
		if dErr := s.Registrations.Delete(ctx, email); dErr != nil {
			slog.Warn("failed to roll back staged registration", "email", email, "err", dErr)
		}
		return err
	}
	s.publish(domain.EventRegistrationStaged, email)
	return nil
}

func (s *service) Resend(ctx context.Context, email string) error {
	email = otp.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email is required: %w", domain.ErrValidation)
	}
	reg, err := s.Registrations.Get(ctx, email)
	if err != nil {
		return err
	}
	if reg.State != domain.RegistrationStaged {
		return fmt.Errorf("registration not found: %w", domain.ErrNotFound)
	}
	return s.deliver(ctx, reg)
}

func (s *service) Confirm(ctx context.Context, email, code string) (*Result, error) {
	email = otp.NormalizeEmail(email)
	reg, err := s.loadIn(ctx, email, domain.RegistrationStaged)
	if err != nil {
		return nil, err
	}
	if err := s.Codes.Verify(ctx, email, code); err != nil {
		return nil, err
	}

	now := s.Now()
	reg.State = domain.RegistrationVerified
	reg.UpdatedAt = now
	reg.ExpiresAt = now.Add(s.TTL)
	if err := s.Registrations.Put(ctx, reg, s.TTL); err != nil {
		return nil, fmt.Errorf("mark registration verified: %w", err)
	}

	u, err := s.commit(ctx, reg)
	if errors.Is(err, domain.ErrConflict) {
		u, err = s.committedFrom(ctx, reg, err)
	}
	if err != nil {
		return nil, err
	}
	res := &Result{User: u}
	if s.Signer != nil {
		bearer, err := s.Signer.Sign(u.UserID, u.Role)
		if err != nil {
			slog.Warn("failed to sign bearer for new user", "user_id", u.UserID, "err", err)
		}
		res.Bearer = bearer
	}
	return res, nil
}

// Commit finishes a registration whose code was already verified. It never
// issues a bearer, since the caller has not proven possession of the code.
func (s *service) Commit(ctx context.Context, email string) (*Result, error) {
	email = otp.NormalizeEmail(email)
	reg, err := s.loadIn(ctx, email, domain.RegistrationVerified)
	if err != nil {
		return nil, err
	}
	u, err := s.commit(ctx, reg)
	if err != nil {
		return nil, err
	}
	return &Result{User: u}, nil
}

// loadIn returns the staged payload for email if it is in state want. Any
// other outcome is reported as an invalid code so callers learn nothing.
func (s *service) loadIn(ctx context.Context, email string, want domain.RegistrationState) (*domain.Registration, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required: %w", domain.ErrValidation)
	}
	reg, err := s.Registrations.Get(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidOrExpiredCode
	}
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if reg.State != want {
		slog.Debug("registration in unexpected state", "email", email, "state", reg.State, "want", want)
		return nil, domain.ErrInvalidOrExpiredCode
	}
	return reg, nil
}

// committedFrom resolves a commit conflict. If a concurrent Commit already
// wrote the user from this same payload, that user is returned; otherwise
// the original conflict stands.
func (s *service) committedFrom(ctx context.Context, reg *domain.Registration, conflict error) (*domain.User, error) {
	u, err := s.Users.GetByEmail(ctx, reg.Email)
	if err != nil || u.PasswordHash != reg.PasswordHash {
		return nil, conflict
	}
	return u, nil
}

func (s *service) commit(ctx context.Context, reg *domain.Registration) (*domain.User, error) {
	now := s.Now()
	u := &domain.User{
		UserID:         id.New(),
		Email:          reg.Email,
		Phone:          reg.Phone,
		PasswordHash:   reg.PasswordHash,
		Role:           domain.RoleUser,
		FirstName:      reg.FirstName,
		LastName:       reg.LastName,
		EmailConfirmed: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Users.Put(ctx, u); err != nil {
		return nil, fmt.Errorf("commit user: %w", err)
	}
	if err := s.Registrations.Delete(ctx, reg.Email); err != nil {
		slog.Warn("failed to delete committed registration", "email", reg.Email, "err", err)
	}
	s.publish(domain.EventRegistrationCommitted, reg.Email)
	return u, nil
}

// deliver issues a fresh code and sends it over the registration's channel.
// The code is revoked if it cannot be delivered.
func (s *service) deliver(ctx context.Context, reg *domain.Registration) error {
	code, err := s.Codes.Issue(ctx, reg.Email)
	if err != nil {
		return err
	}
	body := otp.MessageBody(code, s.Codes.Window())

	switch {
	case reg.Delivery == domain.DeliverySMS && s.SMS == nil:
		err = errors.New("sms delivery is not configured")
	case reg.Delivery == domain.DeliverySMS:
		err = s.SMS.SendSMS(ctx, *reg.Phone, body)
	default:
		err = s.Mailer.SendEmail(reg.Email, otp.MessageSubject, body)
	}
	if err != nil {
		slog.Warn("registration code delivery failed", "email", reg.Email, "channel", reg.Delivery, "err", err)
		if rErr := s.Codes.Revoke(ctx, reg.Email); rErr != nil {
			slog.Warn("failed to revoke undelivered otp", "email", reg.Email, "err", rErr)
		}
		return fmt.Errorf("could not deliver verification code: %w", domain.ErrDelivery)
	}
	s.publish(domain.EventOTPIssued, reg.Email)
	return nil
}

func (s *service) publish(typ, email string) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(domain.Event{ID: uuid.NewString(), Type: typ, Email: email, At: s.Now()})
}

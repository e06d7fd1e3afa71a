package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/genclean-otp/internal/domain"
)

const (
	// DefaultWindow is how long an issued code stays valid.
	DefaultWindow = 5 * time.Minute

	codeDigits     = 6
	cooldownPrefix = "cooldown:"
)

var codeSpace = big.NewInt(1_000_000)

// Store persists at most one entry per key. Get returns domain.ErrNotFound for a
// missing key. CompareAndDelete removes the entry only if its code still equals
// code, and reports whether it did.
type Store interface {
	Get(ctx context.Context, key string) (*domain.OTPEntry, error)
	Set(ctx context.Context, key string, e *domain.OTPEntry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	CompareAndDelete(ctx context.Context, key, code string) (bool, error)
}

type Options struct {
	Window   time.Duration
	Cooldown time.Duration
	Now      func() time.Time
	NewCode  func() (string, error)
}

// Registry issues and verifies single-use numeric codes keyed by normalized email.
type Registry struct {
	store    Store
	window   time.Duration
	cooldown time.Duration
	now      func() time.Time
	newCode  func() (string, error)
}

func NewRegistry(store Store, opts Options) *Registry {
	r := &Registry{
		store:    store,
		window:   opts.Window,
		cooldown: opts.Cooldown,
		now:      opts.Now,
		newCode:  opts.NewCode,
	}
	if r.window <= 0 {
		r.window = DefaultWindow
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newCode == nil {
		r.newCode = GenerateCode
	}
	return r
}

// Window returns the validity window applied to new codes.
func (r *Registry) Window() time.Duration { return r.window }

// NormalizeEmail produces the lookup key for an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GenerateCode returns a uniformly random zero-padded 6-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// Issue stores a fresh code for email, replacing any previous one, and returns it.
func (r *Registry) Issue(ctx context.Context, email string) (string, error) {
	key := NormalizeEmail(email)
	if key == "" {
		return "", fmt.Errorf("email is required: %w", domain.ErrValidation)
	}
	if strings.HasPrefix(key, cooldownPrefix) {
		return "", fmt.Errorf("email is malformed: %w", domain.ErrValidation)
	}
	now := r.now()

	if r.cooldown > 0 {
		marker, err := r.store.Get(ctx, cooldownPrefix+key)
		switch {
		case err == nil && !marker.Expired(now):
			return "", fmt.Errorf("a code was sent recently, wait before requesting another: %w", domain.ErrTooManyRequests)
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return "", fmt.Errorf("check cooldown: %w", err)
		}
	}

	code, err := r.newCode()
	if err != nil {
		return "", err
	}
	entry := &domain.OTPEntry{
		Email:     key,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(r.window),
	}
	if err := r.store.Set(ctx, key, entry, r.window); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}

	if r.cooldown > 0 {
		marker := &domain.OTPEntry{Email: key, IssuedAt: now, ExpiresAt: now.Add(r.cooldown)}
		if err := r.store.Set(ctx, cooldownPrefix+key, marker, r.cooldown); err != nil {
			slog.Warn("failed to store otp cooldown marker", "email", key, "err", err)
		}
	}
	return code, nil
}

// Verify consumes the code issued for email. Every lookup or match failure
// returns domain.ErrInvalidOrExpiredCode unwrapped.
func (r *Registry) Verify(ctx context.Context, email, code string) error {
	key := NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if key == "" {
		return fmt.Errorf("email is required: %w", domain.ErrValidation)
	}
	if code == "" {
		return fmt.Errorf("code is required: %w", domain.ErrValidation)
	}

	entry, err := r.store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Debug("otp verify rejected", "email", key, "reason", "no entry")
		return domain.ErrInvalidOrExpiredCode
	}
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}

	if entry.Expired(r.now()) {
		if err := r.store.Delete(ctx, key); err != nil {
			slog.Warn("failed to purge expired otp", "email", key, "err", err)
		}
		slog.Debug("otp verify rejected", "email", key, "reason", "expired")
		return domain.ErrInvalidOrExpiredCode
	}

	if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) != 1 {
		slog.Debug("otp verify rejected", "email", key, "reason", "mismatch")
		return domain.ErrInvalidOrExpiredCode
	}

	consumed, err := r.store.CompareAndDelete(ctx, key, entry.Code)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if !consumed {
		slog.Debug("otp verify rejected", "email", key, "reason", "consumed concurrently")
		return domain.ErrInvalidOrExpiredCode
	}
	return nil
}

// Revoke drops any live code for email together with its cooldown marker.
func (r *Registry) Revoke(ctx context.Context, email string) error {
	key := NormalizeEmail(email)
	if key == "" {
		return fmt.Errorf("email is required: %w", domain.ErrValidation)
	}
	if r.cooldown > 0 {
		if err := r.store.Delete(ctx, cooldownPrefix+key); err != nil {
			slog.Warn("failed to clear otp cooldown marker", "email", key, "err", err)
		}
	}
	return r.store.Delete(ctx, key)
}

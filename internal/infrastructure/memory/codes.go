package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/genclean-otp/internal/domain"
)

type Options struct {
	Now        func() time.Time
	SweepEvery time.Duration // 0 disables the background sweeper
}

// CodeStore keeps OTP entries in process memory. Entries do not survive a restart.
type CodeStore struct {
	m *ttlMap[domain.OTPEntry]
}

func NewCodeStore(opts Options) *CodeStore {
	return &CodeStore{m: newTTLMap[domain.OTPEntry](opts.Now, opts.SweepEvery)}
}

func (s *CodeStore) Get(_ context.Context, key string) (*domain.OTPEntry, error) {
	e, ok := s.m.get(key)
	if !ok {
		return nil, fmt.Errorf("otp entry not found: %w", domain.ErrNotFound)
	}
	return &e, nil
}

func (s *CodeStore) Set(_ context.Context, key string, e *domain.OTPEntry, ttl time.Duration) error {
	s.m.set(key, *e, ttl)
	return nil
}

func (s *CodeStore) Delete(_ context.Context, key string) error {
	s.m.delete(key)
	return nil
}

func (s *CodeStore) CompareAndDelete(_ context.Context, key, code string) (bool, error) {
	return s.m.deleteIf(key, func(e domain.OTPEntry) bool { return e.Code == code }), nil
}

// Len counts stored entries, including expired ones not yet reaped.
func (s *CodeStore) Len() int { return s.m.len() }

// Sweep reaps expired entries immediately.
func (s *CodeStore) Sweep() { s.m.sweep() }

// Close stops the background sweeper.
func (s *CodeStore) Close() error {
	s.m.close()
	return nil
}

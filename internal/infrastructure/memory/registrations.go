package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/genclean-otp/internal/domain"
)

// RegistrationStore keeps staged sign-ups in process memory.
type RegistrationStore struct {
	m *ttlMap[domain.Registration]
}

func NewRegistrationStore(opts Options) *RegistrationStore {
	return &RegistrationStore{m: newTTLMap[domain.Registration](opts.Now, opts.SweepEvery)}
}

func (s *RegistrationStore) Get(_ context.Context, email string) (*domain.Registration, error) {
	r, ok := s.m.get(email)
	if !ok {
		return nil, fmt.Errorf("registration not found: %w", domain.ErrNotFound)
	}
	return &r, nil
}

func (s *RegistrationStore) Put(_ context.Context, r *domain.Registration, ttl time.Duration) error {
	s.m.set(r.Email, *r, ttl)
	return nil
}

func (s *RegistrationStore) Delete(_ context.Context, email string) error {
	s.m.delete(email)
	return nil
}

func (s *RegistrationStore) Close() error {
	s.m.close()
	return nil
}

package redisinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/genclean-otp/internal/domain"
	"github.com/redis/go-redis/v9"
)

const registrationNamespace = "registration"

// RegistrationStore keeps staged sign-ups next to their codes so a cleared
// client cache cannot lose the payload between steps.
type RegistrationStore struct {
	client redis.UniversalClient
}

func NewRegistrationStore(client redis.UniversalClient) *RegistrationStore {
	return &RegistrationStore{client: client}
}

func registrationKey(email string) string { return registrationNamespace + ":" + email }

func (s *RegistrationStore) Get(ctx context.Context, email string) (*domain.Registration, error) {
	b, err := s.client.Get(ctx, registrationKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("registration not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var r domain.Registration
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode registration: %w", err)
	}
	return &r, nil
}

func (s *RegistrationStore) Put(ctx context.Context, r *domain.Registration, ttl time.Duration) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}
	return s.client.Set(ctx, registrationKey(r.Email), b, ttl).Err()
}

func (s *RegistrationStore) Delete(ctx context.Context, email string) error {
	return s.client.Del(ctx, registrationKey(email)).Err()
}

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

const codeNamespace = "otp"

// compareAndDelete deletes KEYS[1] only while its JSON "code" field equals ARGV[1].
var compareAndDelete = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
	return 0
end
local ok, entry = pcall(cjson.decode, v)
if not ok or entry.code ~= ARGV[1] then
	return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

// CodeStore keeps OTP entries as JSON strings with native key expiry.
type CodeStore struct {
	client redis.UniversalClient
}

func NewCodeStore(client redis.UniversalClient) *CodeStore {
	return &CodeStore{client: client}
}

func codeKey(key string) string { return codeNamespace + ":" + key }

func (s *CodeStore) Get(ctx context.Context, key string) (*domain.OTPEntry, error) {
	b, err := s.client.Get(ctx, codeKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("otp entry not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var e domain.OTPEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode otp entry: %w", err)
	}
	return &e, nil
}

func (s *CodeStore) Set(ctx context.Context, key string, e *domain.OTPEntry, ttl time.Duration) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode otp entry: %w", err)
	}
	return s.client.Set(ctx, codeKey(key), b, ttl).Err()
}

func (s *CodeStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, codeKey(key)).Err()
}

func (s *CodeStore) CompareAndDelete(ctx context.Context, key, code string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.client, []string{codeKey(key)}, code).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

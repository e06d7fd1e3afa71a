package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/genclean-otp/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()
	require.NoError(t, s.Put(ctx, &domain.User{UserID: "u1", Email: "a@b.com"}))

	u, err := s.GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)

	_, err = s.GetByEmail(ctx, "x@b.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUserStore_DuplicateEmailConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()
	require.NoError(t, s.Put(ctx, &domain.User{UserID: "u1", Email: "a@b.com"}))
	err := s.Put(ctx, &domain.User{UserID: "u2", Email: "a@b.com"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestRegistrationStore_ExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := NewRegistrationStore(Options{Now: clk.Now})
	require.NoError(t, s.Put(ctx, &domain.Registration{Email: "a@b.com", State: domain.RegistrationStaged}, 30*time.Minute))

	r, err := s.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationStaged, r.State)

	clk.Advance(31 * time.Minute)
	_, err = s.Get(ctx, "a@b.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

package otp

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/genclean-otp/internal/domain"
	"github.com/genclean-otp/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// sequence hands out the given codes in order.
func sequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
}

func newTestRegistry(opts Options) (*Registry, *memory.CodeStore, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewCodeStore(memory.Options{Now: clk.Now})
	opts.Now = clk.Now
	return NewRegistry(store, opts), store, clk
}

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func TestGenerateCode_Format(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, sixDigits, c)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM \t"))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestIssueVerify_SingleUse(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(Options{})

	code, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Regexp(t, sixDigits, code)

	require.NoError(t, r.Verify(ctx, "a@b.com", code))
	err = r.Verify(ctx, "a@b.com", code)
	assert.Equal(t, domain.ErrInvalidOrExpiredCode, err)
}

func TestVerify_NeverIssued(t *testing.T) {
	r, _, _ := newTestRegistry(Options{})
	err := r.Verify(context.Background(), "nobody@b.com", "123456")
	assert.Equal(t, domain.ErrInvalidOrExpiredCode, err)
}

func TestIssue_ReissueInvalidatesPrevious(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRegistry(Options{NewCode: sequence("111111", "222222")})

	c1, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)
	c2, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotEqual(t, c1, c2)
	assert.Equal(t, 1, store.Len())

	assert.Equal(t, domain.ErrInvalidOrExpiredCode, r.Verify(ctx, "a@b.com", c1))
	assert.NoError(t, r.Verify(ctx, "a@b.com", c2))
}

func TestVerify_EmailNormalization(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(Options{})

	code, err := r.Issue(ctx, " User@Example.com ")
	require.NoError(t, err)
	assert.NoError(t, r.Verify(ctx, "user@example.com", code))
}

func TestVerify_CodeIsTrimmed(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(Options{NewCode: sequence("123456")})

	_, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)
	assert.NoError(t, r.Verify(ctx, "a@b.com", " 123456 "))
}

func TestVerify_ExpiredIsRejectedAndPurged(t *testing.T) {
	ctx := context.Background()
	r, store, clk := newTestRegistry(Options{Window: 5 * time.Minute, NewCode: sequence("123456", "654321")})

	code, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)

	clk.Advance(5*time.Minute + time.Millisecond)
	assert.Equal(t, domain.ErrInvalidOrExpiredCode, r.Verify(ctx, "a@b.com", code))
	assert.Equal(t, 0, store.Len())

	fresh, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)
	assert.NoError(t, r.Verify(ctx, "a@b.com", fresh))
}

func TestVerify_ExpiryCheckedByRegistryEvenIfStoreKeepsEntry(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	// The store runs on its own real clock, so only the registry clock sees the expiry.
	store := memory.NewCodeStore(memory.Options{})
	r := NewRegistry(store, Options{Window: time.Minute, Now: clk.Now, NewCode: sequence("123456")})

	_, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	assert.Equal(t, domain.ErrInvalidOrExpiredCode, r.Verify(ctx, "a@b.com", "123456"))
	assert.Equal(t, 0, store.Len())
}

func TestVerify_WrongCodeDoesNotMutateState(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(Options{NewCode: sequence("123456")})

	code, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)

	assert.Equal(t, domain.ErrInvalidOrExpiredCode, r.Verify(ctx, "a@b.com", "000000"))
	assert.NoError(t, r.Verify(ctx, "a@b.com", code))
}

func TestMissingFields_ValidationError(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(Options{})

	_, err := r.Issue(ctx, "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = r.Issue(ctx, "   ")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	err = r.Verify(ctx, "a@b.com", "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	err = r.Verify(ctx, "", "123456")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestIssue_RejectsCooldownKeyspace(t *testing.T) {
	r, _, _ := newTestRegistry(Options{})
	_, err := r.Issue(context.Background(), "cooldown:a@b.com")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestIssue_CooldownDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(Options{})
	for i := 0; i < 5; i++ {
		_, err := r.Issue(ctx, "a@b.com")
		require.NoError(t, err)
	}
}

func TestIssue_Cooldown(t *testing.T) {
	ctx := context.Background()
	r, _, clk := newTestRegistry(Options{Cooldown: 30 * time.Second})

	_, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)

	_, err = r.Issue(ctx, "A@B.com")
	assert.True(t, errors.Is(err, domain.ErrTooManyRequests))

	_, err = r.Issue(ctx, "other@b.com")
	assert.NoError(t, err)

	clk.Advance(31 * time.Second)
	_, err = r.Issue(ctx, "a@b.com")
	assert.NoError(t, err)
}

func TestRevoke_ClearsCodeAndCooldown(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(Options{Cooldown: time.Minute})

	code, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)
	require.NoError(t, r.Revoke(ctx, "A@b.com"))

	assert.Equal(t, domain.ErrInvalidOrExpiredCode, r.Verify(ctx, "a@b.com", code))
	_, err = r.Issue(ctx, "a@b.com")
	assert.NoError(t, err)
}

func TestVerify_ConcurrentAttemptsSucceedOnce(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(Options{})

	code, err := r.Issue(ctx, "a@b.com")
	require.NoError(t, err)

	var ok, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := r.Verify(ctx, "a@b.com", code); err {
			case nil:
				ok.Add(1)
			case domain.ErrInvalidOrExpiredCode:
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(31), rejected.Load())
}

// --- store failure paths ---

type mockStore struct{ mock.Mock }

func (m *mockStore) Get(ctx context.Context, key string) (*domain.OTPEntry, error) {
	args := m.Called(ctx, key)
	if e, _ := args.Get(0).(*domain.OTPEntry); e != nil {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) Set(ctx context.Context, key string, e *domain.OTPEntry, ttl time.Duration) error {
	return m.Called(ctx, key, e, ttl).Error(0)
}
func (m *mockStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}
func (m *mockStore) CompareAndDelete(ctx context.Context, key, code string) (bool, error) {
	args := m.Called(ctx, key, code)
	return args.Bool(0), args.Error(1)
}

func TestVerify_LostRaceReportsInvalid(t *testing.T) {
	st := &mockStore{}
	st.On("Get", mock.Anything, "a@b.com").Return(&domain.OTPEntry{
		Code: "123456", ExpiresAt: time.Now().Add(time.Minute),
	}, nil)
	st.On("CompareAndDelete", mock.Anything, "a@b.com", "123456").Return(false, nil)

	r := NewRegistry(st, Options{})
	assert.Equal(t, domain.ErrInvalidOrExpiredCode, r.Verify(context.Background(), "a@b.com", "123456"))
	st.AssertExpectations(t)
}

func TestVerify_StoreErrorIsNotMaskedAsInvalidCode(t *testing.T) {
	boom := errors.New("connection refused")
	st := &mockStore{}
	st.On("Get", mock.Anything, "a@b.com").Return(nil, boom)

	r := NewRegistry(st, Options{})
	err := r.Verify(context.Background(), "a@b.com", "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, domain.ErrInvalidOrExpiredCode))
}

func TestIssue_StoreErrorPropagates(t *testing.T) {
	st := &mockStore{}
	st.On("Set", mock.Anything, "a@b.com", mock.AnythingOfType("*domain.OTPEntry"), DefaultWindow).Return(errors.New("down"))

	r := NewRegistry(st, Options{})
	_, err := r.Issue(context.Background(), "a@b.com")
	assert.ErrorContains(t, err, "store code")
}

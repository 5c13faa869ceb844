package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_BurstThenDeny(t *testing.T) {
	l := NewMemoryLimiter(3)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return at }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := l.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)

	// other clients have their own bucket
	ok, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, ok)

	// one token refills every 20s
	at = at.Add(21 * time.Second)
	ok, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
}

func TestMemoryLimiter_ExpiresIdleKeys(t *testing.T) {
	l := NewMemoryLimiter(1)
	at := time.Now()
	l.now = func() time.Time { return at }
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, " ")
	assert.Equal(t, 2, l.Len())

	at = at.Add(11 * time.Minute)
	_, _ = l.Allow(ctx, "b")
	assert.Equal(t, 1, l.Len())
}

// fakeCounter mimics INCR/TTL/EXPIRE against a settable clock.
type fakeCounter struct {
	now     time.Time
	counts  map[string]int64
	expires map[string]time.Time
	armed   int
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{now: time.Unix(1_700_000_000, 0), counts: map[string]int64{}, expires: map[string]time.Time{}}
}

func (f *fakeCounter) Increment(_ context.Context, key string) (int64, time.Duration, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	if exp, ok := f.expires[key]; ok && !f.now.Before(exp) {
		delete(f.counts, key)
		delete(f.expires, key)
	}
	f.counts[key]++
	exp, ok := f.expires[key]
	if !ok {
		return f.counts[key], -1, nil
	}
	return f.counts[key], exp.Sub(f.now), nil
}

func (f *fakeCounter) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.armed++
	f.expires[key] = f.now.Add(ttl)
	return nil
}

func TestRedisLimiter(t *testing.T) {
	fc := newFakeCounter()
	l := newRedisLimiter(fc, 2)
	ctx := context.Background()

	for _, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
	assert.Equal(t, int64(3), fc.counts["ratelimit:accounts:ip"])
	assert.Equal(t, fc.now.Add(time.Minute), fc.expires["ratelimit:accounts:ip"])
	assert.Equal(t, 1, fc.armed)

	fc.err = errors.New("conn refused")
	_, err := l.Allow(ctx, "ip")
	assert.Error(t, err)
}

func TestRedisLimiter_WindowIsNotExtendedByRetries(t *testing.T) {
	fc := newFakeCounter()
	l := newRedisLimiter(fc, 1)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok)

	for i := 0; i < 5; i++ {
		fc.now = fc.now.Add(10 * time.Second)
		ok, err = l.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, fc.armed)

	fc.now = fc.now.Add(10 * time.Second)
	ok, err = l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok, "a new window opens one minute after the first request")
}

func TestNewRedisLimiter_BadDSN(t *testing.T) {
	_, _, err := NewRedisLimiter(context.Background(), "not-a-url", 10)
	assert.ErrorContains(t, err, "redis dsn")
}

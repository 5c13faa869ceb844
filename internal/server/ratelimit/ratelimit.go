// Package ratelimit throttles unauthenticated account endpoints per client.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key fits the budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter keeps a token bucket per key in process memory. Buckets idle
// for longer than ttl are dropped.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	r        rate.Limit
	b        int
	ttl      time.Duration
	now      func() time.Time
}

type clientLimiter struct {
	lim     *rate.Limiter
	lastHit time.Time
}

// NewMemoryLimiter allows perMinute requests per key and minute, with the
// whole minute's budget available as a burst.
func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: make(map[string]*clientLimiter),
		r:        rate.Limit(float64(perMinute) / 60),
		b:        perMinute,
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

func (s *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// lazy cleanup
	for k, v := range s.limiters {
		if now.Sub(v.lastHit) > s.ttl {
			delete(s.limiters, k)
		}
	}

	cl, ok := s.limiters[key]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(s.r, s.b)}
		s.limiters[key] = cl
	}

	cl.lastHit = now
	return cl.lim.AllowN(now, 1), nil
}

// Len reports the number of tracked keys.
func (s *MemoryLimiter) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

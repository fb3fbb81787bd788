package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/config"
)

// limiterIdleTTL is how long an address keeps its bucket after its last attempt.
const limiterIdleTTL = 10 * time.Minute

// loginLimiter holds one token bucket per client address.
type loginLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*limiterEntry
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiter(cfg config.RateLimitConfig) *loginLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &loginLimiter{
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		burst:   burst,
		buckets: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// allow reports whether addr may attempt a login now.
func (l *loginLimiter) allow(addr string) bool {
	now := l.now()

	l.mu.Lock()
	e, ok := l.buckets[addr]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[addr] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for longer than limiterIdleTTL.
func (l *loginLimiter) sweep() {
	cutoff := l.now().Add(-limiterIdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, e := range l.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(l.buckets, addr)
		}
	}
}

func (l *loginLimiter) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

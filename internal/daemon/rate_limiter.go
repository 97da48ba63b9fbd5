package daemon

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/leonletto/carlot/internal/apperr"
)

// Default send limits.
const (
	DefaultMessagesPerSecond = 1.0
	DefaultSendBurst         = 5
)

// SendLimitConfig configures the per-user send limiter.
type SendLimitConfig struct {
	Enabled           bool
	MessagesPerSecond float64
	Burst             int
}

// SendLimiter throttles message.send per authenticated user with a token
// bucket per user.
type SendLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	config   SendLimitConfig
	now      func() time.Time
}

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewSendLimiter creates a limiter. Zero rate or burst take the defaults.
func NewSendLimiter(cfg SendLimitConfig) *SendLimiter {
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultSendBurst
	}
	return &SendLimiter{
		limiters: make(map[string]*userLimiter),
		config:   cfg,
		now:      time.Now,
	}
}

// SetClock replaces the limiter's time source. For tests.
func (r *SendLimiter) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Allow consumes one token for userID. It returns a rate_limited error when
// the bucket is empty. A nil or disabled limiter allows everything.
func (r *SendLimiter) Allow(userID string) error {
	if r == nil || !r.config.Enabled {
		return nil
	}

	r.mu.Lock()
	now := r.now()
	ul, ok := r.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rate.Limit(r.config.MessagesPerSecond), r.config.Burst)}
		r.limiters[userID] = ul
	}
	ul.lastAccess = now
	allowed := ul.limiter.AllowN(now, 1)
	r.mu.Unlock()

	if !allowed {
		return apperr.New(apperr.KindRateLimited, "send rate exceeded (%g messages/s, burst %d)",
			r.config.MessagesPerSecond, r.config.Burst)
	}
	return nil
}

// CleanupStale drops buckets for users idle longer than maxAge and returns
// how many were removed.
func (r *SendLimiter) CleanupStale(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	removed := 0
	for id, ul := range r.limiters {
		if ul.lastAccess.Before(cutoff) {
			delete(r.limiters, id)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of users with a live bucket.
func (r *SendLimiter) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// RunCleanup calls CleanupStale every interval until ctx is done.
func (r *SendLimiter) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CleanupStale(maxAge)
		}
	}
}

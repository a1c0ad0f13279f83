// Package guard throttles credential checks on the verifier: a per-key
// sliding window rate limit and a lockout after repeated failed attempts.
package guard

import (
	"sync"
	"time"

	"github.com/patternlock/patternlock/internal/domain"
)

// GuardConfig holds rate and lockout limits. Zero disables a limit.
type GuardConfig struct {
	RateLimitPerMinute int
	MaxFailedAttempts  int
	LockoutSec         int
}

// Guard coordinates the rate and lockout checks.
type Guard struct {
	Config GuardConfig
	// Now returns the current time. Tests replace it.
	Now func() time.Time

	mu         sync.Mutex
	rateCounts map[string]*rateBucket
	failures   map[string]*failureRecord
}

type rateBucket struct {
	count       int
	windowStart int64
}

type failureRecord struct {
	consecutive int
	lockedUntil int64
}

// NewGuard creates a Guard with the given limits.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{
		Config:     cfg,
		Now:        time.Now,
		rateCounts: make(map[string]*rateBucket),
		failures:   make(map[string]*failureRecord),
	}
}

// CheckAll runs the lockout check and then the rate limit for a username.
// It short-circuits on the first error.
func (g *Guard) CheckAll(username string) error {
	if err := g.CheckLockout(username); err != nil {
		return err
	}
	return g.CheckRateLimit(username)
}

// CheckRateLimit enforces a per-key sliding window rate limit.
// The window is 60 seconds. If the count exceeds the configured limit,
// ErrRateLimitExceeded is returned.
func (g *Guard) CheckRateLimit(key string) error {
	if g.Config.RateLimitPerMinute <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.Now().Unix()
	bucket, ok := g.rateCounts[key]
	if !ok {
		g.rateCounts[key] = &rateBucket{count: 1, windowStart: now}
		return nil
	}

	if now-bucket.windowStart > 60 {
		bucket.count = 1
		bucket.windowStart = now
		return nil
	}

	if bucket.count >= g.Config.RateLimitPerMinute {
		return domain.ErrRateLimitExceeded
	}

	bucket.count++
	return nil
}

// CheckLockout returns ErrAccountLocked while username is locked out.
func (g *Guard) CheckLockout(username string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.failures[username]
	if !ok || rec.lockedUntil == 0 {
		return nil
	}
	if g.Now().Unix() < rec.lockedUntil {
		return domain.ErrAccountLocked
	}
	// Lockout expired: start counting afresh.
	delete(g.failures, username)
	return nil
}

// RecordFailure counts a failed attempt and reports whether it locked the
// account.
func (g *Guard) RecordFailure(username string) bool {
	if g.Config.MaxFailedAttempts <= 0 {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.failures[username]
	if !ok {
		rec = &failureRecord{}
		g.failures[username] = rec
	}
	rec.consecutive++
	if rec.consecutive < g.Config.MaxFailedAttempts {
		return false
	}
	rec.lockedUntil = g.Now().Add(time.Duration(g.Config.LockoutSec) * time.Second).Unix()
	return true
}

// RecordSuccess clears the failure count of username.
func (g *Guard) RecordSuccess(username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.failures, username)
}

// Failures returns the current consecutive failure count of username.
func (g *Guard) Failures(username string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.failures[username]; ok {
		return rec.consecutive
	}
	return 0
}

package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const localIdleTTL = 10 * time.Minute

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is an in-process token bucket per key, used when no Redis is
// configured. Quotas are per replica.
type LocalLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	entries map[string]*localEntry
	now     func() time.Time
}

// NewLocalLimiter allows limit requests per window per key, refilled smoothly.
func NewLocalLimiter(limit int, window time.Duration) (*LocalLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &LocalLimiter{
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		entries: make(map[string]*localEntry),
		now:     time.Now,
	}, nil
}

// Allow consumes one token for key.
func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictIdle(now)
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// evictIdle drops buckets not touched for localIdleTTL; a bucket idle that
// long has refilled anyway.
func (l *LocalLimiter) evictIdle(now time.Time) {
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) > localIdleTTL {
			delete(l.entries, key)
		}
	}
}

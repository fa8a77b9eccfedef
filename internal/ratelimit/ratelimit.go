// Package ratelimit binds golang.org/x/time/rate token buckets to opaque
// string keys (an IP, a session token), used to throttle login attempts and
// score submissions.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key. Buckets idle for longer than
// the prune window are dropped by Prune so the map doesn't grow unbounded.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*entry

	limit rate.Limit
	burst int
}

type entry struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// New constructs a Limiter allowing perSecond events with the given burst.
func New(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*entry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

// Allow reports whether one more event is permitted for key right now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	e, ok := l.buckets[key]
	if !ok {
		e = &entry{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()
	return e.bucket.Allow()
}

// Prune drops buckets that haven't been touched within window.
func (l *Limiter) Prune(window time.Duration) int {
	cutoff := time.Now().Add(-window)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, e := range l.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

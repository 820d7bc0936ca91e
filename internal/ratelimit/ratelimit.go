// Package ratelimit throttles outbound events with a sliding window per key.
// The chat controller uses it to limit typing:true emits per chat.
package ratelimit

import (
	"sync"
	"time"

	"github.com/real-rm/chatsocket/internal/constants"
	"github.com/real-rm/chatsocket/internal/util"
	"github.com/real-rm/golog"
)

// Limiter allows at most limit events per key within window
type Limiter struct {
	events map[string][]time.Time // key -> timestamps inside the window
	window time.Duration
	limit  int
	now    func() time.Time
	mu     sync.Mutex

	// Cleanup goroutine management
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	cleanupWg       sync.WaitGroup
}

// NewLimiter creates a sliding-window limiter
// window: time window for rate limiting (e.g., 3 seconds)
// limit: maximum number of events allowed per key in the window
func NewLimiter(window time.Duration, limit int) *Limiter {
	return &Limiter{
		events:          make(map[string][]time.Time),
		window:          window,
		limit:           limit,
		now:             time.Now,
		cleanupInterval: constants.DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
}

// SetClock replaces the time source. Tests only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow records an event for key and reports whether it is within the limit.
// A disabled limiter (window or limit <= 0) allows everything.
func (l *Limiter) Allow(key string) bool {
	// No else needed: early return pattern (limiter disabled)
	if l.window <= 0 || l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.recentLocked(key, now)

	// No else needed: early return pattern (over the limit)
	if len(recent) >= l.limit {
		l.events[key] = recent
		return false
	}

	l.events[key] = append(recent, now)
	return true
}

// RetryAfter returns how long until key may send again
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.recentLocked(key, now)
	// No else needed: early return pattern (under the limit)
	if len(recent) < l.limit || len(recent) == 0 {
		return 0
	}

	// recent is ordered oldest first
	retryAfter := recent[0].Add(l.window).Sub(now)
	if retryAfter < 0 {
		return 0
	}
	return retryAfter
}

// Reset clears the history for key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, key)
}

func (l *Limiter) recentLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	events := l.events[key]

	var recent []time.Time
	for _, t := range events {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

// Cleanup removes expired events and returns how many were dropped
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, events := range l.events {
		recent := l.recentLocked(key, now)
		removed += len(events) - len(recent)
		if len(recent) == 0 {
			delete(l.events, key)
		} else {
			l.events[key] = recent
		}
	}
	return removed
}

// Keys returns the number of keys with history
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// StartCleanup starts a background goroutine that periodically cleans up expired events
func (l *Limiter) StartCleanup(logger *golog.Logger) {
	l.cleanupWg.Add(1)
	util.SafeGo(logger, "ratelimit_cleanup", func() {
		defer l.cleanupWg.Done()
		ticker := time.NewTicker(l.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if removed := l.Cleanup(); removed > 0 {
					logger.Debug("Typing limiter cleanup", "removed", removed)
				}
			case <-l.stopCleanup:
				return
			}
		}
	})
}

// StopCleanup stops the cleanup goroutine and waits for it to finish.
// Safe to call more than once.
func (l *Limiter) StopCleanup() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
	l.cleanupWg.Wait()
}

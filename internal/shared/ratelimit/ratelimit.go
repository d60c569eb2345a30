// Package ratelimit implements fixed-window request counters keyed by
// "class:subject" strings.
package ratelimit

import (
	"sync"
	"time"
)

// Class is a named operation class with its own limit and window.
type Class struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call. Exceeding a window is data,
// not an error: callers report ResetAt as the retry-after hint.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long until the window resets, floored at zero.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.Before(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter holds fixed-window counters. A new window starts the first time
// a key is touched after the prior window's reset time has elapsed.
type Limiter struct {
	mu      sync.Mutex
	classes map[string]Class
	windows map[string]*window
	now     func() time.Time
}

// New creates a limiter with the given classes.
func New(classes ...Class) *Limiter {
	l := &Limiter{
		classes: make(map[string]Class, len(classes)),
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for _, c := range classes {
		l.classes[c.Name] = c
	}
	return l
}

// Allow consumes one slot for class:subject. Unknown classes are allowed;
// gating an operation requires registering its class up front.
func (l *Limiter) Allow(class, subject string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.classes[class]
	if !ok {
		return Decision{Allowed: true, Remaining: -1}
	}

	now := l.now()
	key := class + ":" + subject
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(c.Window)}
		l.windows[key] = w
		l.pruneLocked(now)
	}

	if w.count >= c.Limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}
	w.count++
	return Decision{Allowed: true, Remaining: c.Limit - w.count, ResetAt: w.resetAt}
}

// pruneLocked drops expired windows so idle keys don't accumulate.
// Called with the mutex held, only when a new window is created.
func (l *Limiter) pruneLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

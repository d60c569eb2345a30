// Package keylock provides a keyed single-flight lock: at most one holder
// per key, with concurrent acquirers short-circuited rather than queued.
package keylock

import (
	"context"
	"sync"
)

// Locker is the injected lock abstraction. Acquire returns ok=false when
// the key is already held; the returned release function is non-nil only
// when ok is true and must be called on every exit path.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// MemoryLocker is an in-process Locker backed by a mutex-guarded set.
// Suitable for single-instance deployments; use RedisLocker when the
// single-flight invariant must hold across instances.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker creates a new in-process keyed lock.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// Acquire takes the key if free. Never blocks.
func (l *MemoryLocker) Acquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, inFlight := l.held[key]; inFlight {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, true, nil
}

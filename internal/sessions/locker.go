package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a per-call lock cannot be acquired within
// the configured wait. The turn degrades to a generic reply instead of
// blocking behind a stuck duplicate webhook.
var ErrLockTimeout = errors.New("session lock acquisition timed out")

// Locker serializes turns per (tenant, call). Different calls never contend.
type Locker struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocker creates a locker with the given acquire timeout.
func NewLocker(timeout time.Duration) *Locker {
	return &Locker{timeout: timeout, locks: make(map[string]chan struct{})}
}

// Lock acquires the per-call lock, waiting up to the configured timeout.
func (l *Locker) Lock(ctx context.Context, tenant, call string) error {
	k := key(tenant, call)
	deadline := time.Now().Add(l.timeout)
	for {
		l.mu.Lock()
		held, ok := l.locks[k]
		if !ok {
			l.locks[k] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrLockTimeout
		}
		select {
		case <-held:
			// Holder released; race for it again.
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(remaining):
			return ErrLockTimeout
		}
	}
}

// Unlock releases the per-call lock. Unlocking an unheld key is a no-op.
func (l *Locker) Unlock(tenant, call string) {
	k := key(tenant, call)
	l.mu.Lock()
	held, ok := l.locks[k]
	if ok {
		delete(l.locks, k)
	}
	l.mu.Unlock()
	if ok {
		close(held)
	}
}

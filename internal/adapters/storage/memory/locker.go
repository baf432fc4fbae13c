package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

// Locker is a process-local ports.Locker.
type Locker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

var _ ports.Locker = (*Locker)(nil)

func NewLocker() *Locker {
	return &Locker{held: make(map[string]time.Time), clock: time.Now}
}

func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, fmt.Errorf("%w: %s", domain.ErrLockNotAcquired, key)
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key] == expiry {
			delete(l.held, key)
		}
		return nil
	}, nil
}

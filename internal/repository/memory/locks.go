package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
)

// keyedLocks is a set of per-key mutexes that can be acquired with a timeout.
type keyedLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{slots: make(map[string]chan struct{})}
}

func (k *keyedLocks) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

// acquire blocks until key is free, timeout elapses or ctx ends. Timeouts
// surface as ErrCodeConflict so callers can retry.
func (k *keyedLocks) acquire(ctx context.Context, key string, timeout time.Duration) error {
	ch := k.slot(key)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ch <- struct{}{}:
		return nil
	case <-expired:
		return errors.New(errors.ErrCodeConflict, "resource is busy, retry the operation").
			WithDetail("retryable", true).
			WithDetail("lock", key)
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCodeConflict, "timed out waiting for resource").
			WithDetail("retryable", true).
			WithDetail("lock", key)
	}
}

func (k *keyedLocks) release(key string) {
	<-k.slot(key)
}

// Package lock provides lease-based mutual exclusion keyed by string. The SQL
// implementation is shared by every process pointed at the same database.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotAcquired reports that the wait bound elapsed before the lock was free.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrLeaseLost reports a release after the lease expired and the key was
	// taken over or reaped.
	ErrLeaseLost = errors.New("lock lease lost")
)

const (
	DefaultWaitTimeout  = 5 * time.Second
	DefaultLeaseTimeout = 30 * time.Second
)

// Lock is a held lease on a key.
type Lock interface {
	Key() string
	Owner() string
	ExpiresAt() time.Time
	Release(ctx context.Context) error
}

// Locker acquires leases. Acquire blocks up to wait and returns ErrNotAcquired
// when the key is still held; the returned lease expires after lease.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (Lock, error)
}

// WithLock runs fn while holding key and releases the lease on every exit
// path, including a panic in fn. fn receives a context bounded by the lease.
// Acquisition failures are returned unwrapped so callers can test for
// ErrNotAcquired.
func WithLock(ctx context.Context, locker Locker, key string, wait, lease time.Duration, fn func(ctx context.Context) error) (err error) {
	if locker == nil {
		return errors.New("locker not configured")
	}
	if fn == nil {
		return nil
	}
	held, err := locker.Acquire(ctx, key, wait, lease)
	if err != nil {
		return err
	}
	defer func() {
		// release must run even when the caller context is done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if relErr := held.Release(releaseCtx); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()

	leaseCtx, cancel := context.WithDeadline(ctx, held.ExpiresAt())
	defer cancel()
	return fn(leaseCtx)
}

const releaseTimeout = 5 * time.Second

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}

func normalizeBounds(wait, lease time.Duration) (time.Duration, time.Duration) {
	if wait < 0 {
		wait = 0
	}
	if lease <= 0 {
		lease = DefaultLeaseTimeout
	}
	return wait, lease
}

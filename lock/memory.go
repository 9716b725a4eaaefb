package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryLocker is a Locker scoped to one process. Waiters are woken when a
// lease is released and re-check expired leases on their own.
type InMemoryLocker struct {
	mu      sync.Mutex
	leases  map[string]*memoryLease
	changed chan struct{}
	now     func() time.Time
}

type memoryLease struct {
	owner string
	until time.Time
}

// NewInMemoryLocker constructs an empty in-memory locker.
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{
		leases:  make(map[string]*memoryLease),
		changed: make(chan struct{}),
		now:     time.Now,
	}
}

func (l *InMemoryLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (Lock, error) {
	if l == nil {
		return nil, errors.New("in-memory locker not configured")
	}
	key = normalizeKey(key)
	if key == "" {
		return nil, errors.New("lock key required")
	}
	wait, lease = normalizeBounds(wait, lease)
	owner := uuid.NewString()
	deadline := l.now().Add(wait)

	for {
		l.mu.Lock()
		now := l.now()
		current, held := l.leases[key]
		if !held || !current.until.After(now) {
			until := now.Add(lease)
			l.leases[key] = &memoryLease{owner: owner, until: until}
			l.mu.Unlock()
			return &memoryLock{locker: l, key: key, owner: owner, until: until}, nil
		}
		changed := l.changed
		expiresIn := current.until.Sub(now)
		l.mu.Unlock()

		remaining := deadline.Sub(now)
		if remaining <= 0 {
			return nil, ErrNotAcquired
		}
		if expiresIn < remaining {
			remaining = expiresIn
		}

		timer := time.NewTimer(remaining)
		select {
		case <-changed:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		timer.Stop()
	}
}

// Held reports whether key currently has an unexpired lease.
func (l *InMemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.leases[normalizeKey(key)]
	return ok && current.until.After(l.now())
}

func (l *InMemoryLocker) release(key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.leases[key]
	if !ok || current.owner != owner {
		return ErrLeaseLost
	}
	delete(l.leases, key)
	close(l.changed)
	l.changed = make(chan struct{})
	return nil
}

type memoryLock struct {
	locker *InMemoryLocker
	key    string
	owner  string
	until  time.Time
	once   sync.Once
	err    error
}

func (m *memoryLock) Key() string          { return m.key }
func (m *memoryLock) Owner() string        { return m.owner }
func (m *memoryLock) ExpiresAt() time.Time { return m.until }

func (m *memoryLock) Release(_ context.Context) error {
	m.once.Do(func() {
		m.err = m.locker.release(m.key, m.owner)
	})
	return m.err
}

package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLockerExcludesConcurrentHolders(t *testing.T) {
	locker := NewInMemoryLocker()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(context.Background(), locker, "user-1", time.Second, time.Second, func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.False(t, locker.Held("user-1"))
}

func TestInMemoryLockerWaitTimeout(t *testing.T) {
	locker := NewInMemoryLocker()
	held, err := locker.Acquire(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)
	defer held.Release(context.Background())

	start := time.Now()
	_, err = locker.Acquire(context.Background(), "k", 30*time.Millisecond, time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInMemoryLockerLeaseExpiry(t *testing.T) {
	locker := NewInMemoryLocker()
	first, err := locker.Acquire(context.Background(), "k", 0, 20*time.Millisecond)
	require.NoError(t, err)

	second, err := locker.Acquire(context.Background(), "k", time.Second, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, first.Owner(), second.Owner())

	assert.ErrorIs(t, first.Release(context.Background()), ErrLeaseLost)
	assert.True(t, locker.Held("k"))
	require.NoError(t, second.Release(context.Background()))
	assert.False(t, locker.Held("k"))
}

func TestInMemoryLockerWakesWaiterOnRelease(t *testing.T) {
	locker := NewInMemoryLocker()
	held, err := locker.Acquire(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = held.Release(context.Background())
	}()

	start := time.Now()
	next, err := locker.Acquire(context.Background(), "k", 5*time.Second, time.Minute)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NoError(t, next.Release(context.Background()))
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker := NewInMemoryLocker()
	boom := errors.New("boom")

	err := WithLock(context.Background(), locker, "k", 0, time.Minute, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, locker.Held("k"))
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	locker := NewInMemoryLocker()

	assert.Panics(t, func() {
		_ = WithLock(context.Background(), locker, "k", 0, time.Minute, func(context.Context) error {
			panic("critical section panic")
		})
	})
	assert.False(t, locker.Held("k"))
}

func TestWithLockBoundsContextByLease(t *testing.T) {
	locker := NewInMemoryLocker()

	err := WithLock(context.Background(), locker, "k", 0, 20*time.Millisecond, func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(20*time.Millisecond), deadline, 20*time.Millisecond)
		return nil
	})
	assert.NoError(t, err)
}

func TestWithLockNotAcquired(t *testing.T) {
	locker := NewInMemoryLocker()
	held, err := locker.Acquire(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)
	defer held.Release(context.Background())

	called := false
	err = WithLock(context.Background(), locker, "k", 10*time.Millisecond, time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, called)
}

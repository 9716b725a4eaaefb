package lock

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-finalize/cron"
	"github.com/goliatone/go-finalize/store/dialect"
)

func openSQLite(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLLockerAcquireRelease(t *testing.T) {
	db := openSQLite(t, filepath.Join(t.TempDir(), "locks.db"))
	locker := NewSQLLocker(db, dialect.SQLite, WithPollInterval(5*time.Millisecond))
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "user-1", 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "user-1", held.Key())

	_, err = locker.Acquire(ctx, "user-1", 20*time.Millisecond, time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := locker.Acquire(ctx, "user-2", 0, time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, held.Release(ctx))
	again, err := locker.Acquire(ctx, "user-1", 0, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestSQLLockerTakesOverExpiredLease(t *testing.T) {
	db := openSQLite(t, filepath.Join(t.TempDir(), "locks.db"))
	locker := NewSQLLocker(db, dialect.SQLite, WithPollInterval(5*time.Millisecond))
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k", 0, 20*time.Millisecond)
	require.NoError(t, err)

	fresh, err := locker.Acquire(ctx, "k", time.Second, time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Release(ctx), ErrLeaseLost)
	require.NoError(t, fresh.Release(ctx))
}

func TestSQLLockerAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.db")
	lockers := []*SQLLocker{
		NewSQLLocker(openSQLite(t, path), dialect.SQLite, WithPollInterval(2*time.Millisecond)),
		NewSQLLocker(openSQLite(t, path), dialect.SQLite, WithPollInterval(2*time.Millisecond)),
	}
	require.NoError(t, lockers[0].EnsureSchema(context.Background()))

	var inside, overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(l *SQLLocker) {
			defer wg.Done()
			err := WithLock(context.Background(), l, "shared", 10*time.Second, 10*time.Second, func(context.Context) error {
				if inside.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}(lockers[i%2])
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestSQLLockerReap(t *testing.T) {
	db := openSQLite(t, filepath.Join(t.TempDir(), "locks.db"))
	locker := NewSQLLocker(db, dialect.SQLite)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "expired", 0, 10*time.Millisecond)
	require.NoError(t, err)
	live, err := locker.Acquire(ctx, "live", 0, time.Minute)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	reaper := NewReaper(locker, cron.NewScheduler(), "", nil)
	n, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, live.Release(ctx))
}

func TestReaperSchedule(t *testing.T) {
	db := openSQLite(t, filepath.Join(t.TempDir(), "locks.db"))
	locker := NewSQLLocker(db, dialect.SQLite)
	scheduler := cron.NewScheduler()

	handle, err := NewReaper(locker, scheduler, "@every 1h", nil).Schedule()
	require.NoError(t, err)
	assert.Equal(t, cron.StatusScheduled, handle.Status())
	require.NoError(t, scheduler.Stop(context.Background()))
}

func TestSQLLockerPostgresPlaceholders(t *testing.T) {
	locker := NewSQLLocker(nil, dialect.Postgres, WithTable("locks"))
	assert.Contains(t, locker.acquireSQL, "$5")
	assert.Contains(t, locker.acquireSQL, "WHERE locks.expires_at <= $5")
	assert.Equal(t, "DELETE FROM locks WHERE lock_key = $1 AND owner = $2", locker.releaseSQL)
}

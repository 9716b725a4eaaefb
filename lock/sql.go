package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-finalize/runner"
	"github.com/goliatone/go-finalize/store/dialect"
)

const DefaultTable = "finalize_locks"

// SQLLocker keeps leases in a database table. Any process using the same
// database observes the same leases.
type SQLLocker struct {
	db      *sql.DB
	dialect dialect.Dialect
	table   string
	backoff runner.RetryStrategy
	now     func() time.Time

	schemaOnce sync.Once
	schemaErr  error

	acquireSQL string
	releaseSQL string
	reapSQL    string
}

// SQLOption configures a SQLLocker.
type SQLOption func(*SQLLocker)

// WithTable overrides the lease table name.
func WithTable(table string) SQLOption {
	return func(l *SQLLocker) {
		if table = strings.TrimSpace(table); table != "" {
			l.table = table
		}
	}
}

// WithBackoff sets the delay strategy used between acquisition attempts.
func WithBackoff(s runner.RetryStrategy) SQLOption {
	return func(l *SQLLocker) {
		if s != nil {
			l.backoff = s
		}
	}
}

// WithPollInterval polls at a fixed interval instead of backing off.
func WithPollInterval(d time.Duration) SQLOption {
	return func(l *SQLLocker) {
		if d > 0 {
			l.backoff = runner.FixedDelayStrategy{Delay: d}
		}
	}
}

// NewSQLLocker builds a locker on db using the SQL dialect d.
func NewSQLLocker(db *sql.DB, d dialect.Dialect, opts ...SQLOption) *SQLLocker {
	l := &SQLLocker{
		db:      db,
		dialect: d,
		table:   DefaultTable,
		backoff: runner.ExponentialBackoffStrategy{
			Base:   20 * time.Millisecond,
			Factor: 2,
			Max:    250 * time.Millisecond,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	p := l.dialect.Placeholder
	l.acquireSQL = fmt.Sprintf(`INSERT INTO %[1]s (lock_key, owner, acquired_at, expires_at)
		VALUES (%[2]s, %[3]s, %[4]s, %[5]s)
		ON CONFLICT (lock_key) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE %[1]s.expires_at <= %[6]s`, l.table, p(1), p(2), p(3), p(4), p(5))
	l.releaseSQL = fmt.Sprintf(`DELETE FROM %s WHERE lock_key = %s AND owner = %s`, l.table, p(1), p(2))
	l.reapSQL = fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= %s`, l.table, p(1))
	return l
}

// EnsureSchema creates the lease table when missing.
func (l *SQLLocker) EnsureSchema(ctx context.Context) error {
	if l == nil || l.db == nil {
		return errors.New("sql locker not configured")
	}
	l.schemaOnce.Do(func() {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			lock_key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			acquired_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		)`, l.table)
		_, l.schemaErr = l.db.ExecContext(ctx, ddl)
	})
	return l.schemaErr
}

func (l *SQLLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (Lock, error) {
	if err := l.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	key = normalizeKey(key)
	if key == "" {
		return nil, errors.New("lock key required")
	}
	wait, lease = normalizeBounds(wait, lease)
	owner := uuid.NewString()
	deadline := l.now().Add(wait)

	for attempt := 0; ; attempt++ {
		until, ok, err := l.tryAcquire(ctx, key, owner, lease)
		if err != nil {
			return nil, err
		}
		if ok {
			return &sqlLock{locker: l, key: key, owner: owner, until: until}, nil
		}

		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			return nil, ErrNotAcquired
		}
		delay := l.backoff.SleepDuration(attempt, ErrNotAcquired)
		if delay <= 0 || delay > remaining {
			delay = remaining
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (l *SQLLocker) tryAcquire(ctx context.Context, key, owner string, lease time.Duration) (time.Time, bool, error) {
	now := l.now().UTC()
	until := now.Add(lease)
	result, err := l.db.ExecContext(ctx, l.acquireSQL,
		key,
		owner,
		now.UnixMilli(),
		until.UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, false, err
	}
	return until, rows > 0, nil
}

// Reap deletes expired leases and returns how many were removed.
func (l *SQLLocker) Reap(ctx context.Context) (int64, error) {
	if err := l.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	result, err := l.db.ExecContext(ctx, l.reapSQL, l.now().UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *SQLLocker) release(ctx context.Context, key, owner string) error {
	result, err := l.db.ExecContext(ctx, l.releaseSQL, key, owner)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLeaseLost
	}
	return nil
}

type sqlLock struct {
	locker *SQLLocker
	key    string
	owner  string
	until  time.Time
	once   sync.Once
	err    error
}

func (s *sqlLock) Key() string          { return s.key }
func (s *sqlLock) Owner() string        { return s.owner }
func (s *sqlLock) ExpiresAt() time.Time { return s.until }

func (s *sqlLock) Release(ctx context.Context) error {
	s.once.Do(func() {
		s.err = s.locker.release(ctx, s.key, s.owner)
	})
	return s.err
}

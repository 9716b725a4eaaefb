// Package identity assigns analytics identities to users exactly once, even
// when many processes finalize executions for the same user concurrently.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	finalize "github.com/goliatone/go-finalize"
	"github.com/goliatone/go-finalize/lock"
)

// LockKeyPrefix namespaces identity locks in the shared lock table.
const LockKeyPrefix = "analytics-identity:"

// Coordinator ensures a user carries an analytics identity.
type Coordinator struct {
	users     finalize.UserDirectory
	transport finalize.AnalyticsTransport
	locker    lock.Locker
	wait      time.Duration
	lease     time.Duration
	generate  func() string
	logger    finalize.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWaitTimeout bounds how long EnsureIdentity waits for the user lock.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.wait = d
		}
	}
}

// WithLeaseTimeout bounds how long a held lock survives a crashed holder.
func WithLeaseTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.lease = d
		}
	}
}

// WithGenerator replaces the identity generator.
func WithGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.generate = fn
		}
	}
}

func WithLogger(logger finalize.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator wires the collaborators. Wait and lease default to
// lock.DefaultWaitTimeout and lock.DefaultLeaseTimeout.
func NewCoordinator(users finalize.UserDirectory, transport finalize.AnalyticsTransport, locker lock.Locker, opts ...Option) *Coordinator {
	c := &Coordinator{
		users:     users,
		transport: transport,
		locker:    locker,
		wait:      lock.DefaultWaitTimeout,
		lease:     lock.DefaultLeaseTimeout,
		generate:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = finalize.NormalizeLogger(c.logger)
	return c
}

// LockKey returns the lock key guarding userID.
func LockKey(userID string) string {
	return LockKeyPrefix + strings.TrimSpace(userID)
}

// EnsureIdentity returns the user's analytics identity, creating, announcing
// and persisting one when the user has none. When the user lock cannot be
// acquired within the wait bound it returns an empty identity and no error.
// On success user.AnalyticsIdentity is updated in place.
func (c *Coordinator) EnsureIdentity(ctx context.Context, user *finalize.User) (string, error) {
	if user == nil {
		return "", nil
	}
	if user.AnalyticsIdentity != "" {
		return user.AnalyticsIdentity, nil
	}

	key := LockKey(user.ID)
	logger := finalize.WithLoggerFields(c.logger.WithContext(ctx), map[string]any{
		"user_id":  user.ID,
		"lock_key": key,
	})

	var identity string
	err := lock.WithLock(ctx, c.locker, key, c.wait, c.lease, func(ctx context.Context) error {
		var err error
		identity, err = c.assign(ctx, user.ID)
		return err
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		logger.Warn("analytics identity not assigned: %v",
			finalize.Wrap(err, apperrors.CategoryConflict, finalize.ErrCodeLockNotAcquired, "identity lock busy", nil))
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if identity != "" {
		user.AnalyticsIdentity = identity
	}
	return identity, nil
}

// assign runs under the user lock: reload, check, identify, persist.
func (c *Coordinator) assign(ctx context.Context, userID string) (string, error) {
	meta := map[string]any{"user_id": userID}

	current, err := c.users.Get(ctx, userID)
	if err != nil {
		return "", finalize.External(err, finalize.ErrCodeUserLookupFailed, "failed to reload user", meta)
	}
	if current == nil {
		return "", finalize.NotFound(finalize.ErrCodeUserNotFound, "user not found", meta)
	}
	if current.AnalyticsIdentity != "" {
		return current.AnalyticsIdentity, nil
	}

	identity := c.generate()
	if err := c.transport.Identify(ctx, current, identity); err != nil {
		return "", finalize.External(err, finalize.ErrCodeIdentifyFailed, "failed to identify user", meta)
	}

	current.AnalyticsIdentity = identity
	if _, err := c.users.Update(ctx, current); err != nil {
		return "", finalize.External(err, finalize.ErrCodeIdentityPersistFailed, "failed to persist analytics identity", meta)
	}

	finalize.WithLoggerFields(c.logger.WithContext(ctx), meta).Debug("analytics identity assigned")
	return identity, nil
}

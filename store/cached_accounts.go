package store

import (
	"context"
	"sync"
	"time"

	finalize "github.com/goliatone/go-finalize"
)

// DefaultAccountTTL bounds how long a cached account is served without a refresh.
const DefaultAccountTTL = 5 * time.Minute

var _ finalize.AccountDirectory = (*CachedAccountDirectory)(nil)

type cachedAccount struct {
	account   *finalize.Account
	fetchedAt time.Time
}

// CachedAccountDirectory caches account lookups for a TTL. When a refresh
// fails and a previous value exists, the stale value is served and the error
// is logged.
type CachedAccountDirectory struct {
	next   finalize.AccountDirectory
	ttl    time.Duration
	now    func() time.Time
	logger finalize.Logger

	mu      sync.Mutex
	entries map[string]cachedAccount
}

// NewCachedAccountDirectory wraps next. A non-positive ttl uses DefaultAccountTTL.
func NewCachedAccountDirectory(next finalize.AccountDirectory, ttl time.Duration, logger finalize.Logger) *CachedAccountDirectory {
	if ttl <= 0 {
		ttl = DefaultAccountTTL
	}
	return &CachedAccountDirectory{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		logger:  finalize.NormalizeLogger(logger),
		entries: make(map[string]cachedAccount),
	}
}

func (c *CachedAccountDirectory) GetAccount(ctx context.Context, accountID string) (*finalize.Account, error) {
	c.mu.Lock()
	entry, ok := c.entries[accountID]
	c.mu.Unlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.account.Clone(), nil
	}

	account, err := c.next.GetAccount(ctx, accountID)
	if err != nil {
		if ok {
			finalize.WithLoggerFields(c.logger.WithContext(ctx), map[string]any{"account_id": accountID}).
				Warn("account refresh failed, serving cached value: %v", err)
			return entry.account.Clone(), nil
		}
		return nil, err
	}
	if account == nil {
		c.Invalidate(accountID)
		return nil, nil
	}

	c.mu.Lock()
	c.entries[accountID] = cachedAccount{account: account.Clone(), fetchedAt: c.now()}
	c.mu.Unlock()
	return account, nil
}

// Invalidate drops the cached value for accountID.
func (c *CachedAccountDirectory) Invalidate(accountID string) {
	c.mu.Lock()
	delete(c.entries, accountID)
	c.mu.Unlock()
}

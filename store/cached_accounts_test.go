package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	finalize "github.com/goliatone/go-finalize"
)

type countingAccounts struct {
	calls   int
	err     error
	account *finalize.Account
}

func (c *countingAccounts) GetAccount(_ context.Context, _ string) (*finalize.Account, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.account.Clone(), nil
}

func TestCachedAccountDirectoryServesWithinTTL(t *testing.T) {
	backing := &countingAccounts{account: &finalize.Account{ID: "acct-1", Name: "Acme"}}
	cache := NewCachedAccountDirectory(backing, time.Minute, nil)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		got, err := cache.GetAccount(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Name)
	}
	assert.Equal(t, 1, backing.calls)

	clock = clock.Add(2 * time.Minute)
	_, err := cache.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}

func TestCachedAccountDirectoryFallsBackToStale(t *testing.T) {
	backing := &countingAccounts{account: &finalize.Account{ID: "acct-1", Name: "Acme"}}
	cache := NewCachedAccountDirectory(backing, time.Minute, nil)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	_, err := cache.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	backing.err = errors.New("directory down")
	got, err := cache.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)

	_, err = cache.GetAccount(context.Background(), "acct-2")
	assert.EqualError(t, err, "directory down")
}

func TestCachedAccountDirectoryMissingIsNotCached(t *testing.T) {
	backing := &countingAccounts{}
	cache := NewCachedAccountDirectory(backing, time.Minute, nil)

	got, err := cache.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, _ = cache.GetAccount(context.Background(), "acct-1")
	assert.Equal(t, 2, backing.calls)
}

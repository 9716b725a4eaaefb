// Package store provides persistence adapters for executions, users,
// accounts and tag definitions.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	finalize "github.com/goliatone/go-finalize"
)

// ErrNotFound is returned by mutations that target a missing record.
var ErrNotFound = errors.New("record not found")

var (
	_ finalize.ExecutionStore   = (*InMemoryStore)(nil)
	_ finalize.UserDirectory    = memoryUsers{}
	_ finalize.AccountDirectory = (*InMemoryStore)(nil)
	_ finalize.TagStore         = (*InMemoryStore)(nil)
)

// InMemoryStore is a thread-safe in-memory implementation of every
// collaborator store. Records are cloned on the way in and out.
type InMemoryStore struct {
	mu         sync.RWMutex
	executions map[string]*finalize.WorkflowExecution
	users      map[string]*finalize.User
	accounts   map[string]*finalize.Account
	tags       map[string][]finalize.TagDefinition
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		executions: make(map[string]*finalize.WorkflowExecution),
		users:      make(map[string]*finalize.User),
		accounts:   make(map[string]*finalize.Account),
		tags:       make(map[string][]finalize.TagDefinition),
	}
}

func executionKey(appID, executionID string) string {
	return strings.TrimSpace(appID) + "::" + strings.TrimSpace(executionID)
}

// SaveExecution inserts or replaces an execution.
func (s *InMemoryStore) SaveExecution(_ context.Context, exec *finalize.WorkflowExecution) error {
	if exec == nil || strings.TrimSpace(exec.ID) == "" {
		return errors.New("execution id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[executionKey(exec.AppID, exec.ID)] = exec.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, appID, executionID string) (*finalize.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[executionKey(appID, executionID)]
	if !ok {
		return nil, nil
	}
	return exec.Clone(), nil
}

func (s *InMemoryStore) UpdateTags(_ context.Context, appID, executionID string, tags []finalize.ResolvedTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[executionKey(appID, executionID)]
	if !ok {
		return ErrNotFound
	}
	exec.Tags = finalize.CloneTags(tags)
	return nil
}

// SaveUser inserts or replaces a user.
func (s *InMemoryStore) SaveUser(_ context.Context, user *finalize.User) error {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return errors.New("user id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user.Clone()
	return nil
}

// GetUser returns the user or nil when it does not exist.
func (s *InMemoryStore) GetUser(_ context.Context, userID string) (*finalize.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return user.Clone(), nil
}

// UpdateUser replaces an existing user.
func (s *InMemoryStore) UpdateUser(_ context.Context, user *finalize.User) (*finalize.User, error) {
	if user == nil {
		return nil, errors.New("user required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return nil, ErrNotFound
	}
	s.users[user.ID] = user.Clone()
	return user.Clone(), nil
}

// Users returns the store as a finalize.UserDirectory.
func (s *InMemoryStore) Users() finalize.UserDirectory {
	return memoryUsers{store: s}
}

type memoryUsers struct {
	store *InMemoryStore
}

func (u memoryUsers) Get(ctx context.Context, userID string) (*finalize.User, error) {
	return u.store.GetUser(ctx, userID)
}

func (u memoryUsers) Update(ctx context.Context, user *finalize.User) (*finalize.User, error) {
	return u.store.UpdateUser(ctx, user)
}

// SaveAccount inserts or replaces an account.
func (s *InMemoryStore) SaveAccount(_ context.Context, account *finalize.Account) error {
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return errors.New("account id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account.Clone()
	return nil
}

func (s *InMemoryStore) GetAccount(_ context.Context, accountID string) (*finalize.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, nil
	}
	return account.Clone(), nil
}

// SaveDefinitions replaces the tag definitions attached to entityID.
func (s *InMemoryStore) SaveDefinitions(_ context.Context, entityID string, defs []finalize.TagDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]finalize.TagDefinition(nil), defs...)
	for i := range cp {
		cp[i].EntityID = entityID
	}
	s.tags[entityID] = cp
	return nil
}

func (s *InMemoryStore) Definitions(_ context.Context, entityID string) ([]finalize.TagDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]finalize.TagDefinition(nil), s.tags[entityID]...), nil
}

package tags

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	finalize "github.com/goliatone/go-finalize"
)

type memoryExecutions struct {
	mu   sync.Mutex
	rows map[string]*finalize.WorkflowExecution
	err  error
}

func (m *memoryExecutions) Get(_ context.Context, appID, executionID string) (*finalize.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.rows[appID+"/"+executionID]
	if !ok {
		return nil, nil
	}
	return exec.Clone(), nil
}

func (m *memoryExecutions) UpdateTags(_ context.Context, appID, executionID string, tags []finalize.ResolvedTag) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.rows[appID+"/"+executionID]
	if !ok {
		return errors.New("execution not found")
	}
	exec.Tags = tags
	return nil
}

func TestApplyReplacesExistingTags(t *testing.T) {
	store := &memoryExecutions{rows: map[string]*finalize.WorkflowExecution{
		"app-1/exec-1": {
			ID:    "exec-1",
			AppID: "app-1",
			Tags:  []finalize.ResolvedTag{{Name: "stale", Value: "old"}},
		},
	}}
	tags := []finalize.ResolvedTag{
		{Name: "foo", Value: ""},
		{Name: "env", Value: "dev"},
		{Name: "env", Value: finalize.UnresolvedValue},
	}

	require.NoError(t, NewApplier(store).Apply(context.Background(), "exec-1", "app-1", tags))

	exec, err := store.Get(context.Background(), "app-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, tags, exec.Tags)
}

func TestApplyDoesNotAliasInput(t *testing.T) {
	store := &memoryExecutions{rows: map[string]*finalize.WorkflowExecution{
		"app-1/exec-1": {ID: "exec-1", AppID: "app-1"},
	}}
	tags := []finalize.ResolvedTag{{Name: "a", Value: "1"}}
	require.NoError(t, NewApplier(store).Apply(context.Background(), "exec-1", "app-1", tags))

	tags[0].Value = "mutated"
	exec, err := store.Get(context.Background(), "app-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "1", exec.Tags[0].Value)
}

func TestApplyPersistenceFailure(t *testing.T) {
	store := &memoryExecutions{err: errors.New("write failed")}
	err := NewApplier(store).Apply(context.Background(), "exec-1", "app-1", nil)
	require.Error(t, err)
	assert.True(t, finalize.HasCode(err, finalize.ErrCodeTagApplyFailed))
}

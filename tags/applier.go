package tags

import (
	"context"
	"errors"

	finalize "github.com/goliatone/go-finalize"
)

var errNoStore = errors.New("execution store not configured")

// Applier overwrites the persisted tag list of an execution.
type Applier struct {
	executions finalize.ExecutionStore
}

// NewApplier builds an Applier writing through executions.
func NewApplier(executions finalize.ExecutionStore) *Applier {
	return &Applier{executions: executions}
}

// Apply replaces the execution's tags with tags, in order. It does not merge
// with previously stored tags.
func (a *Applier) Apply(ctx context.Context, executionID, appID string, tags []finalize.ResolvedTag) error {
	if a == nil || a.executions == nil {
		return finalize.External(errNoStore, finalize.ErrCodeTagApplyFailed, "tag applier not configured", nil)
	}
	if tags == nil {
		tags = []finalize.ResolvedTag{}
	}
	if err := a.executions.UpdateTags(ctx, appID, executionID, finalize.CloneTags(tags)); err != nil {
		return finalize.External(err, finalize.ErrCodeTagApplyFailed, "failed to apply resolved tags", map[string]any{
			"execution_id": executionID,
			"app_id":       appID,
			"tag_count":    len(tags),
		})
	}
	return nil
}

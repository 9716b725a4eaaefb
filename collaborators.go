package finalize

import "context"

// ExpressionRenderer renders a templated expression. ok is false when the
// renderer produced no value at all. A renderer that cannot substitute a
// placeholder echoes it back unchanged.
type ExpressionRenderer interface {
	Render(expr string) (rendered string, ok bool)
}

// RenderFunc adapts a function to ExpressionRenderer.
type RenderFunc func(expr string) (string, bool)

// Render calls the underlying function
func (f RenderFunc) Render(expr string) (string, bool) {
	return f(expr)
}

// TagStore returns the raw tag definitions attached to an entity, in
// declaration order.
type TagStore interface {
	Definitions(ctx context.Context, entityID string) ([]TagDefinition, error)
}

// AccountDirectory looks up accounts. A missing account is reported as a nil
// account and a nil error.
type AccountDirectory interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
}

// UserDirectory reads and updates user records. A missing user is reported as
// a nil user and a nil error.
type UserDirectory interface {
	Get(ctx context.Context, userID string) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
}

// ExecutionStore persists workflow executions.
type ExecutionStore interface {
	Get(ctx context.Context, appID, executionID string) (*WorkflowExecution, error)
	UpdateTags(ctx context.Context, appID, executionID string, tags []ResolvedTag) error
}

// AnalyticsTransport delivers identify and track calls to an analytics backend.
type AnalyticsTransport interface {
	Identify(ctx context.Context, user *User, identity string) error
	Track(ctx context.Context, event TrackEvent) error
}

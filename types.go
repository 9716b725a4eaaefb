package finalize

import "time"

// UnresolvedValue replaces a tag value whose expression could not be rendered.
const UnresolvedValue = "unresolved"

// EnvironmentType classifies the environment a workflow deployed into.
type EnvironmentType string

const (
	EnvironmentProd    EnvironmentType = "PROD"
	EnvironmentNonProd EnvironmentType = "NON_PROD"
	EnvironmentAll     EnvironmentType = "ALL"
)

// ExecutionStatus is the terminal (or current) status of a workflow execution.
type ExecutionStatus string

const (
	StatusSuccess  ExecutionStatus = "SUCCESS"
	StatusFailed   ExecutionStatus = "FAILED"
	StatusAborted  ExecutionStatus = "ABORTED"
	StatusError    ExecutionStatus = "ERROR"
	StatusExpired  ExecutionStatus = "EXPIRED"
	StatusRejected ExecutionStatus = "REJECTED"
	StatusRunning  ExecutionStatus = "RUNNING"
)

// WorkflowType distinguishes single workflows from pipelines.
type WorkflowType string

const (
	WorkflowOrchestration WorkflowType = "ORCHESTRATION"
	WorkflowPipeline      WorkflowType = "PIPELINE"
)

// TagScope records where a tag definition was declared.
type TagScope string

const (
	TagScopeAccount  TagScope = "ACCOUNT"
	TagScopeWorkflow TagScope = "WORKFLOW"
)

// EmbeddedUser references the user that triggered an execution.
type EmbeddedUser struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// WorkflowExecution is the execution record finalized once a workflow completes.
// WorkflowType and TriggeredBy are nil when unknown or when the execution was
// started by a schedule or trigger instead of a user.
type WorkflowExecution struct {
	ID           string            `json:"id"`
	AccountID    string            `json:"account_id"`
	AppID        string            `json:"app_id"`
	AppName      string            `json:"app_name,omitempty"`
	WorkflowID   string            `json:"workflow_id,omitempty"`
	Name         string            `json:"name,omitempty"`
	EnvType      EnvironmentType   `json:"env_type,omitempty"`
	Status       ExecutionStatus   `json:"status,omitempty"`
	WorkflowType *WorkflowType     `json:"workflow_type,omitempty"`
	TriggeredBy  *EmbeddedUser     `json:"triggered_by,omitempty"`
	ServiceIDs   []string          `json:"service_ids,omitempty"`
	Tags         []ResolvedTag     `json:"tags,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
	StartedAt    time.Time         `json:"started_at,omitempty"`
	EndedAt      time.Time         `json:"ended_at,omitempty"`
}

// TagDefinition is a raw, templated tag attached to an entity.
type TagDefinition struct {
	Key      string   `json:"key" yaml:"key"`
	Value    string   `json:"value" yaml:"value"`
	EntityID string   `json:"entity_id" yaml:"entity_id"`
	Scope    TagScope `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// ResolvedTag is a rendered tag. Name is never empty, Value is either the
// rendered string or UnresolvedValue.
type ResolvedTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the subset of a user record this module reads and mutates.
type User struct {
	ID                string `json:"id"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	AnalyticsIdentity string `json:"analytics_identity,omitempty"`
}

// Account is the subset of an account record used to attribute events.
type Account struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	CompanyName string            `json:"company_name,omitempty"`
	LicenseType string            `json:"license_type,omitempty"`
	Defaults    map[string]string `json:"defaults,omitempty"`
}

// TrackEvent is a single analytics event handed to a transport.
type TrackEvent struct {
	Account    *Account       `json:"account"`
	Event      string         `json:"event"`
	Identity   string         `json:"identity"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// CloneTags returns a copy of tags that never aliases the input.
func CloneTags(tags []ResolvedTag) []ResolvedTag {
	if tags == nil {
		return nil
	}
	out := make([]ResolvedTag, len(tags))
	copy(out, tags)
	return out
}

// Clone returns a deep copy of the execution.
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	if e == nil {
		return nil
	}
	cp := *e
	if e.WorkflowType != nil {
		wt := *e.WorkflowType
		cp.WorkflowType = &wt
	}
	if e.TriggeredBy != nil {
		tb := *e.TriggeredBy
		cp.TriggeredBy = &tb
	}
	if e.ServiceIDs != nil {
		cp.ServiceIDs = append([]string(nil), e.ServiceIDs...)
	}
	cp.Tags = CloneTags(e.Tags)
	cp.Variables = copyStrings(e.Variables)
	return &cp
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Defaults = copyStrings(a.Defaults)
	return &cp
}

// Clone returns a copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func copyStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

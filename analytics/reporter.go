// Package analytics emits the deployment-completed event for a finalized
// workflow execution and provides transports that persist analytics calls.
package analytics

import (
	"context"
	"strings"
	"time"

	finalize "github.com/goliatone/go-finalize"
)

const (
	DefaultEventName = "Deployment Completed"
	DefaultIdentity  = "system"
)

// IdentityEnsurer assigns analytics identities to users.
type IdentityEnsurer interface {
	EnsureIdentity(ctx context.Context, user *finalize.User) (string, error)
}

// Reporter sends one deployment event per call.
type Reporter struct {
	accounts        finalize.AccountDirectory
	users           finalize.UserDirectory
	identities      IdentityEnsurer
	transport       finalize.AnalyticsTransport
	eventName       string
	defaultIdentity string
	now             func() time.Time
	logger          finalize.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

func WithEventName(name string) Option {
	return func(r *Reporter) {
		if strings.TrimSpace(name) != "" {
			r.eventName = name
		}
	}
}

// WithDefaultIdentity sets the identity used when no user identity is available.
func WithDefaultIdentity(identity string) Option {
	return func(r *Reporter) {
		if strings.TrimSpace(identity) != "" {
			r.defaultIdentity = identity
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(logger finalize.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// NewReporter wires the collaborators used to attribute and send events.
func NewReporter(
	accounts finalize.AccountDirectory,
	users finalize.UserDirectory,
	identities IdentityEnsurer,
	transport finalize.AnalyticsTransport,
	opts ...Option,
) *Reporter {
	r := &Reporter{
		accounts:        accounts,
		users:           users,
		identities:      identities,
		transport:       transport,
		eventName:       DefaultEventName,
		defaultIdentity: DefaultIdentity,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = finalize.NormalizeLogger(r.logger)
	return r
}

// ReportDeploymentEvent looks up the account, resolves the identity to
// attribute the event to and tracks it exactly once. A missing or failing
// account lookup is returned; identity problems fall back to the default
// identity.
func (r *Reporter) ReportDeploymentEvent(ctx context.Context, exec *finalize.WorkflowExecution) error {
	if exec == nil {
		return finalize.ErrValidation.Clone().WithMetadata(map[string]any{"missing": []string{"execution"}})
	}
	meta := map[string]any{
		"execution_id": exec.ID,
		"app_id":       exec.AppID,
		"account_id":   exec.AccountID,
	}
	logger := finalize.WithLoggerFields(r.logger.WithContext(ctx), meta)

	account, err := r.accounts.GetAccount(ctx, exec.AccountID)
	if err != nil {
		return finalize.External(err, finalize.ErrCodeAccountLookupFailed, "failed to look up account", meta)
	}
	if account == nil {
		return finalize.NotFound(finalize.ErrCodeAccountNotFound, "account not found", meta)
	}

	event := finalize.TrackEvent{
		Account:    account,
		Event:      r.eventName,
		Identity:   r.resolveIdentity(ctx, exec, logger),
		Properties: BuildProperties(exec, account),
		Timestamp:  r.now().UTC(),
	}

	if err := r.transport.Track(ctx, event); err != nil {
		return finalize.External(err, finalize.ErrCodeAnalyticsReport, "failed to track deployment event", meta)
	}
	logger.Debug("deployment event tracked identity=%s", event.Identity)
	return nil
}

func (r *Reporter) resolveIdentity(ctx context.Context, exec *finalize.WorkflowExecution, logger finalize.Logger) string {
	if exec.TriggeredBy == nil || exec.TriggeredBy.UUID == "" {
		return r.defaultIdentity
	}
	if r.users == nil || r.identities == nil {
		return r.defaultIdentity
	}

	user, err := r.users.Get(ctx, exec.TriggeredBy.UUID)
	if err != nil {
		logger.Warn("triggering user lookup failed: %v", err)
		return r.defaultIdentity
	}
	if user == nil {
		logger.Debug("triggering user %s not found", exec.TriggeredBy.UUID)
		return r.defaultIdentity
	}

	identity, err := r.identities.EnsureIdentity(ctx, user)
	if err != nil {
		logger.Warn("analytics identity not ensured: %v", err)
	}
	if identity == "" {
		return r.defaultIdentity
	}
	return identity
}

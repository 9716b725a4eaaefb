// Package finalizer runs the post-completion steps of a workflow execution:
// tag resolution and application, then analytics emission. The steps are
// independent; a failure in one never prevents the other.
package finalizer

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/goliatone/go-errors"

	finalize "github.com/goliatone/go-finalize"
	"github.com/goliatone/go-finalize/render"
	"github.com/goliatone/go-finalize/runner"
)

const (
	StepTags      = "tags"
	StepAnalytics = "analytics"
)

// StepStatus is the outcome of one finalize step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepPanicked  StepStatus = "panicked"
	StepSkipped   StepStatus = "skipped"
)

// StepResult records how a step ended.
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarises a Finalize call.
type Report struct {
	ExecutionID string                 `json:"execution_id"`
	AppID       string                 `json:"app_id"`
	Tags        []finalize.ResolvedTag `json:"tags,omitempty"`
	Steps       []StepResult           `json:"steps"`
}

// Step returns the result recorded for name.
func (r Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Succeeded reports whether no step failed or panicked.
func (r Report) Succeeded() bool {
	if len(r.Steps) == 0 {
		return false
	}
	for _, s := range r.Steps {
		if s.Status == StepFailed || s.Status == StepPanicked {
			return false
		}
	}
	return true
}

type TagResolver interface {
	Resolve(ctx context.Context, entityID string, renderer finalize.ExpressionRenderer) ([]finalize.ResolvedTag, error)
}

type TagApplier interface {
	Apply(ctx context.Context, executionID, appID string, tags []finalize.ResolvedTag) error
}

type EventReporter interface {
	ReportDeploymentEvent(ctx context.Context, exec *finalize.WorkflowExecution) error
}

// RendererFactory builds the expression renderer used for one execution.
type RendererFactory func(ctx context.Context, exec *finalize.WorkflowExecution) (finalize.ExpressionRenderer, error)

// AccountRendererFactory renders against the execution variables and the
// defaults of its account. A failed account lookup only costs the
// account.defaults.* variables; tag resolution still runs.
func AccountRendererFactory(accounts finalize.AccountDirectory, logger finalize.Logger) RendererFactory {
	logger = finalize.NormalizeLogger(logger)
	return func(ctx context.Context, exec *finalize.WorkflowExecution) (finalize.ExpressionRenderer, error) {
		var account *finalize.Account
		if accounts != nil && exec != nil && exec.AccountID != "" {
			var err error
			account, err = accounts.GetAccount(ctx, exec.AccountID)
			if err != nil {
				finalize.WithLoggerFields(logger.WithContext(ctx), map[string]any{
					"execution_id": exec.ID,
					"account_id":   exec.AccountID,
				}).Warn("rendering tags without account defaults: %v", err)
				account = nil
			}
		}
		return render.ForExecution(exec, account), nil
	}
}

// TagEntityFunc picks the entity whose tag definitions apply to an execution.
type TagEntityFunc func(exec *finalize.WorkflowExecution) string

// WorkflowEntity uses the workflow id, falling back to the app id.
func WorkflowEntity(exec *finalize.WorkflowExecution) string {
	if strings.TrimSpace(exec.WorkflowID) != "" {
		return exec.WorkflowID
	}
	return exec.AppID
}

// Finalizer wires the steps run when an execution completes.
type Finalizer struct {
	executions  finalize.ExecutionStore
	resolver    TagResolver
	applier     TagApplier
	reporter    EventReporter
	renderers   RendererFactory
	tagEntity   TagEntityFunc
	stepTimeout time.Duration
	logger      finalize.Logger
	onPanic     func(funcName string, errp *error, fields ...map[string]any)
}

var _ finalize.Commander[finalize.FinalizeRequest] = (*Finalizer)(nil)

type Option func(*Finalizer)

func WithRendererFactory(f RendererFactory) Option {
	return func(fz *Finalizer) {
		if f != nil {
			fz.renderers = f
		}
	}
}

func WithTagEntity(f TagEntityFunc) Option {
	return func(fz *Finalizer) {
		if f != nil {
			fz.tagEntity = f
		}
	}
}

// WithStepTimeout bounds each step. Zero leaves steps unbounded.
func WithStepTimeout(d time.Duration) Option {
	return func(fz *Finalizer) {
		fz.stepTimeout = d
	}
}

func WithLogger(logger finalize.Logger) Option {
	return func(fz *Finalizer) {
		fz.logger = logger
	}
}

// New builds a Finalizer. The default renderer substitutes execution
// variables only; use WithRendererFactory(AccountRendererFactory(...)) to
// expose account defaults.
func New(executions finalize.ExecutionStore, resolver TagResolver, applier TagApplier, reporter EventReporter, opts ...Option) *Finalizer {
	fz := &Finalizer{
		executions: executions,
		resolver:   resolver,
		applier:    applier,
		reporter:   reporter,
		renderers:  AccountRendererFactory(nil, nil),
		tagEntity:  WorkflowEntity,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(fz)
		}
	}
	fz.logger = finalize.NormalizeLogger(fz.logger)
	fz.onPanic = finalize.MakePanicHandler(finalize.LoggerPanicHandler(fz.logger))
	return fz
}

// Execute implements finalize.Commander.
func (f *Finalizer) Execute(ctx context.Context, req finalize.FinalizeRequest) error {
	_, err := f.Finalize(ctx, req)
	return err
}

// Finalize loads the execution and runs every step. Validation and load
// failures abort before any step runs; step failures are joined and returned
// alongside the report.
func (f *Finalizer) Finalize(ctx context.Context, req finalize.FinalizeRequest) (Report, error) {
	report := Report{ExecutionID: req.ExecutionID, AppID: req.AppID}
	if err := finalize.ValidateMessage(req); err != nil {
		return report, err
	}

	meta := map[string]any{
		"execution_id": req.ExecutionID,
		"app_id":       req.AppID,
	}
	logger := finalize.WithLoggerFields(f.logger.WithContext(ctx), meta)

	exec, err := f.executions.Get(ctx, req.AppID, req.ExecutionID)
	if err != nil {
		return report, finalize.External(err, finalize.ErrCodeExecutionLoadFailed, "failed to load execution", meta)
	}
	if exec == nil {
		return report, finalize.NotFound(finalize.ErrCodeExecutionNotFound, "execution not found", meta)
	}

	var errs error
	if f.resolver != nil && f.applier != nil {
		result, err := f.runStep(ctx, StepTags, meta, func(ctx context.Context) error {
			tags, err := f.applyTags(ctx, exec)
			if err == nil {
				report.Tags = tags
				exec.Tags = finalize.CloneTags(tags)
			}
			return err
		})
		report.Steps = append(report.Steps, result)
		errs = stderrors.Join(errs, err)
	} else {
		report.Steps = append(report.Steps, StepResult{Name: StepTags, Status: StepSkipped})
	}

	if f.reporter != nil {
		result, err := f.runStep(ctx, StepAnalytics, meta, func(ctx context.Context) error {
			return f.reporter.ReportDeploymentEvent(ctx, exec)
		})
		report.Steps = append(report.Steps, result)
		errs = stderrors.Join(errs, err)
	} else {
		report.Steps = append(report.Steps, StepResult{Name: StepAnalytics, Status: StepSkipped})
	}

	if errs != nil {
		logger.Warn("execution finalized with errors: %v", errs)
	} else {
		logger.Info("execution finalized tags=%d", len(report.Tags))
	}
	return report, errs
}

func (f *Finalizer) applyTags(ctx context.Context, exec *finalize.WorkflowExecution) ([]finalize.ResolvedTag, error) {
	renderer, err := f.renderers(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("build renderer: %w", err)
	}
	tags, err := f.resolver.Resolve(ctx, f.tagEntity(exec), renderer)
	if err != nil {
		return nil, err
	}
	if err := f.applier.Apply(ctx, exec.ID, exec.AppID, tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// runStep runs fn with panic recovery and the configured timeout.
func (f *Finalizer) runStep(ctx context.Context, name string, meta map[string]any, fn func(context.Context) error) (StepResult, error) {
	fields := map[string]any{"step": name}
	for k, v := range meta {
		fields[k] = v
	}

	started := time.Now()
	h := runner.NewHandler(runner.WithTimeout(f.stepTimeout))
	err := h.Run(ctx, func(ctx context.Context) (err error) {
		defer f.onPanic("finalizer."+name, &err, fields)
		return fn(ctx)
	})
	result := StepResult{Name: name, Status: StepSucceeded, Duration: time.Since(started)}
	if err == nil {
		return result, nil
	}

	result.Error = err.Error()
	if finalize.HasCode(err, finalize.ErrCodeStepPanic) {
		result.Status = StepPanicked
	} else {
		result.Status = StepFailed
	}

	finalize.WithLoggerFields(f.logger.WithContext(ctx), fields).Error("finalize step failed: %v", err)
	return result, finalize.Wrap(err, apperrors.CategoryHandler, finalize.ErrCodeStepFailed,
		fmt.Sprintf("finalize step %s failed", name), fields)
}

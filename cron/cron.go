// Package cron runs recurring maintenance jobs, such as lease reaping, on
// robfig/cron. Each run goes through a runner.Handler so jobs get a timeout
// and optional retries.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	finalize "github.com/goliatone/go-finalize"
	"github.com/goliatone/go-finalize/runner"
)

// JobConfig controls how a scheduled job is run.
type JobConfig struct {
	Name       string
	Expression string
	Timeout    time.Duration
	MaxRetries int
}

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler owns a robfig/cron instance and the handles registered on it.
type Scheduler struct {
	mu      sync.Mutex
	cron    *rcron.Cron
	logger  finalize.Logger
	onError func(error)
	seconds bool
	loc     *time.Location

	nextID  int64
	handles map[int64]*jobHandle
}

type Option func(*Scheduler)

// WithLogger routes scheduler and job logs to logger.
func WithLogger(logger finalize.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithErrorHandler is called with the error of every failed run.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// WithSeconds accepts six-field expressions with a leading seconds field.
func WithSeconds() Option {
	return func(s *Scheduler) {
		s.seconds = true
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		loc:     time.Local,
		handles: make(map[int64]*jobHandle),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = finalize.NormalizeLogger(s.logger)

	cronLogger := logAdapter{logger: s.logger}
	cronOpts := []rcron.Option{
		rcron.WithLocation(s.loc),
		rcron.WithLogger(cronLogger),
		rcron.WithChain(rcron.Recover(cronLogger), rcron.SkipIfStillRunning(cronLogger)),
	}
	if s.seconds {
		cronOpts = append(cronOpts, rcron.WithSeconds())
	}
	s.cron = rcron.New(cronOpts...)
	return s
}

// ScheduleCron registers job under cfg.Expression.
func (s *Scheduler) ScheduleCron(cfg JobConfig, job Job) (Handle, error) {
	if cfg.Expression == "" {
		return nil, errors.New("cron expression cannot be empty")
	}
	if job == nil {
		return nil, errors.New("cron job cannot be nil")
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Expression
	}
	logger := finalize.WithLoggerFields(s.logger, map[string]any{"job": name})
	h := runner.NewHandler(
		runner.WithTimeout(cfg.Timeout),
		runner.WithMaxRetries(cfg.MaxRetries),
		runner.WithLogger(logger),
	)

	handle := s.newHandle(name)
	entryID, err := s.cron.AddFunc(cfg.Expression, func() {
		if handle.Status().Terminal() {
			return
		}
		handle.set(StatusRunning, nil)
		err := h.Run(context.Background(), job)
		handle.finishRun(err)
		if err != nil {
			logger.Error("scheduled job failed: %v", err)
			if s.onError != nil {
				s.onError(err)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}
	handle.entryID = entryID

	s.mu.Lock()
	s.handles[handle.id] = handle
	s.mu.Unlock()
	return handle, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop halts scheduling, marks every active handle stopped and waits for
// running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()

	s.mu.Lock()
	handles := s.handles
	s.handles = make(map[int64]*jobHandle)
	s.mu.Unlock()

	for _, handle := range handles {
		s.cron.Remove(handle.entryID)
		handle.terminate(StatusStopped)
	}

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) newHandle(name string) *jobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return &jobHandle{
		scheduler: s,
		id:        s.nextID,
		name:      name,
		status:    StatusScheduled,
		done:      make(chan struct{}),
	}
}

func (s *Scheduler) remove(id int64) {
	s.mu.Lock()
	handle := s.handles[id]
	delete(s.handles, id)
	s.mu.Unlock()
	if handle != nil {
		s.cron.Remove(handle.entryID)
	}
}

// logAdapter satisfies the robfig/cron logger, which passes key/value pairs.
type logAdapter struct {
	logger finalize.Logger
}

func (l logAdapter) Info(msg string, keysAndValues ...any) {
	l.withPairs(keysAndValues).Debug("cron: %s", msg)
}

func (l logAdapter) Error(err error, msg string, keysAndValues ...any) {
	l.withPairs(keysAndValues).Error("cron: %s: %v", msg, err)
}

func (l logAdapter) withPairs(kv []any) finalize.Logger {
	if len(kv) == 0 {
		return l.logger
	}
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return finalize.WithLoggerFields(l.logger, fields)
}

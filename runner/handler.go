// Package runner executes a unit of work with timeout and retry settings.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/goliatone/go-errors"
)

// ErrCodeRunFailed tags the error returned once every attempt failed. The
// attempt error stays reachable as its Source.
const ErrCodeRunFailed = "RUN_FAILED"

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type Option func(*Handler)

func WithTimeout(t time.Duration) Option {
	return func(r *Handler) {
		r.timeout = t
	}
}

func WithMaxRetries(max int) Option {
	return func(r *Handler) {
		if max < 0 {
			max = 0
		}
		r.maxRetries = max
	}
}

func WithErrorHandler(h func(error)) Option {
	return func(r *Handler) {
		if h == nil {
			h = func(err error) {}
		}
		r.errorHandler = h
	}
}

func WithLogger(l Logger) Option {
	return func(r *Handler) {
		r.logger = l
	}
}

// WithRetryStrategy lets you define a custom retry/backoff approach.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(r *Handler) {
		r.retryStrategy = s
	}
}

// Handler runs functions with a per-run timeout and a bounded number of retries.
type Handler struct {
	mu sync.Mutex

	logger        Logger
	errorHandler  func(error)
	retryStrategy RetryStrategy

	runs           int
	successfulRuns int

	maxRetries int
	timeout    time.Duration
}

// NewHandler constructs a Handler from options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		errorHandler:  func(error) {},
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	return h
}

// Run calls fn until it succeeds or the retries are exhausted. Every attempt
// shares one context bounded by the configured timeout.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()
	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	h.mu.Unlock()

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}

		if attempt < maxRetries {
			h.logError("run failed, attempt %d of %d: %v", attempt+1, maxRetries+1, err)
			if strategy != nil {
				if delay := strategy.SleepDuration(attempt, err); delay > 0 {
					timer := time.NewTimer(delay)
					select {
					case <-timer.C:
					case <-ctx.Done():
						timer.Stop()
					}
				}
			}
		}
	}

	h.mu.Lock()
	h.runs++
	if err == nil {
		h.successfulRuns++
	}
	h.mu.Unlock()

	if err != nil {
		wrapped := &apperrors.Error{
			Category:  apperrors.CategoryHandler,
			TextCode:  ErrCodeRunFailed,
			Message:   fmt.Sprintf("run failed after %d attempts", maxRetries+1),
			Source:    err,
			Timestamp: time.Now(),
			Severity:  apperrors.SeverityError,
		}
		h.errorHandler(wrapped)
		return wrapped
	}
	return nil
}

// Stats returns the number of runs and successful runs so far.
func (h *Handler) Stats() (runs, successful int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs, h.successfulRuns
}

func (h *Handler) logError(format string, args ...any) {
	if h.logger != nil {
		h.logger.Error(format, args...)
	}
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(parent, h.timeout)
	}
	return parent, func() {}
}

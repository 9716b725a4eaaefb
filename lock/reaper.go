package lock

import (
	"context"
	"time"

	finalize "github.com/goliatone/go-finalize"
	"github.com/goliatone/go-finalize/cron"
)

// DefaultReapSchedule runs the reaper once a minute.
const DefaultReapSchedule = "@every 1m"

// Reapable is implemented by lockers that can purge expired leases.
type Reapable interface {
	Reap(ctx context.Context) (int64, error)
}

// Reaper removes expired leases on a cron schedule so the lease table does not
// grow with keys nobody will lock again.
type Reaper struct {
	target    Reapable
	scheduler *cron.Scheduler
	schedule  string
	timeout   time.Duration
	logger    finalize.Logger
}

// NewReaper builds a reaper for target. An empty schedule uses DefaultReapSchedule.
func NewReaper(target Reapable, scheduler *cron.Scheduler, schedule string, logger finalize.Logger) *Reaper {
	if schedule == "" {
		schedule = DefaultReapSchedule
	}
	return &Reaper{
		target:    target,
		scheduler: scheduler,
		schedule:  schedule,
		timeout:   30 * time.Second,
		logger:    finalize.NormalizeLogger(logger),
	}
}

// RunOnce purges expired leases once.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	n, err := r.target.Reap(ctx)
	if err != nil {
		r.logger.Error("lease reap failed: %v", err)
		return 0, err
	}
	if n > 0 {
		r.logger.Info("reaped %d expired leases", n)
	}
	return n, nil
}

// Schedule registers the reaper with the scheduler. The caller starts and
// stops the scheduler.
func (r *Reaper) Schedule() (cron.Handle, error) {
	return r.scheduler.ScheduleCron(cron.JobConfig{
		Name:       "lock-reaper",
		Expression: r.schedule,
		Timeout:    r.timeout,
	}, func(ctx context.Context) error {
		_, err := r.RunOnce(ctx)
		return err
	})
}

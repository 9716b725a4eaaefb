package cron

import (
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Status reports the state of a scheduled job.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusIdle      Status = "idle"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether the job will never run again.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusStopped
}

// Handle controls one scheduled job. A failed run keeps the job scheduled;
// Err returns the error of the latest run.
type Handle interface {
	ID() int64
	Name() string
	Cancel()
	Status() Status
	Err() error
	Runs() int
	LastRun() time.Time
	Done() <-chan struct{}
}

type jobHandle struct {
	scheduler *Scheduler
	id        int64
	name      string
	entryID   rcron.EntryID
	done      chan struct{}
	once      sync.Once

	mu      sync.RWMutex
	status  Status
	err     error
	runs    int
	lastRun time.Time
}

func (h *jobHandle) ID() int64             { return h.id }
func (h *jobHandle) Name() string          { return h.name }
func (h *jobHandle) Done() <-chan struct{} { return h.done }

func (h *jobHandle) Cancel() {
	if h.scheduler != nil {
		h.scheduler.remove(h.id)
	}
	h.terminate(StatusCanceled)
}

func (h *jobHandle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *jobHandle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *jobHandle) Runs() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runs
}

func (h *jobHandle) LastRun() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastRun
}

func (h *jobHandle) set(status Status, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Terminal() {
		return
	}
	h.status = status
	h.err = err
}

func (h *jobHandle) finishRun(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs++
	h.lastRun = time.Now()
	h.err = err
	if h.status.Terminal() {
		return
	}
	if err != nil {
		h.status = StatusFailed
	} else {
		h.status = StatusIdle
	}
}

func (h *jobHandle) terminate(status Status) {
	h.once.Do(func() {
		h.mu.Lock()
		h.status = status
		h.mu.Unlock()
		close(h.done)
	})
}

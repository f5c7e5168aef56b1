// Package reaper implements the heartbeat reaper: for each Worker whose
// heartbeat has gone stale beyond the configured timeout it marks the bound
// Task failed, closes the pane and workspace, and deletes the Worker record.
// It never appends an Event — this is cleanup,
// not business logic — and it runs as an independent concurrent activity
// alongside the orchestration loop and the notifier.
package reaper

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/aio-dev/aio/internal/domain"
)

// defaultInterval is how often the Reaper scans for stale Workers.
const defaultInterval = 5 * time.Second

// defaultHeartbeatTimeout is how long a Worker may go silent before it is
// presumed dead.
const defaultHeartbeatTimeout = 30 * time.Second

// Store is the subset of *store.Store the Reaper needs.
type Store interface {
	ListActiveWorkers() ([]domain.Worker, error)
	GetTask(id string) (domain.Task, error)
	UpdateTaskStatus(id string, to domain.TaskStatus, assignWorkerID string) error
	RemoveWorker(id string) error
}

// Workspace is the subset of *workspace.Manager the Reaper needs.
type Workspace interface {
	RemoveWorkspace(path string) error
}

// Panes is the subset of *panemgr.Manager the Reaper needs.
type Panes interface {
	ClosePane(handle string) error
}

// FailureNotifier delivers an OS-level user notification
// ("Task <id> failed (heartbeat timeout)").
type FailureNotifier interface {
	NotifyFailure(taskID, reason string)
}

// Reaper scans Workers on a ticker and reaps ones whose heartbeat has
// stalled past the timeout.
type Reaper struct {
	store     Store
	workspace Workspace
	panes     Panes
	notifier  FailureNotifier
	logger    *log.Logger

	interval         time.Duration
	heartbeatTimeout time.Duration

	now func() time.Time

	mu        sync.Mutex
	abandoned map[string]bool // worker IDs whose pane was lost
}

// Option configures a Reaper.
type Option func(*Reaper)

// WithInterval overrides the scan cadence.
func WithInterval(d time.Duration) Option {
	return func(r *Reaper) { r.interval = d }
}

// WithHeartbeatTimeout overrides the staleness threshold.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(r *Reaper) { r.heartbeatTimeout = d }
}

// withClock overrides the reaper's notion of "now", for deterministic tests.
func withClock(now func() time.Time) Option {
	return func(r *Reaper) { r.now = now }
}

// New builds a Reaper. notifier may be nil to skip OS-level notifications
// (used in tests).
func New(st Store, ws Workspace, panes Panes, notifier FailureNotifier, logger *log.Logger, opts ...Option) *Reaper {
	r := &Reaper{
		store:            st,
		workspace:        ws,
		panes:            panes,
		notifier:         notifier,
		logger:           logger,
		interval:         defaultInterval,
		heartbeatTimeout: defaultHeartbeatTimeout,
		now:              time.Now,
		abandoned:        make(map[string]bool),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run scans on a ticker until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// MarkAbandoned flags a Worker whose pane was lost (the Notifier's send
// failed with pane-not-found) so the next Sweep reaps it regardless of
// heartbeat freshness.
func (r *Reaper) MarkAbandoned(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned[workerID] = true
}

// Sweep runs one reap cycle: every Worker whose last heartbeat is older
// than the configured timeout, or whose pane was reported lost via
// MarkAbandoned, has its bound Task set to failed, its pane closed, its
// workspace removed, and its Worker record deleted.
func (r *Reaper) Sweep() {
	workers, err := r.store.ListActiveWorkers()
	if err != nil {
		r.logger.Printf("reaper: list workers: %v", err)
		return
	}

	r.mu.Lock()
	abandoned := r.abandoned
	r.abandoned = make(map[string]bool)
	r.mu.Unlock()

	now := r.now()
	for _, w := range workers {
		switch {
		case abandoned[w.ID]:
			r.reap(w, "pane lost")
		case now.Sub(w.LastHeartbeat) > r.heartbeatTimeout:
			r.reap(w, "heartbeat timeout")
		}
	}
}

func (r *Reaper) reap(w domain.Worker, reason string) {
	r.logger.Printf("reaper: reaping worker %s (%s)", w.ID, reason)

	if w.TaskID != "" {
		if task, err := r.store.GetTask(w.TaskID); err == nil {
			if !domain.Terminal(task.Status) {
				if err := r.store.UpdateTaskStatus(w.TaskID, domain.TaskFailed, ""); err != nil {
					r.logger.Printf("reaper: mark task %s failed: %v", w.TaskID, err)
				} else if r.notifier != nil {
					r.notifier.NotifyFailure(w.TaskID, reason)
				}
			}
			if task.WorktreePath != "" {
				if err := r.workspace.RemoveWorkspace(task.WorktreePath); err != nil {
					r.logger.Printf("reaper: remove workspace %s: %v", task.WorktreePath, err)
				}
			}
		}
	}

	if w.PaneHandle != "" {
		if err := r.panes.ClosePane(w.PaneHandle); err != nil {
			r.logger.Printf("reaper: close pane %s: %v", w.PaneHandle, err)
		}
	}

	if err := r.store.RemoveWorker(w.ID); err != nil {
		r.logger.Printf("reaper: remove worker %s: %v", w.ID, err)
	}
}

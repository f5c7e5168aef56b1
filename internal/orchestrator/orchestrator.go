// Package orchestrator implements the orchestration loop: a single-threaded,
// deterministic state machine that consumes unprocessed events in seq
// order, dispatches them to the workspace and pane managers, advances
// Task/Worker state, and marks each event processed only once it has fully
// converged — including on crash-restart replay.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aio-dev/aio/internal/domain"
)

const (
	defaultIdleSleep  = time.Second
	defaultEventBatch = 50
	defaultRetryCeil  = 10

	// ReviewerPaneHandle is the fixed tmux session name for the single
	// Reviewer pane. There is one Reviewer seat per repo, not one per task,
	// so unlike Worker panes this handle is a constant rather than derived
	// from a task or worker id.
	ReviewerPaneHandle = "aio-reviewer"
)

// Store is the subset of *store.Store the loop needs.
type Store interface {
	UnprocessedEvents(limit int) ([]domain.Event, error)
	MarkProcessed(eventID int64) error
	GetTask(id string) (domain.Task, error)
	UpdateTaskStatus(id string, to domain.TaskStatus, assignWorkerID string) error
	SetWorktree(id, path, branch string) error
	RegisterWorker(w domain.Worker) error
	GetWorker(id string) (domain.Worker, error)
	RemoveWorker(id string) error
}

// Workspace is the subset of *workspace.Manager the loop needs.
type Workspace interface {
	CreateWorkspace(taskID, workerID, branch string) (path, branchOut string, err error)
	RemoveWorkspace(path string) error
}

// Panes is the subset of *panemgr.Manager the loop needs. OpenPane must be
// idempotent when handle already names a live pane (panemgr.Manager is).
type Panes interface {
	OpenPane(handle, dir, cmd string) (string, error)
	SendText(handle, text string) error
	ClosePane(handle string) error
}

// FailureNotifier emits OS-level user notifications on terminal Task
// transitions ("Task <id> failed (reason)" / PR-ready).
type FailureNotifier interface {
	NotifyFailure(taskID, reason string)
	NotifyCompleted(taskID, prURL string)
}

// Loop is the OrchestratorLoop component.
type Loop struct {
	store     Store
	workspace Workspace
	panes     Panes
	notifier  FailureNotifier
	logger    *log.Logger

	workerCmd   string
	reviewerCmd string
	reviewerDir string

	retryCeiling int
	retryCounts  map[int64]int

	idleSleep time.Duration
}

// Option configures a Loop.
type Option func(*Loop)

// WithIdleSleep overrides the sleep between ticks when no events are pending.
func WithIdleSleep(d time.Duration) Option {
	return func(l *Loop) { l.idleSleep = d }
}

// WithRetryCeiling overrides the transient_io retry ceiling (default 10).
func WithRetryCeiling(n int) Option {
	return func(l *Loop) { l.retryCeiling = n }
}

// WithWorkerCommand sets the shell command used to launch the external
// Worker agent process in its pane (env vars for task/worker identity are
// prefixed onto this command per dispatch).
func WithWorkerCommand(cmd string) Option {
	return func(l *Loop) { l.workerCmd = cmd }
}

// WithReviewerCommand sets the shell command used to launch the external
// Reviewer agent process.
func WithReviewerCommand(cmd string) Option {
	return func(l *Loop) { l.reviewerCmd = cmd }
}

// WithReviewerDir sets the working directory the Reviewer pane opens in
// (normally the target repo root).
func WithReviewerDir(dir string) Option {
	return func(l *Loop) { l.reviewerDir = dir }
}

// New builds a Loop. notifier may be nil to suppress OS notifications (tests).
func New(st Store, ws Workspace, panes Panes, notifier FailureNotifier, logger *log.Logger, opts ...Option) *Loop {
	l := &Loop{
		store:        st,
		workspace:    ws,
		panes:        panes,
		notifier:     notifier,
		logger:       logger,
		workerCmd:    "aio-worker-agent",
		reviewerCmd:  "aio-reviewer-agent",
		retryCeiling: defaultRetryCeil,
		retryCounts:  make(map[int64]int),
		idleSleep:    defaultIdleSleep,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run processes unprocessed events in seq order until ctx is cancelled.
// It honors a shutdown signal by finishing the event currently in hand and
// then exiting; in-flight workers are left running for the Reaper to
// eventually reconcile on restart.
func (l *Loop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !l.Tick() {
			l.sleep(ctx)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Tick runs one pass: fetch unprocessed events and dispatch each in order.
// Returns true if any events were processed (so Run can skip the idle sleep).
func (l *Loop) Tick() bool {
	events, err := l.store.UnprocessedEvents(defaultEventBatch)
	if err != nil {
		l.logger.Printf("orchestrator: unprocessed events: %v", err)
		return false
	}
	if len(events) == 0 {
		return false
	}
	for _, e := range events {
		l.dispatchOne(e)
	}
	return true
}

func (l *Loop) sleep(ctx context.Context) {
	t := time.NewTimer(l.idleSleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// dispatchOne routes one event to its handler and applies the retry/mark-
// processed policy: a handler error leaves the event
// unprocessed (retried next tick) up to retryCeiling attempts, after which
// the bound Task is failed and the event is marked processed so it stops
// being retried forever.
func (l *Loop) dispatchOne(e domain.Event) {
	var err error
	switch e.Type {
	case domain.EventTaskCreate:
		err = l.handleTaskCreate(e)
	case domain.EventReviewRequested:
		err = l.handleReviewRequested(e)
	case domain.EventReviewApproved:
		err = l.handleReviewApproved(e)
	case domain.EventReviewDenied:
		err = l.handleReviewDenied(e)
	default:
		l.logger.Printf("orchestrator: event %d has unknown type %q, marking processed", e.ID, e.Type)
		if mErr := l.store.MarkProcessed(e.ID); mErr != nil {
			l.logger.Printf("orchestrator: mark processed %d: %v", e.ID, mErr)
		}
		return
	}

	if err == nil {
		delete(l.retryCounts, e.ID)
		if mErr := l.store.MarkProcessed(e.ID); mErr != nil {
			l.logger.Printf("orchestrator: mark processed %d: %v", e.ID, mErr)
		}
		return
	}

	l.retryCounts[e.ID]++
	if l.retryCounts[e.ID] <= l.retryCeiling {
		l.logger.Printf("orchestrator: event %d (%s) failed, retry %d/%d: %v", e.ID, e.Type, l.retryCounts[e.ID], l.retryCeiling, err)
		return
	}

	l.logger.Printf("orchestrator: event %d (%s) exceeded retry ceiling (%d): %v", e.ID, e.Type, l.retryCeiling, err)
	if fErr := l.failTaskForEvent(e, err); fErr != nil {
		l.logger.Printf("orchestrator: failing task for event %d: %v", e.ID, fErr)
	}
	delete(l.retryCounts, e.ID)
	if mErr := l.store.MarkProcessed(e.ID); mErr != nil {
		l.logger.Printf("orchestrator: mark processed %d: %v", e.ID, mErr)
	}
}

func (l *Loop) failTaskForEvent(e domain.Event, cause error) error {
	if e.TaskID == "" {
		return nil
	}
	task, err := l.store.GetTask(e.TaskID)
	if err != nil {
		return err
	}
	if domain.Terminal(task.Status) {
		return nil
	}
	if err := l.store.UpdateTaskStatus(e.TaskID, domain.TaskFailed, ""); err != nil {
		return err
	}
	if l.notifier != nil {
		l.notifier.NotifyFailure(e.TaskID, fmt.Sprintf("retry ceiling exceeded: %v", cause))
	}
	return nil
}

// workerIDFor derives a deterministic Worker id from a Task id so that
// crash-restart replay of a task-create dispatch allocates the identical
// worker id (and therefore reuses the identical workspace and pane) rather
// than spawning a second Worker for the same Task.
func workerIDFor(taskID string) string {
	return "worker-" + taskID
}

// handleTaskCreate spawns a Worker for a freshly created Task: workspace,
// tool environment, pane, Worker record, then the in_progress transition.
// Failures in workspace/pane setup are treated as permanent for this
// attempt: the partial workspace is torn
// down and the Task is failed directly, rather than retried, since a git or
// tmux failure is overwhelmingly likely to recur identically. Store I/O
// failures propagate for the ordinary transient_io retry policy.
func (l *Loop) handleTaskCreate(e domain.Event) error {
	var payload domain.TaskCreatePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("decode task-create payload: %w", err)
	}

	task, err := l.store.GetTask(payload.TaskID)
	if err != nil {
		return fmt.Errorf("get task %s: %w", payload.TaskID, err)
	}
	if task.WorkerID != "" {
		if _, err := l.store.GetWorker(task.WorkerID); err == nil {
			// Already spawned on a prior attempt before the crash; nothing left to do.
			return nil
		}
	}

	workerID := workerIDFor(task.ID)

	path, branch, err := l.workspace.CreateWorkspace(task.ID, workerID, task.BranchName)
	if err != nil {
		return l.failTaskDirect(task.ID, fmt.Sprintf("create workspace: %v", err))
	}
	if err := l.store.SetWorktree(task.ID, path, branch); err != nil {
		return fmt.Errorf("set worktree for %s: %w", task.ID, err)
	}

	env := fmt.Sprintf(
		"AIO_TASK_ID=%s AIO_WORKER_ID=%s AIO_WORKSPACE=%s AIO_BRANCH=%s",
		shellQuote(task.ID), shellQuote(workerID), shellQuote(path), shellQuote(branch),
	)
	cmd := env + " " + l.workerCmd

	handle, err := l.panes.OpenPane(workerID, path, cmd)
	if err != nil {
		_ = l.workspace.RemoveWorkspace(path)
		return l.failTaskDirect(task.ID, fmt.Sprintf("open worker pane: %v", err))
	}

	if err := l.store.RegisterWorker(domain.Worker{
		ID:            workerID,
		Status:        domain.WorkerRunning,
		TaskID:        task.ID,
		PaneHandle:    handle,
		LastHeartbeat: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("register worker %s: %w", workerID, err)
	}
	if err := l.store.UpdateTaskStatus(task.ID, domain.TaskInProgress, workerID); err != nil {
		return fmt.Errorf("update task %s to in_progress: %w", task.ID, err)
	}

	l.logger.Printf("orchestrator: task %s -> in_progress (worker %s, workspace %s)", task.ID, workerID, path)
	return nil
}

// failTaskDirect marks a Task failed immediately (not via the retry
// ceiling) and notifies, returning nil so the caller's event is still
// marked processed exactly once.
func (l *Loop) failTaskDirect(taskID, reason string) error {
	if err := l.store.UpdateTaskStatus(taskID, domain.TaskFailed, ""); err != nil {
		return fmt.Errorf("fail task %s: %w", taskID, err)
	}
	if l.notifier != nil {
		l.notifier.NotifyFailure(taskID, reason)
	}
	return nil
}

// handleReviewRequested moves the Task to review and spawns a Reviewer pane
// on demand (OpenPane is idempotent, so this is safe to call on every
// occurrence).
func (l *Loop) handleReviewRequested(e domain.Event) error {
	var payload domain.ReviewRequestedPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("decode review-requested payload: %w", err)
	}

	task, err := l.store.GetTask(payload.TaskID)
	if err != nil {
		return fmt.Errorf("get task %s: %w", payload.TaskID, err)
	}
	if domain.LegalTransition(task.Status, domain.TaskReview) {
		if err := l.store.UpdateTaskStatus(payload.TaskID, domain.TaskReview, ""); err != nil {
			return fmt.Errorf("update task %s to review: %w", payload.TaskID, err)
		}
	}

	if _, err := l.panes.OpenPane(ReviewerPaneHandle, l.reviewerDir, l.reviewerCmd); err != nil {
		return fmt.Errorf("open reviewer pane: %w", err)
	}

	l.logger.Printf("orchestrator: task %s -> review (pr %s)", payload.TaskID, payload.PRURL)
	return nil
}

// handleReviewApproved completes the Task, tears down its Worker's pane and
// workspace, removes the Worker record, and emits the completion
// notification.
func (l *Loop) handleReviewApproved(e domain.Event) error {
	var payload domain.ReviewApprovedPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("decode review-approved payload: %w", err)
	}

	task, err := l.store.GetTask(payload.TaskID)
	if err != nil {
		return fmt.Errorf("get task %s: %w", payload.TaskID, err)
	}
	if task.Status == domain.TaskCompleted {
		return nil // already converged on a prior (crash-interrupted) attempt
	}

	workerID := task.WorkerID
	if err := l.store.UpdateTaskStatus(payload.TaskID, domain.TaskCompleted, ""); err != nil {
		return fmt.Errorf("complete task %s: %w", payload.TaskID, err)
	}

	if workerID != "" {
		if w, err := l.store.GetWorker(workerID); err == nil {
			if w.PaneHandle != "" {
				if err := l.panes.ClosePane(w.PaneHandle); err != nil {
					l.logger.Printf("orchestrator: close pane %s: %v", w.PaneHandle, err)
				}
			}
		}
		if task.WorktreePath != "" {
			if err := l.workspace.RemoveWorkspace(task.WorktreePath); err != nil {
				l.logger.Printf("orchestrator: remove workspace %s: %v", task.WorktreePath, err)
			}
		}
		if err := l.store.RemoveWorker(workerID); err != nil {
			l.logger.Printf("orchestrator: remove worker %s: %v", workerID, err)
		}
	}

	if l.notifier != nil {
		l.notifier.NotifyCompleted(payload.TaskID, task.PRURL)
	}
	l.logger.Printf("orchestrator: task %s -> completed", payload.TaskID)
	return nil
}

// handleReviewDenied returns the Task to in_progress and wakes the bound
// Worker's pane with the feedback as an immediate hint (the Worker still
// must call check_events to retrieve it authoritatively; the wake-up here
// is best-effort).
func (l *Loop) handleReviewDenied(e domain.Event) error {
	var payload domain.ReviewDeniedPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("decode review-denied payload: %w", err)
	}

	task, err := l.store.GetTask(payload.TaskID)
	if err != nil {
		return fmt.Errorf("get task %s: %w", payload.TaskID, err)
	}
	if domain.LegalTransition(task.Status, domain.TaskInProgress) {
		if err := l.store.UpdateTaskStatus(payload.TaskID, domain.TaskInProgress, ""); err != nil {
			return fmt.Errorf("return task %s to in_progress: %w", payload.TaskID, err)
		}
	}

	if task.WorkerID != "" {
		if w, err := l.store.GetWorker(task.WorkerID); err == nil && w.PaneHandle != "" {
			hint := fmt.Sprintf("Review denied: %s. Call check_events for details.", payload.Feedback)
			if err := l.panes.SendText(w.PaneHandle, hint); err != nil {
				l.logger.Printf("orchestrator: wake worker pane %s: %v", w.PaneHandle, err)
			}
		}
	}

	l.logger.Printf("orchestrator: task %s -> in_progress (review denied)", payload.TaskID)
	return nil
}

// EmergencyStop is the administrative kill switch: close the Worker's pane,
// mark its Task failed, remove the Worker, and record the reason.
// Synchronous: state transitions commit before returning.
func (l *Loop) EmergencyStop(workerID, reason string) error {
	w, err := l.store.GetWorker(workerID)
	if err != nil {
		return fmt.Errorf("emergency stop: get worker %s: %w", workerID, err)
	}

	if w.PaneHandle != "" {
		if err := l.panes.ClosePane(w.PaneHandle); err != nil {
			l.logger.Printf("orchestrator: emergency stop: close pane %s: %v", w.PaneHandle, err)
		}
	}

	if w.TaskID != "" {
		if task, err := l.store.GetTask(w.TaskID); err == nil {
			if !domain.Terminal(task.Status) {
				if err := l.store.UpdateTaskStatus(w.TaskID, domain.TaskFailed, ""); err != nil {
					return fmt.Errorf("emergency stop: fail task %s: %w", w.TaskID, err)
				}
			}
			if task.WorktreePath != "" {
				if err := l.workspace.RemoveWorkspace(task.WorktreePath); err != nil {
					l.logger.Printf("orchestrator: emergency stop: remove workspace: %v", err)
				}
			}
		}
		if l.notifier != nil {
			l.notifier.NotifyFailure(w.TaskID, reason)
		}
	}

	return l.store.RemoveWorker(workerID)
}

// shellQuote wraps s in single quotes for safe inclusion in the shell
// command line panemgr hands to tmux new-session, escaping any embedded quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Package domain holds orchestration entities shared across the kernel.
// It has no dependencies on other internal packages.
package domain

import "time"

// EventType identifies the kind of fact an Event records.
type EventType string

const (
	EventTaskCreate      EventType = "task-create"
	EventReviewRequested EventType = "review-requested"
	EventReviewApproved  EventType = "review-approved"
	EventReviewDenied    EventType = "review-denied"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// WorkerStatus is the lifecycle state of a Worker.
type WorkerStatus string

const (
	WorkerIdle    WorkerStatus = "idle"
	WorkerRunning WorkerStatus = "running"
)

// Event is an immutable, append-only record of a state-changing fact.
// Seq is assigned by the Store and is unique and strictly increasing.
type Event struct {
	ID        int64     `json:"id"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id"`
	Payload   []byte    `json:"payload"`
	Processed bool      `json:"processed"`
}

// TaskCreatePayload is the payload of a task-create event.
type TaskCreatePayload struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	Context     string `json:"context,omitempty"`
	BranchName  string `json:"branch_name,omitempty"`
}

// ReviewRequestedPayload is the payload of a review-requested event.
type ReviewRequestedPayload struct {
	TaskID  string `json:"task_id"`
	PRURL   string `json:"pr_url"`
	Summary string `json:"summary"`
}

// ReviewApprovedPayload is the payload of a review-approved event.
type ReviewApprovedPayload struct {
	TaskID string `json:"task_id"`
}

// ReviewDeniedPayload is the payload of a review-denied event.
type ReviewDeniedPayload struct {
	TaskID   string `json:"task_id"`
	Feedback string `json:"feedback"`
}

// Task tracks a unit of work routed through the orchestration kernel.
type Task struct {
	ID           string     `json:"id"`
	Status       TaskStatus `json:"status"`
	WorkerID     string     `json:"worker_id,omitempty"`
	Description  string     `json:"description"`
	Context      string     `json:"context,omitempty"`
	WorktreePath string     `json:"worktree_path,omitempty"`
	BranchName   string     `json:"branch_name,omitempty"`
	PRURL        string     `json:"pr_url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Worker is a per-task agent process tracked for liveness and cleanup.
type Worker struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	TaskID        string       `json:"task_id,omitempty"`
	PaneHandle    string       `json:"pane_handle,omitempty"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

// legalTransitions enumerates every allowed Task status edge. No other edge exists.
var legalTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskPending:    {TaskInProgress: true, TaskFailed: true},
	TaskInProgress: {TaskReview: true, TaskFailed: true},
	TaskReview:     {TaskInProgress: true, TaskCompleted: true, TaskFailed: true},
	TaskCompleted:  {},
	TaskFailed:     {},
}

// LegalTransition reports whether moving a Task from `from` to `to` is an allowed edge.
func LegalTransition(from, to TaskStatus) bool {
	if from == to {
		return false
	}
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Terminal reports whether status is a terminal Task state.
func Terminal(status TaskStatus) bool {
	return status == TaskCompleted || status == TaskFailed
}

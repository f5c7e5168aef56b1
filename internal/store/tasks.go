package store

import (
	"fmt"
	"time"

	"github.com/aio-dev/aio/internal/domain"
)

// UpsertTask inserts a new Task or, if one with the same ID exists, replaces
// its mutable fields. Used by the submit_task tool to record a newly
// submitted Task.
func (s *Store) UpsertTask(t domain.Task) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, status, worker_id, description, context, worktree_path, branch_name, pr_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			worker_id = excluded.worker_id,
			description = excluded.description,
			context = excluded.context,
			worktree_path = excluded.worktree_path,
			branch_name = excluded.branch_name,
			pr_url = excluded.pr_url,
			updated_at = excluded.updated_at`,
		t.ID, string(t.Status), t.WorkerID, t.Description, t.Context, t.WorktreePath, t.BranchName, t.PRURL,
		t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert task: %v", ErrTransientIO, err)
	}
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var status, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &status, &t.WorkerID, &t.Description, &t.Context, &t.WorktreePath, &t.BranchName, &t.PRURL, &createdAt, &updatedAt); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskStatus(status)
	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.Task{}, err
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

const taskColumns = `id, status, worker_id, description, context, worktree_path, branch_name, pr_url, created_at, updated_at`

// GetTask returns a single Task by id, or ErrNotFound.
func (s *Store) GetTask(id string) (domain.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if isNoRows(err) {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: get task: %v", ErrTransientIO, err)
	}
	return t, nil
}

// ListTasks returns every Task, ordered by creation time.
func (s *Store) ListTasks() ([]domain.Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %v", ErrTransientIO, err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan task: %v", ErrTransientIO, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate tasks: %v", ErrTransientIO, err)
	}
	return tasks, nil
}

// ListTasksByStatus returns every Task with the given status, oldest first.
// Used by Reviewer's claim_next_review (oldest Task in `review`).
func (s *Store) ListTasksByStatus(status domain.TaskStatus) ([]domain.Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY updated_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks by status: %v", ErrTransientIO, err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan task: %v", ErrTransientIO, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate tasks: %v", ErrTransientIO, err)
	}
	return tasks, nil
}

// UpdateTaskStatus transitions a Task's status, rejecting illegal edges per
// the task-lifecycle invariant. assignWorkerID, if non-empty, sets worker_id
// atomically with the status change (used on task-create dispatch).
func (s *Store) UpdateTaskStatus(id string, to domain.TaskStatus, assignWorkerID string) error {
	t, err := s.GetTask(id)
	if err != nil {
		return err
	}
	if !domain.LegalTransition(t.Status, to) {
		return fmt.Errorf("task %s: %s -> %s: %w", id, t.Status, to, ErrConflict)
	}
	workerID := t.WorkerID
	if assignWorkerID != "" {
		workerID = assignWorkerID
	}
	_, err = s.db.Exec(
		`UPDATE tasks SET status = ?, worker_id = ?, updated_at = ? WHERE id = ?`,
		string(to), workerID, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("%w: update task status: %v", ErrTransientIO, err)
	}
	return nil
}

// SetPRURL records the task's pull-request URL, idempotently. Calling it
// again with a different URL after one is already set is a no-op that
// returns the original URL (create_pr's idempotence contract).
func (s *Store) SetPRURL(id, prURL string) (string, error) {
	t, err := s.GetTask(id)
	if err != nil {
		return "", err
	}
	if t.PRURL != "" {
		return t.PRURL, nil
	}
	_, err = s.db.Exec(`UPDATE tasks SET pr_url = ?, updated_at = ? WHERE id = ?`, prURL, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return "", fmt.Errorf("%w: set pr url: %v", ErrTransientIO, err)
	}
	return prURL, nil
}

// SetWorktree records the workspace path and branch assigned to a task.
func (s *Store) SetWorktree(id, path, branch string) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET worktree_path = ?, branch_name = ?, updated_at = ? WHERE id = ?`,
		path, branch, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("%w: set worktree: %v", ErrTransientIO, err)
	}
	return nil
}

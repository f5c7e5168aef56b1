package store

import (
	"fmt"
	"time"

	"github.com/aio-dev/aio/internal/domain"
)

const workerColumns = `id, status, task_id, pane_handle, last_heartbeat`

// RegisterWorker inserts a new Worker row, or reuses one already registered
// for the same id (pane-open idempotence on crash replay).
func (s *Store) RegisterWorker(w domain.Worker) error {
	if w.LastHeartbeat.IsZero() {
		w.LastHeartbeat = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO workers (id, status, task_id, pane_handle, last_heartbeat) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, task_id = excluded.task_id, pane_handle = excluded.pane_handle`,
		w.ID, string(w.Status), w.TaskID, w.PaneHandle, w.LastHeartbeat.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: register worker: %v", ErrTransientIO, err)
	}
	return nil
}

func scanWorker(row interface{ Scan(...any) error }) (domain.Worker, error) {
	var w domain.Worker
	var status, lastHeartbeat string
	if err := row.Scan(&w.ID, &status, &w.TaskID, &w.PaneHandle, &lastHeartbeat); err != nil {
		return domain.Worker{}, err
	}
	w.Status = domain.WorkerStatus(status)
	t, err := time.Parse(time.RFC3339Nano, lastHeartbeat)
	if err != nil {
		return domain.Worker{}, err
	}
	w.LastHeartbeat = t
	return w, nil
}

// GetWorker returns a single Worker by id, or ErrNotFound.
func (s *Store) GetWorker(id string) (domain.Worker, error) {
	row := s.db.QueryRow(`SELECT `+workerColumns+` FROM workers WHERE id = ?`, id)
	w, err := scanWorker(row)
	if isNoRows(err) {
		return domain.Worker{}, fmt.Errorf("worker %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Worker{}, fmt.Errorf("%w: get worker: %v", ErrTransientIO, err)
	}
	return w, nil
}

// ListActiveWorkers returns every registered Worker.
func (s *Store) ListActiveWorkers() ([]domain.Worker, error) {
	rows, err := s.db.Query(`SELECT ` + workerColumns + ` FROM workers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list workers: %v", ErrTransientIO, err)
	}
	defer rows.Close()

	var workers []domain.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan worker: %v", ErrTransientIO, err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate workers: %v", ErrTransientIO, err)
	}
	return workers, nil
}

// UpdateHeartbeat bumps a Worker's last_heartbeat to now. Monotonic: a
// heartbeat older than the recorded one is ignored rather than applied.
func (s *Store) UpdateHeartbeat(id string) error {
	w, err := s.GetWorker(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if !now.After(w.LastHeartbeat) {
		return nil
	}
	_, err = s.db.Exec(`UPDATE workers SET last_heartbeat = ? WHERE id = ?`, now.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("%w: update heartbeat: %v", ErrTransientIO, err)
	}
	return nil
}

// SetWorkerTask assigns (or clears, if taskID is empty) the task a Worker is bound to.
func (s *Store) SetWorkerTask(id, taskID string) error {
	_, err := s.db.Exec(`UPDATE workers SET task_id = ? WHERE id = ?`, taskID, id)
	if err != nil {
		return fmt.Errorf("%w: set worker task: %v", ErrTransientIO, err)
	}
	return nil
}

// RemoveWorker deletes a Worker record. Callers are responsible for tearing
// down the bound pane and workspace first. Once the row is gone the Worker
// no longer appears in ListActiveWorkers, from which the Notifier's
// recipient list is built; its delivery_cursors row is left in place.
func (s *Store) RemoveWorker(id string) error {
	_, err := s.db.Exec(`DELETE FROM workers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: remove worker: %v", ErrTransientIO, err)
	}
	return nil
}

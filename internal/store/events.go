package store

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/aio-dev/aio/internal/domain"
)

// AppendEvent allocates the next sequence number and writes the event in one
// transaction, satisfying the uniqueness and monotonicity invariants on seq.
func (s *Store) AppendEvent(eventType domain.EventType, taskID string, payload []byte) (seq int64, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", ErrTransientIO, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var maxSeq sql.NullInt64
	if err = tx.QueryRow(`SELECT MAX(seq) FROM events`).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("%w: max seq: %v", ErrTransientIO, err)
	}
	seq = maxSeq.Int64 + 1

	_, err = tx.Exec(
		`INSERT INTO events (seq, created_at, type, task_id, payload, processed) VALUES (?, ?, ?, ?, ?, 0)`,
		seq, time.Now().UTC().Format(time.RFC3339Nano), string(eventType), taskID, string(payload),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert event: %v", ErrTransientIO, err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", ErrTransientIO, err)
	}
	s.touchSignal()
	return seq, nil
}

// touchSignal updates the mtime of the Notifier's fsnotify target. Best
// effort: a failure here only costs the Notifier its fast path, since it
// still polls on its own poll interval.
func (s *Store) touchSignal() {
	if s.signalPath == "" {
		return
	}
	now := time.Now()
	if err := os.Chtimes(s.signalPath, now, now); err != nil {
		f, createErr := os.Create(s.signalPath)
		if createErr == nil {
			f.Close()
		}
	}
}

// UnprocessedEvents returns events with processed=false, ordered by seq ascending.
func (s *Store) UnprocessedEvents(limit int) ([]domain.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, seq, created_at, type, task_id, payload, processed FROM events WHERE processed = 0 ORDER BY seq ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: unprocessed events: %v", ErrTransientIO, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var createdAt, evType, payload string
		var processed int
		if err := rows.Scan(&e.ID, &e.Seq, &createdAt, &evType, &e.TaskID, &payload, &processed); err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", ErrTransientIO, err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("%w: parse event timestamp: %v", ErrTransientIO, err)
		}
		e.CreatedAt = t
		e.Type = domain.EventType(evType)
		e.Payload = []byte(payload)
		e.Processed = processed != 0
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate events: %v", ErrTransientIO, err)
	}
	return events, nil
}

// MarkProcessed sets processed=true for one event. Idempotent: marking an
// already-processed event again is a no-op, never a false->... flip backward.
func (s *Store) MarkProcessed(eventID int64) error {
	_, err := s.db.Exec(`UPDATE events SET processed = 1 WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("%w: mark processed: %v", ErrTransientIO, err)
	}
	return nil
}

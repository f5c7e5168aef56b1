package store

import "fmt"

// CursorGet returns the last delivered seq for recipient, or 0 if the
// recipient has never been delivered to.
func (s *Store) CursorGet(recipient string) (int64, error) {
	var seq int64
	err := s.db.QueryRow(`SELECT seq FROM delivery_cursors WHERE recipient = ?`, recipient).Scan(&seq)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: cursor get: %v", ErrTransientIO, err)
	}
	return seq, nil
}

// CursorPut advances recipient's delivery cursor to seq. Monotonic: a seq
// lower than what's already recorded is ignored, so redelivery from an
// out-of-order retry can never move a cursor backward.
func (s *Store) CursorPut(recipient string, seq int64) error {
	_, err := s.db.Exec(
		`INSERT INTO delivery_cursors (recipient, seq) VALUES (?, ?)
		 ON CONFLICT(recipient) DO UPDATE SET seq = MAX(seq, excluded.seq)`,
		recipient, seq,
	)
	if err != nil {
		return fmt.Errorf("%w: cursor put: %v", ErrTransientIO, err)
	}
	return nil
}

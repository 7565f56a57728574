package store

import (
	"fmt"
	"time"
)

// PruneExpiredSessions removes sessions that have not authenticated
// (neither password nor OTP timestamp) for longer than maxAge, keeping
// the sessions table from growing unboundedly with abandoned logins.
// Active sessions are unaffected — GetAuth's own TTL check (spec §4.B)
// governs whether a still-present session is still usable.
func (s *Store) PruneExpiredSessions(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := s.db.Exec(`DELETE FROM sessions WHERE pwd < ? AND otp < ?`, cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PruneOldObjectVersions deletes non-newest object revisions older than
// maxAge, bounding the history kept for frequently-edited objects (e.g.
// host/user records) while never touching the current (newest) revision.
func (s *Store) PruneOldObjectVersions(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := s.db.Exec(`DELETE FROM objects WHERE newest = 0 AND time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune object versions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PruneDismissedMessages deletes host messages dismissed more than maxAge
// ago (original_source/server-rs/src/msg.rs keeps only a rolling window
// of dismissed messages; undismissed ones are never pruned here).
func (s *Store) PruneDismissedMessages(maxAge time.Duration) (int64, error) {
	cutoff := float64(time.Now().Add(-maxAge).UnixNano()) / 1e9
	res, err := s.db.Exec(`DELETE FROM messages WHERE dismissed = 1 AND dismissedTime < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune dismissed messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

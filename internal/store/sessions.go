package store

import (
	"database/sql"
	"fmt"

	"github.com/antialize/simple-admin-sub001/internal/auth"
)

// GetSession implements auth.Store.
func (s *Store) GetSession(sid string) (*auth.Session, error) {
	var sess auth.Session
	err := s.db.QueryRow(`SELECT sid, user, host, pwd, otp FROM sessions WHERE sid = ?`, sid).
		Scan(&sess.SID, &sess.User, &sess.Host, &sess.PwdTS, &sess.OtpTS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// PutSession implements auth.Store: insert-or-update by sid.
func (s *Store) PutSession(sess *auth.Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (sid, user, host, pwd, otp) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sid) DO UPDATE SET user = excluded.user, host = excluded.host, pwd = excluded.pwd, otp = excluded.otp`,
		sess.SID, sess.User, sess.Host, sess.PwdTS, sess.OtpTS)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// DeleteSession implements auth.Store.
func (s *Store) DeleteSession(sid string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE sid = ?`, sid); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

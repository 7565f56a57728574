package store

import (
	"fmt"
	"time"

	"github.com/antialize/simple-admin-sub001/internal/events"
)

// Message is a dismissible host-originated informational/alert event
// (spec §12 supplemented feature, grounded on original_source/server-rs/src/msg.rs).
type Message struct {
	ID            int64
	Host          string
	Type          string
	Subtype       string
	Message       string
	FullMessage   bool // false if Message was truncated to 1000 chars
	URL           string
	Time          float64
	Dismissed     bool
	DismissedTime float64
}

const messageTruncateLen = 1000

// AddMessage records a new host message and broadcasts AddMessage.
func (s *Store) AddMessage(host, typ, subtype, message, url string) (int64, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := s.db.Exec(`INSERT INTO messages (host, type, subtype, message, url, time, dismissed)
		VALUES (?, ?, ?, ?, ?, ?, 0)`, host, typ, subtype, message, url, now)
	if err != nil {
		return 0, fmt.Errorf("add message: %w", err)
	}
	id, _ := res.LastInsertId()

	if s.bus != nil {
		full := message
		fullMessage := true
		if len(full) > messageTruncateLen {
			full = full[:messageTruncateLen]
			fullMessage = false
		}
		s.bus.Publish(events.Event{
			Type: events.EventAddMessage,
			Data: Message{
				ID: id, Host: host, Type: typ, Subtype: subtype,
				Message: full, FullMessage: fullMessage, URL: url, Time: now,
			},
			Timestamp: time.Now(),
		})
	}
	return id, nil
}

// ListRecentMessages returns non-dismissed messages, plus any dismissed
// within the last two days (matching original_source/server-rs/src/msg.rs::get_resent).
func (s *Store) ListRecentMessages() ([]Message, error) {
	cutoff := float64(time.Now().Add(-48*time.Hour).UnixNano()) / 1e9
	rows, err := s.db.Query(`SELECT id, host, type, subtype, message, url, time, dismissed, dismissedTime
		FROM messages WHERE NOT dismissed OR dismissedTime > ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var dismissedTime *float64
		if err := rows.Scan(&m.ID, &m.Host, &m.Type, &m.Subtype, &m.Message, &m.URL, &m.Time, &m.Dismissed, &dismissedTime); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if dismissedTime != nil {
			m.DismissedTime = *dismissedTime
		}
		m.FullMessage = len(m.Message) <= messageTruncateLen
		if !m.FullMessage {
			m.Message = m.Message[:messageTruncateLen]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMessageFullText returns the untruncated message body for id.
func (s *Store) GetMessageFullText(id int64) (string, error) {
	var msg string
	err := s.db.QueryRow(`SELECT message FROM messages WHERE id = ?`, id).Scan(&msg)
	if err != nil {
		return "", fmt.Errorf("get message text: %w", err)
	}
	return msg, nil
}

// DismissMessage marks a message dismissed.
func (s *Store) DismissMessage(id int64) error {
	now := float64(time.Now().UnixNano()) / 1e9
	_, err := s.db.Exec(`UPDATE messages SET dismissed = 1, dismissedTime = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("dismiss message: %w", err)
	}
	return nil
}

// CountUndismissed returns the number of non-dismissed messages with content.
func (s *Store) CountUndismissed() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT count(*) FROM messages WHERE NOT dismissed AND message IS NOT NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count undismissed messages: %w", err)
	}
	return n, nil
}

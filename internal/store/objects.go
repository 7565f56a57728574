package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/antialize/simple-admin-sub001/internal/events"
)

// Object is one versioned, typed, named record in the central store.
type Object struct {
	ID       int64           `json:"id"`
	Type     int             `json:"type"`
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Comment  string          `json:"comment,omitempty"`
	Content  json.RawMessage `json:"content"`
	Version  int             `json:"version"`
	Time     time.Time       `json:"time"`
	Author   string          `json:"author,omitempty"`
	Newest   bool            `json:"newest"`
}

// ObjectSummary is the lightweight index entry returned for
// RequestInitialState / SetInitialState (name and id per type).
type ObjectSummary struct {
	ID   int64  `json:"id"`
	Type int    `json:"type"`
	Name string `json:"name"`
}

// GetObject returns the newest revision of object id, or nil if it doesn't
// exist or has been deleted.
func (s *Store) GetObject(id int64) (*Object, error) {
	return s.getObject(`SELECT id, type, name, category, comment, content, version, time, author, newest
		FROM objects WHERE id = ? AND newest = 1 AND deleted = 0`, id)
}

// GetObjectVersion returns a specific historical revision, ignoring the
// deleted flag (history is retained even for deleted objects).
func (s *Store) GetObjectVersion(id int64, version int) (*Object, error) {
	return s.getObject(`SELECT id, type, name, category, comment, content, version, time, author, newest
		FROM objects WHERE id = ? AND version = ?`, id, version)
}

func (s *Store) getObject(query string, args ...interface{}) (*Object, error) {
	row := s.db.QueryRow(query, args...)
	var o Object
	var ts int64
	var content string
	if err := row.Scan(&o.ID, &o.Type, &o.Name, &o.Category, &o.Comment, &content, &o.Version, &ts, &o.Author, &o.Newest); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	o.Content = json.RawMessage(content)
	o.Time = time.Unix(ts, 0)
	return &o, nil
}

// ListObjects returns the newest, non-deleted revision of every object of
// the given type, for the initial-state index.
func (s *Store) ListObjects(typeID int) ([]ObjectSummary, error) {
	rows, err := s.db.Query(`SELECT id, type, name FROM objects WHERE type = ? AND newest = 1 AND deleted = 0`, typeID)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var out []ObjectSummary
	for rows.Next() {
		var os ObjectSummary
		if err := rows.Scan(&os.ID, &os.Type, &os.Name); err != nil {
			return nil, fmt.Errorf("scan object summary: %w", err)
		}
		out = append(out, os)
	}
	return out, rows.Err()
}

// ChangeObject writes a new revision of obj, allocating an id if obj.ID is
// zero. Writes to the same object id are serialised so the returned version
// is always strictly one greater than the previous newest revision (spec
// §4.C / §8 monotonic-version invariant). Posts ObjectChanged to the bus.
func (s *Store) ChangeObject(obj Object, author string) (id int64, version int, err error) {
	s.objMu.Lock()
	defer s.objMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id = obj.ID
	version = 1
	if id == 0 {
		id, err = s.nextObjectID(tx)
		if err != nil {
			return 0, 0, err
		}
	} else {
		var prevVersion int
		err = tx.QueryRow(`SELECT version FROM objects WHERE id = ? AND newest = 1`, id).Scan(&prevVersion)
		switch {
		case err == sql.ErrNoRows:
			version = 1
		case err != nil:
			return 0, 0, fmt.Errorf("lookup previous version: %w", err)
		default:
			version = prevVersion + 1
			if _, err := tx.Exec(`UPDATE objects SET newest = 0 WHERE id = ? AND newest = 1`, id); err != nil {
				return 0, 0, fmt.Errorf("clear previous newest: %w", err)
			}
		}
	}

	now := time.Now().Unix()
	_, err = tx.Exec(`INSERT INTO objects (id, type, name, category, comment, content, version, time, author, newest, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0)`,
		id, obj.Type, obj.Name, obj.Category, obj.Comment, string(obj.Content), version, now, author)
	if err != nil {
		return 0, 0, fmt.Errorf("insert object: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      events.EventObjectChanged,
			Data:      ObjectSummary{ID: id, Type: obj.Type, Name: obj.Name},
			Timestamp: time.Now(),
		})
	}
	return id, version, nil
}

// DeleteObject marks the current (newest) revision of object id as
// deleted, leaving its newest flag set, without erasing version history.
func (s *Store) DeleteObject(id int64, author string) error {
	s.objMu.Lock()
	defer s.objMu.Unlock()

	res, err := s.db.Exec(`UPDATE objects SET deleted = 1 WHERE id = ? AND newest = 1`, id)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      events.EventObjectChanged,
			Data:      ObjectSummary{ID: id},
			Timestamp: time.Now(),
		})
	}
	return nil
}

func (s *Store) nextObjectID(tx *sql.Tx) (int64, error) {
	var next int64
	if err := tx.QueryRow(`SELECT next FROM object_ids`).Scan(&next); err != nil {
		return 0, fmt.Errorf("read next object id: %w", err)
	}
	if _, err := tx.Exec(`UPDATE object_ids SET next = ?`, next+1); err != nil {
		return 0, fmt.Errorf("advance next object id: %w", err)
	}
	return next, nil
}

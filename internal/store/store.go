// Package store is the Object/State Store Gateway (spec component C): a
// SQLite-backed (WAL journal) versioned object store, session table, host
// message log, and deployment history, with an ObjectChanged broadcast hook.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/antialize/simple-admin-sub001/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	id       INTEGER NOT NULL,
	type     INTEGER NOT NULL,
	name     TEXT NOT NULL,
	category TEXT,
	comment  TEXT,
	content  TEXT NOT NULL,
	version  INTEGER NOT NULL,
	time     INTEGER NOT NULL,
	author   TEXT,
	newest   INTEGER NOT NULL DEFAULT 0,
	deleted  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (id, version)
);
CREATE INDEX IF NOT EXISTS idx_objects_newest ON objects(id) WHERE newest = 1;
CREATE INDEX IF NOT EXISTS idx_objects_type_name ON objects(type, name) WHERE newest = 1;

CREATE TABLE IF NOT EXISTS sessions (
	sid  TEXT PRIMARY KEY,
	user TEXT NOT NULL,
	host TEXT,
	pwd  INTEGER NOT NULL DEFAULT 0,
	otp  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	host          TEXT,
	type          TEXT,
	subtype       TEXT,
	message       TEXT,
	url           TEXT,
	time          REAL NOT NULL,
	dismissed     INTEGER NOT NULL DEFAULT 0,
	dismissedTime REAL
);

CREATE TABLE IF NOT EXISTS deployments (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	host      TEXT NOT NULL,
	project   TEXT,
	container TEXT,
	hash      TEXT,
	ref       TEXT,
	status    TEXT NOT NULL,
	time      REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS object_ids (
	next INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS docker_image_tags (
	image   TEXT NOT NULL,
	tag     TEXT NOT NULL,
	hash    TEXT NOT NULL,
	time    REAL NOT NULL,
	user    TEXT,
	pin     INTEGER NOT NULL DEFAULT 0,
	labels  TEXT,
	removed REAL,
	PRIMARY KEY (image, tag, hash)
);
`

// Store is the SQLite-backed gateway. Writes to the same object id are
// serialised by objMu (in addition to SQLite's own writer lock) so that
// "read current version, write next version" is atomic across the whole
// process, matching the spec's change_object invariant.
type Store struct {
	db    *sql.DB
	bus   *events.Bus
	objMu sync.Mutex
}

// Open opens (creating if necessary) a SQLite database at path in WAL mode
// and ensures the schema exists.
func Open(path string, bus *events.Bus) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serialises writers; avoid pool contention on a single file
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	var count int
	if err := db.QueryRow(`SELECT count(*) FROM object_ids`).Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("check object_ids: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO object_ids (next) VALUES (1)`); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed object_ids: %w", err)
		}
	}
	return &Store{db: db, bus: bus}, nil
}

func (s *Store) Close() error { return s.db.Close() }

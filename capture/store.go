// Package capture persists the traffic log of debugging sessions in a
// SQLite database so that a run can be inspected after the fact.
package capture

import (
	"fmt"
	"time"

	"github.com/jaracil/serdbg"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	session   TEXT    NOT NULL,
	dir       TEXT    NOT NULL,
	at        INTEGER NOT NULL,
	data      BLOB    NOT NULL,
	detail    TEXT    NOT NULL DEFAULT '',
	logged_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS records_session ON records (session, id);
`

type row struct {
	ID       int64  `db:"id"`
	Session  string `db:"session"`
	Dir      string `db:"dir"`
	At       int64  `db:"at"`
	Data     []byte `db:"data"`
	Detail   string `db:"detail"`
	LoggedAt int64  `db:"logged_at"`
}

// Store is a LogSink writing every record to SQLite.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens (creating if needed) the capture database at path. Use
// ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture database: %w", err)
	}

	// A single connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping capture database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create capture schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Log implements serdbg.LogSink.
func (s *Store) Log(rec serdbg.LogRecord) error {
	r := row{
		Session:  rec.Session,
		Dir:      rec.Dir.String(),
		At:       rec.At,
		Data:     append([]byte{}, rec.Data...),
		Detail:   rec.Detail,
		LoggedAt: s.now().UnixNano(),
	}
	_, err := s.db.NamedExec(`INSERT INTO records (session, dir, at, data, detail, logged_at)
		VALUES (:session, :dir, :at, :data, :detail, :logged_at)`, r)
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

// Records returns the records of a session in the order they were logged.
func (s *Store) Records(session string) ([]serdbg.LogRecord, error) {
	var rows []row
	err := s.db.Select(&rows, s.db.Rebind(`SELECT id, session, dir, at, data, detail, logged_at
		FROM records WHERE session = ? ORDER BY id`), session)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	recs := make([]serdbg.LogRecord, len(rows))
	for i, r := range rows {
		dir := serdbg.DirRx
		if r.Dir == serdbg.DirTx.String() {
			dir = serdbg.DirTx
		}
		recs[i] = serdbg.LogRecord{
			Session: r.Session,
			Dir:     dir,
			At:      r.At,
			Data:    r.Data,
			Detail:  r.Detail,
		}
	}
	return recs, nil
}

// Sessions returns the ids of the captured sessions, oldest first.
func (s *Store) Sessions() ([]string, error) {
	var ids []string
	err := s.db.Select(&ids, `SELECT session FROM records GROUP BY session ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	return ids, nil
}

// Package sqlite provides chat stores on a local SQLite database
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hay-kot/parley/internal/core/chat"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sender      TEXT    NOT NULL,
	receiver    TEXT    NOT NULL,
	text        TEXT    NOT NULL,
	sent_at     TEXT    NOT NULL,
	received_at TEXT    NOT NULL,
	read        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver, read);

CREATE TABLE IF NOT EXISTS peers (
	username  TEXT PRIMARY KEY,
	address   TEXT    NOT NULL DEFAULT '',
	last_seen INTEGER NOT NULL DEFAULT 0,
	departed  INTEGER NOT NULL DEFAULT 0
);
`

// DB is an open parley database. Messages and Peers share the connection.
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database file at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure database: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Messages returns the message store view of the database.
func (d *DB) Messages() *MsgStore {
	return &MsgStore{db: d}
}

// Peers returns the peer directory view of the database.
func (d *DB) Peers() *PeerDir {
	return &PeerDir{db: d}
}

// exec runs a write statement under the write lock.
func (d *DB) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return res, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", chat.ErrStorageUnavailable, op, err)
}

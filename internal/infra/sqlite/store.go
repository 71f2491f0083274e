// Package sqlite persists mistakes, seen questions and accounts in a single
// SQLite file, for deployments without Postgres or Redis.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS mistakes (
	user_id       TEXT    NOT NULL,
	subject       TEXT    NOT NULL,
	question_id   TEXT    NOT NULL,
	question_json TEXT    NOT NULL,
	times_wrong   INTEGER NOT NULL DEFAULT 1,
	updated_at    INTEGER NOT NULL,
	PRIMARY KEY (user_id, subject, question_id)
);
CREATE TABLE IF NOT EXISTS seen (
	user_id     TEXT NOT NULL,
	subject     TEXT NOT NULL,
	question_id TEXT NOT NULL,
	PRIMARY KEY (user_id, subject, question_id)
);
CREATE TABLE IF NOT EXISTS users (
	id            TEXT    PRIMARY KEY,
	email         TEXT    NOT NULL UNIQUE,
	username      TEXT    NOT NULL,
	password_hash TEXT    NOT NULL,
	created_at    INTEGER NOT NULL
);`

// DB wraps the database handle shared by the sqlite stores.
type DB struct {
	db *sql.DB
}

// Open connects to the SQLite database at dsn, applies pragmas and creates
// the tables if they are missing.
func Open(dsn string) (*DB, error) {
	if err := ensureDir(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps the read-modify-write in AddMistakes serialized.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) MistakeStore() *MistakeStore {
	return NewMistakeStore(d)
}

func (d *DB) SeenStore() *SeenStore {
	return &SeenStore{db: d.db}
}

func (d *DB) UserStore() *UserStore {
	return &UserStore{db: d.db}
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func ensureDir(dsn string) error {
	if dsn == "" || dsn[0] == ':' || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(dsn), 0o755)
}

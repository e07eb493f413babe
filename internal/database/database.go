// Package database persists peer accounts, server settings and the
// collision dispatch journal in SQLite.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// PeerRow is a remote authority allowed to report collisions.
type PeerRow struct {
	ID         int64
	Name       string
	SecretHash string
	CreatedAt  time.Time
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", path, err)
	}

	// WAL lets the journal writer and request handlers overlap.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database: wal: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database: foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS peers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		secret_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dispatch_journal (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		emitter TEXT NOT NULL DEFAULT '',
		emitter_state INTEGER NOT NULL DEFAULT 0,
		target TEXT NOT NULL DEFAULT '',
		target_state INTEGER NOT NULL DEFAULT 0,
		action TEXT NOT NULL DEFAULT '',
		target_kind TEXT NOT NULL DEFAULT '',
		network INTEGER NOT NULL DEFAULT 0,
		count INTEGER NOT NULL DEFAULT 1,
		error TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dispatch_journal_kind ON dispatch_journal(kind);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		slog.Error("database migration failed", "err", err)
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// CreatePeer stores a peer account and returns its id.
func (db *DB) CreatePeer(name, secretHash string) (int64, error) {
	res, err := db.conn.Exec("INSERT INTO peers (name, secret_hash) VALUES (?, ?)", name, secretHash)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetPeerByName returns the peer or nil when it does not exist.
func (db *DB) GetPeerByName(name string) (*PeerRow, error) {
	var p PeerRow
	err := db.conn.QueryRow(
		"SELECT id, name, secret_hash, created_at FROM peers WHERE name = ?", name,
	).Scan(&p.ID, &p.Name, &p.SecretHash, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PeerExists reports whether name is taken.
func (db *DB) PeerExists(name string) (bool, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM peers WHERE name = ?", name).Scan(&n)
	return n > 0, err
}

// GetSetting returns the stored value or "" when unset.
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetSetting upserts a setting.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

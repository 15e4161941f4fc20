// Package sqlite provides the persistent endpoint and tool-setting
// stores backed by pure-Go SQLite (modernc.org/sqlite) — no cgo required.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite database holding endpoint and tool configuration.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at the given path and
// applies pending migrations.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	sdb := &DB{db: db}
	if err := sdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return sdb, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// migrate applies the schema. Migrations are forward-only: tables are
// created if missing and newer columns are added to databases created
// by older releases. Existing rows are never rewritten.
func (d *DB) migrate() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS mcp_endpoints (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			name              TEXT NOT NULL UNIQUE,
			url               TEXT NOT NULL,
			enabled           INTEGER NOT NULL DEFAULT 1,
			connection_status TEXT NOT NULL DEFAULT 'disconnected',
			last_connected_at TEXT,
			connection_error  TEXT,
			created_at        TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS mcp_tool_settings (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			server_name        TEXT NOT NULL,
			tool_name          TEXT NOT NULL,
			enabled            INTEGER NOT NULL DEFAULT 1,
			custom_name        TEXT,
			custom_description TEXT,
			updated_at         TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(server_name, tool_name)
		)
	`)
	if err != nil {
		return err
	}

	// Status columns arrived after the first release; older databases
	// predate them.
	for _, col := range []struct{ name, ddl string }{
		{"connection_status", "ALTER TABLE mcp_endpoints ADD COLUMN connection_status TEXT NOT NULL DEFAULT 'disconnected'"},
		{"last_connected_at", "ALTER TABLE mcp_endpoints ADD COLUMN last_connected_at TEXT"},
		{"connection_error", "ALTER TABLE mcp_endpoints ADD COLUMN connection_error TEXT"},
	} {
		ok, err := d.hasColumn("mcp_endpoints", col.name)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := d.db.Exec(col.ddl); err != nil {
				return fmt.Errorf("add column %s: %w", col.name, err)
			}
		}
	}

	return nil
}

func (d *DB) hasColumn(table, column string) (bool, error) {
	rows, err := d.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

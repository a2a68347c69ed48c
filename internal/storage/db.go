package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DB wraps a *sql.DB opened against a single SQLite file and exposes the
// storage ports. No entity caches state across calls — every port method
// reads through to this handle.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and applies
// any pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline per process

	db := &DB{sql: sqlDB}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Tx runs fn inside a single transaction, committing on success and rolling
// back on error or panic. Every port method with a read-check-write
// sequence (budget consumption, turn append, execution recording, channel
// create) routes through this helper.
func (db *DB) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// migrate applies embedded migrations 0001.. forward-only, tracked in a
// schema_migrations table. This repo tried golang-migrate/migrate/v4 first
// (per the codeready-toolchain-tarsy and vanducng-goclaw examples); its
// sqlite3 driver requires the cgo mattn/go-sqlite3 driver, which conflicts
// with the pure-Go modernc.org/sqlite driver already in use, so the runner
// is hand-rolled while keeping the same forward-only, numbered-file
// contract those examples use.
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.sql.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version, err := versionOf(name)
		if err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}

		var count int
		if err := db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if count > 0 {
			continue
		}

		contents, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if err := db.Tx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range strings.Split(string(contents), ";") {
				stmt = strings.TrimSpace(stmt)
				if stmt == "" {
					continue
				}
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("exec: %w", err)
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`, version)
			return err
		}); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", version, name, err)
		}

		slog.Info("storage: applied migration", "version", version, "file", name)
	}

	return nil
}

// versionOf extracts the leading 4-digit sequence number from a migration
// file name, e.g. "0002_turns.sql" -> 2.
func versionOf(name string) (int, error) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, fmt.Errorf("missing version prefix")
	}
	return strconv.Atoi(name[:idx])
}

// Package sqlite is the authoritative family store behind the sync API.
// One database file holds every family; all writes for a save run inside a
// single SQL transaction so balance adjustments and the records that
// produced them land together.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/star-achiever/star/internal/clock"
)

// FileName is the database file created inside the storage directory.
const FileName = "star.db"

// schemaVersion is bumped whenever migrations() gains a statement that must
// run against existing databases.
const schemaVersion = 1

// DB wraps the SQLite connection.
type DB struct {
	db  *sql.DB
	clk clock.Clock
	log *slog.Logger
}

// Option customises a DB.
type Option func(*DB)

// WithClock overrides the clock used for created_at stamps.
func WithClock(c clock.Clock) Option { return func(db *DB) { db.clk = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(db *DB) { db.log = l } }

// Open creates or opens star.db inside dir and applies the schema.
func Open(dir string, opts ...Option) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	sqlDB, err := sql.Open("sqlite", filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite has a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{db: sqlDB, clk: clock.Real{}, log: slog.Default()}
	for _, opt := range opts {
		opt(db)
	}
	db.log = db.log.With("component", "sqlite")

	if err := db.applyPragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the connection.
func (db *DB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

func (db *DB) applyPragmas() error {
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.db.Exec(p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

func (db *DB) migrate() error {
	var version int
	if err := db.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for _, stmt := range migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if version < schemaVersion {
		if _, err := db.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		db.log.Info("schema migrated", "from", version, "to", schemaVersion)
	}
	return nil
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// migrations returns the schema statements. Each string is a single SQL
// statement.
func migrations() []string {
	return []string{
		// One row per family: profile, running totals and opaque blobs.
		`CREATE TABLE IF NOT EXISTS settings (
			family_id         TEXT PRIMARY KEY,
			user_name         TEXT NOT NULL DEFAULT '',
			theme_key         TEXT NOT NULL DEFAULT '',
			balance           INTEGER NOT NULL DEFAULT 0,
			lifetime_earned   INTEGER NOT NULL DEFAULT 0,
			achievements_data TEXT NOT NULL DEFAULT '[]',
			avatar_data       TEXT,
			created_at        INTEGER NOT NULL,
			updated_at        INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			family_id TEXT NOT NULL,
			id        TEXT NOT NULL,
			title     TEXT NOT NULL,
			category  TEXT NOT NULL,
			stars     INTEGER NOT NULL,
			icon      TEXT NOT NULL DEFAULT '',
			position  INTEGER NOT NULL,
			PRIMARY KEY (family_id, id)
		)`,

		`CREATE TABLE IF NOT EXISTS rewards (
			family_id TEXT NOT NULL,
			id        TEXT NOT NULL,
			title     TEXT NOT NULL,
			cost      INTEGER NOT NULL,
			icon      TEXT NOT NULL DEFAULT '',
			position  INTEGER NOT NULL,
			PRIMARY KEY (family_id, id)
		)`,

		`CREATE TABLE IF NOT EXISTS wishlist_goals (
			family_id     TEXT NOT NULL,
			id            TEXT NOT NULL,
			title         TEXT NOT NULL,
			target_cost   INTEGER NOT NULL,
			current_saved INTEGER NOT NULL DEFAULT 0,
			icon          TEXT NOT NULL DEFAULT '',
			position      INTEGER NOT NULL,
			PRIMARY KEY (family_id, id)
		)`,

		`CREATE TABLE IF NOT EXISTS task_logs (
			family_id  TEXT NOT NULL,
			date_key   TEXT NOT NULL,
			task_id    TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (family_id, date_key, task_id)
		)`,

		// Ledger. date is the UTC instant in a fixed-width layout so that
		// range filters compare lexically.
		`CREATE TABLE IF NOT EXISTS transactions (
			family_id   TEXT NOT NULL,
			id          TEXT NOT NULL,
			date        TEXT NOT NULL,
			date_key    TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			type        TEXT NOT NULL,
			kind        TEXT NOT NULL DEFAULT '',
			task_id     TEXT NOT NULL DEFAULT '',
			goal_id     TEXT NOT NULL DEFAULT '',
			is_revoked  INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			PRIMARY KEY (family_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_task_day ON transactions(family_id, task_id, date_key)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_created ON transactions(family_id, created_at)`,
	}
}

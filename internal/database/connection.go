package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("database: not found")

// Connect opens the database selected by dbType ("sqlite" or "postgres") and creates the schema.
// For sqlite the DSN is a file path; its directory is created if missing.
func Connect(dbType, dsn string) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "", "sqlite", "sqlite3":
		if dsn == "" {
			dsn = filepath.Join("data", "prepbot.db")
		}
		if !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		db, err = sqlx.Connect("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case "postgres", "postgresql":
		db, err = sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initializeSchema creates necessary tables if they don't exist.
// The DDL sticks to types both sqlite and postgres accept.
func initializeSchema(db *sqlx.DB) error {
	statements := []struct {
		name  string
		query string
	}{
		{"users table", `
			CREATE TABLE IF NOT EXISTS users (
				telegram_id BIGINT PRIMARY KEY,
				username TEXT NOT NULL DEFAULT '',
				first_name TEXT NOT NULL DEFAULT '',
				notification_enabled BOOLEAN NOT NULL DEFAULT TRUE,
				notification_hour INTEGER NOT NULL DEFAULT 18,
				items_per_session INTEGER NOT NULL DEFAULT 10,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`},
		{"items table", `
			CREATE TABLE IF NOT EXISTS items (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				prompt TEXT NOT NULL,
				answer TEXT NOT NULL,
				details TEXT NOT NULL DEFAULT '',
				topic TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`},
		{"items kind index", `CREATE INDEX IF NOT EXISTS idx_items_kind ON items (kind)`},
		{"review_records table", `
			CREATE TABLE IF NOT EXISTS review_records (
				user_id BIGINT NOT NULL,
				item_id TEXT NOT NULL,
				stage TEXT NOT NULL,
				repetition_count INTEGER NOT NULL DEFAULT 0,
				ease_factor DOUBLE PRECISION NOT NULL,
				interval_days INTEGER NOT NULL DEFAULT 0,
				due_at TIMESTAMP NOT NULL,
				last_reviewed_at TIMESTAMP NULL,
				lapse_count INTEGER NOT NULL DEFAULT 0,
				total_reviews INTEGER NOT NULL DEFAULT 0,
				correct_reviews INTEGER NOT NULL DEFAULT 0,
				version BIGINT NOT NULL,
				PRIMARY KEY (user_id, item_id)
			)`},
		{"review_records due index", `CREATE INDEX IF NOT EXISTS idx_review_records_due ON review_records (user_id, due_at)`},
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}

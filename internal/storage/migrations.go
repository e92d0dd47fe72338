package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV1_1Up,
		Down:    migrationV1_1Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- File registry. Times are unix milliseconds.
CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    category INTEGER NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    hash TEXT NOT NULL,
    ext TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    file_created_at INTEGER NOT NULL DEFAULT 0,
    file_modified_at INTEGER NOT NULL DEFAULT 0,
    is_invalid INTEGER NOT NULL DEFAULT 0,
    invalid_reason TEXT NOT NULL DEFAULT '',
    content_status INTEGER NOT NULL DEFAULT 1,
    content_status_msg TEXT NOT NULL DEFAULT '',
    meta_status INTEGER NOT NULL DEFAULT 1,
    meta_status_msg TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_name ON files(name);
CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_files_hash ON files(hash);
CREATE INDEX IF NOT EXISTS idx_files_updated ON files(updated_at);
CREATE INDEX IF NOT EXISTS idx_files_queue ON files(category, content_status, id);

-- One row per embedded chunk. Embeddings are 384 little-endian float32 values.
CREATE TABLE IF NOT EXISTS content_embeddings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id INTEGER NOT NULL,
    chunk_index INTEGER NOT NULL,
    chunk_text TEXT NOT NULL,
    embedding BLOB NOT NULL,
    FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_content_embeddings_file ON content_embeddings(file_id, chunk_index);

-- At most one metadata embedding per file
CREATE TABLE IF NOT EXISTS metadata_embeddings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id INTEGER NOT NULL UNIQUE,
    embedding BLOB NOT NULL,
    FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS metadata_embeddings;
DROP TABLE IF EXISTS content_embeddings;
DROP TABLE IF EXISTS files;
DROP TABLE IF EXISTS schema_version;
`

const migrationV1_1Up = `
-- One row per indexing run
CREATE TABLE IF NOT EXISTS indexing_tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    paths TEXT NOT NULL DEFAULT '',
    embedding_model TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    start_time INTEGER NOT NULL DEFAULT 0,
    end_time INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    total_cnt INTEGER NOT NULL DEFAULT 0,
    processed_cnt INTEGER NOT NULL DEFAULT 0,
    success_cnt INTEGER NOT NULL DEFAULT 0,
    failed_cnt INTEGER NOT NULL DEFAULT 0,
    skipped_cnt INTEGER NOT NULL DEFAULT 0,
    remark TEXT NOT NULL DEFAULT ''
);
`

const migrationV1_1Down = `
DROP TABLE IF EXISTS indexing_tasks;
`

const latestVersionQuery = "SELECT version FROM schema_version ORDER BY applied_at DESC, rowid DESC LIMIT 1"

var zeroVersion = semver.MustParse("0.0.0")

// SchemaVersion returns the last applied migration, or 0.0.0 on a fresh database
func SchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var exists int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if exists == 0 {
		return zeroVersion, nil
	}

	var raw string
	err := db.QueryRowContext(ctx, latestVersionQuery).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows), err == nil && raw == "":
		return zeroVersion, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid schema version %s: %w", raw, err)
	}
	return v, nil
}

// ApplyMigrations runs every migration newer than the database, each in its own transaction.
// A database written by a newer build is rejected.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.GreaterThan(semver.MustParse(CurrentSchemaVersion)) {
		return fmt.Errorf("database schema %s is newer than supported %s", current, CurrentSchemaVersion)
	}

	for _, m := range AllMigrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}
		err = inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
		current = v
	}
	return nil
}

// RollbackMigration reverts the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(zeroVersion) {
		return errors.New("no migrations to rollback")
	}

	idx := -1
	for i := range AllMigrations {
		if semver.MustParse(AllMigrations[i].Version).Equal(current) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("migration %s not found", current)
	}

	err = inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, AllMigrations[idx].Down); err != nil {
			return err
		}
		// the first migration drops schema_version itself
		if idx == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", AllMigrations[idx].Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", current, err)
	}
	return nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

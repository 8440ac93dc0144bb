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
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    root_path TEXT NOT NULL UNIQUE,
    total_files INTEGER DEFAULT 0,
    total_symbols INTEGER DEFAULT 0,
    index_version TEXT NOT NULL,
    last_indexed_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS index_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    file_path TEXT NOT NULL,
    import_file TEXT NOT NULL,
    language TEXT,
    content_hash INTEGER NOT NULL,
    args TEXT,
    mod_time TIMESTAMP,
    size_bytes INTEGER,
    parse_error TEXT,
    last_indexed_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
    UNIQUE(project_id, file_path)
);

CREATE INDEX IF NOT EXISTS idx_index_files_project ON index_files(project_id);
CREATE INDEX IF NOT EXISTS idx_index_files_import ON index_files(import_file);

CREATE TABLE IF NOT EXISTS symbols (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id INTEGER NOT NULL,
    usr TEXT NOT NULL,
    kind TEXT NOT NULL,
    sym_kind INTEGER,
    qualified_name TEXT,
    short_name TEXT,
    role TEXT NOT NULL,
    role_bits INTEGER,
    start_line INTEGER NOT NULL,
    start_col INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    end_col INTEGER NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (file_id) REFERENCES index_files(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_usr ON symbols(usr);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(short_name);
CREATE INDEX IF NOT EXISTS idx_symbols_position ON symbols(file_id, start_line);

CREATE TABLE IF NOT EXISTS includes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id INTEGER NOT NULL,
    line INTEGER NOT NULL,
    resolved_path TEXT NOT NULL,
    FOREIGN KEY (file_id) REFERENCES index_files(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_includes_file ON includes(file_id);
CREATE INDEX IF NOT EXISTS idx_includes_path ON includes(resolved_path);
`

const migrationV1Down = `
DROP TABLE IF EXISTS includes;
DROP TABLE IF EXISTS symbols;
DROP TABLE IF EXISTS index_files;
DROP TABLE IF EXISTS projects;
DROP TABLE IF EXISTS schema_version;
`

// 1.1.0 tracks how many event anomalies each file dropped
const migrationV11Up = `
ALTER TABLE index_files ADD COLUMN anomalies INTEGER DEFAULT 0;
`

const migrationV11Down = `
ALTER TABLE index_files DROP COLUMN anomalies;
`

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !currentVersion.LessThan(migrationVersion) {
			continue
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}
		currentVersion = migrationVersion
	}

	return nil
}

// schemaVersion returns the highest applied version, 0.0.0 on a fresh database
func schemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	var migration *Migration
	for i := range AllMigrations {
		if semver.MustParse(AllMigrations[i].Version).Equal(current) {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}
	// The first migration drops schema_version itself
	if migration.Version == AllMigrations[0].Version {
		return nil
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}
	return nil
}

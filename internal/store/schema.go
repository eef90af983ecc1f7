package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// Seeds are uint64 and stored as decimal text since neither backend has an
// unsigned 64-bit column type. Timestamps are fixed-width UTC text so they
// sort correctly.
const sqliteSchemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    source TEXT NOT NULL,
    seed TEXT NOT NULL,
    traits TEXT NOT NULL,
    aggregate TEXT NOT NULL,
    episodes TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    parent_id TEXT,
    created_at TEXT NOT NULL,
    traits TEXT NOT NULL,
    score REAL NOT NULL,
    state TEXT NOT NULL,
    canary_metrics TEXT NOT NULL,
    generation_seed TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_policies_created ON policies(created_at);

CREATE TABLE IF NOT EXISTS active_policy (
    slot INTEGER PRIMARY KEY CHECK (slot = 1),
    policy_id TEXT NOT NULL REFERENCES policies(id)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

const postgresSchemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    source TEXT NOT NULL,
    seed TEXT NOT NULL,
    traits JSONB NOT NULL,
    aggregate JSONB NOT NULL,
    episodes JSONB
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    parent_id TEXT,
    created_at TEXT NOT NULL,
    traits JSONB NOT NULL,
    score DOUBLE PRECISION NOT NULL,
    state TEXT NOT NULL,
    canary_metrics JSONB NOT NULL,
    generation_seed TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_policies_created ON policies(created_at);

CREATE TABLE IF NOT EXISTS active_policy (
    slot INTEGER PRIMARY KEY CHECK (slot = 1),
    policy_id TEXT NOT NULL REFERENCES policies(id)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema creates the tables for d if they do not exist and records
// the schema version.
func InitSchema(ctx context.Context, db *sql.DB, d dialect) error {
	if version, err := getSchemaVersion(ctx, db); err == nil && version >= SchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(d.schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create %s tables: %w", d.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, d.rebind(
		`INSERT INTO schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`),
		SchemaVersion, formatTime(nowUTC())); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// getSchemaVersion returns the current schema version from the database.
// Returns an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

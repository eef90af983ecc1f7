package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	sqlStore
	path string
}

// NewSQLiteStore opens (or creates) the database at path, creating parent
// directories as needed.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	if err := ValidateIntegrity(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("database integrity check failed: %w", err)
	}
	if err := InitSchema(ctx, db, sqliteDialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{sqlStore: sqlStore{db: db, d: sqliteDialect}, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// ValidateIntegrity runs PRAGMA integrity_check and fails on any finding.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity_check failed: %s", result)
		}
	}
	return rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// sqlOpen is swapped in tests.
var sqlOpen = sql.Open

// PostgresStore implements Store on Postgres through the pgx driver.
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore connects to dsn, verifies the connection and applies
// the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := InitSchema(ctx, db, postgresDialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStore{sqlStore: sqlStore{db: db, d: postgresDialect}}, nil
}

// Package store defines the Store interface for persisting simulation runs
// and tuned policies, with memory, SQLite and Postgres implementations.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vsoverseer/simcore/internal/models"
)

// ErrNotFound is returned when a run or policy does not exist.
var ErrNotFound = errors.New("not found")

// Store kinds accepted by New.
const (
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

// Store persists run history and policies.
type Store interface {
	// Run history
	SaveRun(ctx context.Context, run models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)

	// ListRuns returns runs newest first. A limit <= 0 returns all runs.
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)

	// ClearRuns removes every recorded run.
	ClearRuns(ctx context.Context) error

	// Policies
	SavePolicy(ctx context.Context, p models.Policy) error
	GetPolicy(ctx context.Context, id string) (*models.Policy, error)
	ListPolicies(ctx context.Context, limit int) ([]models.Policy, error)

	// SetActivePolicy marks an existing policy as the one the tuner starts from.
	SetActivePolicy(ctx context.Context, id string) error

	// ActivePolicy returns ErrNotFound when no policy has been activated.
	ActivePolicy(ctx context.Context) (*models.Policy, error)

	Close() error
}

// New opens a store of the given kind. target is the SQLite file path or
// the Postgres DSN; it is ignored for the memory store.
func New(ctx context.Context, kind, target string) (Store, error) {
	switch kind {
	case KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite, "":
		s, err := NewSQLiteStore(ctx, target)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindPostgres:
		s, err := NewPostgresStore(ctx, target)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store kind: %s", kind)
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

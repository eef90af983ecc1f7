package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vsoverseer/simcore/internal/models"
)

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

var nowUTC = func() time.Time { return time.Now().UTC() }

// dialect captures the differences between the SQL backends.
type dialect struct {
	name   string
	schema string

	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

var (
	sqliteDialect   = dialect{name: KindSQLite, schema: sqliteSchemaV1}
	postgresDialect = dialect{name: KindPostgres, schema: postgresSchemaV1, numbered: true}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements Store on database/sql. The SQLite and Postgres
// stores differ only in how they open the database and in their dialect.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

// DB exposes the underlying sql.DB for tests and maintenance commands.
func (s *sqlStore) DB() *sql.DB { return s.db }

// SaveRun inserts or replaces a run.
func (s *sqlStore) SaveRun(ctx context.Context, run models.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	traits, err := json.Marshal(run.Traits)
	if err != nil {
		return fmt.Errorf("failed to marshal traits: %w", err)
	}
	aggregate, err := json.Marshal(run.Aggregate)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregate: %w", err)
	}
	var episodes sql.NullString
	if run.Episodes != nil {
		data, err := json.Marshal(run.Episodes)
		if err != nil {
			return fmt.Errorf("failed to marshal episodes: %w", err)
		}
		episodes = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, s.d.rebind(`
		INSERT INTO runs (id, created_at, source, seed, traits, aggregate, episodes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			created_at = excluded.created_at,
			source = excluded.source,
			seed = excluded.seed,
			traits = excluded.traits,
			aggregate = excluded.aggregate,
			episodes = excluded.episodes`),
		run.ID, formatTime(run.CreatedAt), string(run.Source), strconv.FormatUint(run.Seed, 10),
		string(traits), string(aggregate), episodes)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, created_at, source, seed, traits, aggregate, episodes`

// GetRun retrieves a run by ID.
func (s *sqlStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+runColumns+` FROM runs WHERE id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *sqlStore) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ClearRuns removes every run.
func (s *sqlStore) ClearRuns(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs`); err != nil {
		return fmt.Errorf("failed to clear runs: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.RunRecord, error) {
	var (
		run                     models.RunRecord
		createdAt, source, seed string
		traits, aggregate       string
		episodes                sql.NullString
	)
	if err := sc.Scan(&run.ID, &createdAt, &source, &seed, &traits, &aggregate, &episodes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var err error
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("run %s: bad created_at: %w", run.ID, err)
	}
	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("run %s: bad seed: %w", run.ID, err)
	}
	run.Source = models.RunSource(source)
	if err := json.Unmarshal([]byte(traits), &run.Traits); err != nil {
		return nil, fmt.Errorf("run %s: bad traits: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(aggregate), &run.Aggregate); err != nil {
		return nil, fmt.Errorf("run %s: bad aggregate: %w", run.ID, err)
	}
	if episodes.Valid {
		if err := json.Unmarshal([]byte(episodes.String), &run.Episodes); err != nil {
			return nil, fmt.Errorf("run %s: bad episodes: %w", run.ID, err)
		}
	}
	return &run, nil
}

// SavePolicy inserts or replaces a policy.
func (s *sqlStore) SavePolicy(ctx context.Context, p models.Policy) error {
	if p.ID == "" {
		return fmt.Errorf("policy ID is required")
	}

	traits, err := json.Marshal(p.Traits)
	if err != nil {
		return fmt.Errorf("failed to marshal traits: %w", err)
	}
	canary, err := json.Marshal(p.CanaryMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal canary metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.d.rebind(`
		INSERT INTO policies (id, parent_id, created_at, traits, score, state, canary_metrics, generation_seed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = excluded.parent_id,
			created_at = excluded.created_at,
			traits = excluded.traits,
			score = excluded.score,
			state = excluded.state,
			canary_metrics = excluded.canary_metrics,
			generation_seed = excluded.generation_seed`),
		p.ID, sql.NullString{String: p.ParentID, Valid: p.ParentID != ""}, formatTime(p.CreatedAt),
		string(traits), p.Score, string(p.State), string(canary), strconv.FormatUint(p.GenerationSeed, 10))
	if err != nil {
		return fmt.Errorf("failed to save policy %s: %w", p.ID, err)
	}
	return nil
}

const policyColumns = `id, parent_id, created_at, traits, score, state, canary_metrics, generation_seed`

// GetPolicy retrieves a policy by ID.
func (s *sqlStore) GetPolicy(ctx context.Context, id string) (*models.Policy, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+policyColumns+` FROM policies WHERE id = ?`), id)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPolicies returns policies newest first.
func (s *sqlStore) ListPolicies(ctx context.Context, limit int) ([]models.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies ORDER BY created_at DESC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

func scanPolicy(sc scanner) (*models.Policy, error) {
	var (
		p                      models.Policy
		parentID               sql.NullString
		createdAt, state, seed string
		traits, canary         string
	)
	if err := sc.Scan(&p.ID, &parentID, &createdAt, &traits, &p.Score, &state, &canary, &seed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan policy: %w", err)
	}

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("policy %s: bad created_at: %w", p.ID, err)
	}
	if p.GenerationSeed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("policy %s: bad generation_seed: %w", p.ID, err)
	}
	p.ParentID = parentID.String
	p.State = models.PromotionState(state)
	if err := json.Unmarshal([]byte(traits), &p.Traits); err != nil {
		return nil, fmt.Errorf("policy %s: bad traits: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(canary), &p.CanaryMetrics); err != nil {
		return nil, fmt.Errorf("policy %s: bad canary metrics: %w", p.ID, err)
	}
	return &p, nil
}

// SetActivePolicy marks an existing policy active.
func (s *sqlStore) SetActivePolicy(ctx context.Context, id string) error {
	if _, err := s.GetPolicy(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.d.rebind(`
		INSERT INTO active_policy (slot, policy_id) VALUES (1, ?)
		ON CONFLICT (slot) DO UPDATE SET policy_id = excluded.policy_id`), id)
	if err != nil {
		return fmt.Errorf("failed to set active policy: %w", err)
	}
	return nil
}

// ActivePolicy returns the active policy.
func (s *sqlStore) ActivePolicy(ctx context.Context) (*models.Policy, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT policy_id FROM active_policy WHERE slot = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active policy: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active policy: %w", err)
	}
	return s.GetPolicy(ctx, id)
}

// Close closes the database.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

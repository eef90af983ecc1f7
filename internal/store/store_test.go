package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vsoverseer/simcore/internal/models"
)

func testRun(id string, created time.Time, seed uint64) models.RunRecord {
	return models.RunRecord{
		ID:        id,
		CreatedAt: created,
		Source:    models.SourceCLI,
		Seed:      seed,
		Traits:    models.NewTraitProfile(0.9, 0.2, 0.8, 0.6),
		Aggregate: models.AggregateStats{
			Episodes:      2,
			ObjectiveRate: 0.5,
			UnlockRate:    0.59,
			StabilityRate: 0.49,
			MeanElapsedS:  1088.5,
		},
		Episodes: []models.Episode{
			{UnlockRate: 0.57, ObjectiveComplete: true, Stability: 0.5, ElapsedS: 1131.9},
			{UnlockRate: 0.61, ObjectiveComplete: false, Stability: 0.48, ElapsedS: 1045.1},
		},
	}
}

func testPolicy(id string, created time.Time) models.Policy {
	return models.Policy{
		ID:             id,
		ParentID:       "baseline",
		CreatedAt:      created,
		Traits:         models.NewTraitProfile(0.4, 0.6, 0.7, 0.5),
		Score:          0.61,
		State:          models.StatePromoted,
		CanaryMetrics:  models.AggregateStats{Episodes: 50, ObjectiveRate: 0.7},
		GenerationSeed: 18446744073709551615,
	}
}

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("run round trip", func(t *testing.T) {
		want := testRun("run-1", base, 18446744073709551615)
		if err := s.SaveRun(ctx, want); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		got, err := s.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.Seed != want.Seed || got.Traits != want.Traits || got.Aggregate != want.Aggregate {
			t.Errorf("GetRun = %+v, want %+v", got, want)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
		}
		if len(got.Episodes) != 2 || got.Episodes[1] != want.Episodes[1] {
			t.Errorf("Episodes = %+v", got.Episodes)
		}
	})

	t.Run("run without episodes", func(t *testing.T) {
		r := testRun("run-agg", base.Add(-time.Hour), 3)
		r.Episodes = nil
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
		got, err := s.GetRun(ctx, "run-agg")
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.Episodes != nil {
			t.Errorf("expected nil episodes, got %+v", got.Episodes)
		}
	})

	t.Run("missing run", func(t *testing.T) {
		_, err := s.GetRun(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("empty ID rejected", func(t *testing.T) {
		if err := s.SaveRun(ctx, models.RunRecord{}); err == nil {
			t.Error("expected error for empty run ID")
		}
		if err := s.SavePolicy(ctx, models.Policy{}); err == nil {
			t.Error("expected error for empty policy ID")
		}
	})

	t.Run("list runs newest first", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			r := testRun(fmt.Sprintf("run-list-%d", i), base.Add(time.Duration(i+1)*time.Minute), uint64(i))
			if err := s.SaveRun(ctx, r); err != nil {
				t.Fatalf("SaveRun failed: %v", err)
			}
		}

		runs, err := s.ListRuns(ctx, 2)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("ListRuns(2) returned %d runs", len(runs))
		}
		if runs[0].ID != "run-list-2" || runs[1].ID != "run-list-1" {
			t.Errorf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
		}

		all, err := s.ListRuns(ctx, 0)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(all) != 5 {
			t.Errorf("ListRuns(0) returned %d runs, want 5", len(all))
		}
	})

	t.Run("save run replaces", func(t *testing.T) {
		r := testRun("run-1", base, 7)
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
		got, err := s.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.Seed != 7 {
			t.Errorf("Seed = %d, want 7 after replace", got.Seed)
		}
	})

	t.Run("no active policy", func(t *testing.T) {
		_, err := s.ActivePolicy(ctx)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := s.SetActivePolicy(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("SetActivePolicy(ghost) = %v, want ErrNotFound", err)
		}
	})

	t.Run("policies", func(t *testing.T) {
		older := testPolicy("policy-a", base)
		newer := testPolicy("policy-b", base.Add(time.Minute))
		newer.ParentID = ""
		newer.State = models.StateRejected

		for _, p := range []models.Policy{older, newer} {
			if err := s.SavePolicy(ctx, p); err != nil {
				t.Fatalf("SavePolicy failed: %v", err)
			}
		}

		got, err := s.GetPolicy(ctx, "policy-a")
		if err != nil {
			t.Fatalf("GetPolicy failed: %v", err)
		}
		if got.ParentID != "baseline" || got.GenerationSeed != older.GenerationSeed || got.Score != older.Score {
			t.Errorf("GetPolicy = %+v, want %+v", got, older)
		}
		if got.CanaryMetrics != older.CanaryMetrics || got.State != models.StatePromoted {
			t.Errorf("GetPolicy canary/state = %+v/%s", got.CanaryMetrics, got.State)
		}

		list, err := s.ListPolicies(ctx, 0)
		if err != nil {
			t.Fatalf("ListPolicies failed: %v", err)
		}
		if len(list) != 2 || list[0].ID != "policy-b" {
			t.Errorf("ListPolicies = %+v", list)
		}
		if list[0].ParentID != "" {
			t.Errorf("expected empty parent ID, got %q", list[0].ParentID)
		}

		if err := s.SetActivePolicy(ctx, "policy-a"); err != nil {
			t.Fatalf("SetActivePolicy failed: %v", err)
		}
		if err := s.SetActivePolicy(ctx, "policy-b"); err != nil {
			t.Fatalf("SetActivePolicy failed: %v", err)
		}
		active, err := s.ActivePolicy(ctx)
		if err != nil {
			t.Fatalf("ActivePolicy failed: %v", err)
		}
		if active.ID != "policy-b" {
			t.Errorf("active policy = %s, want policy-b", active.ID)
		}
	})

	t.Run("clear runs", func(t *testing.T) {
		if err := s.ClearRuns(ctx); err != nil {
			t.Fatalf("ClearRuns failed: %v", err)
		}
		runs, err := s.ListRuns(ctx, 0)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 0 {
			t.Errorf("expected no runs after clear, got %d", len(runs))
		}
		if _, err := s.GetPolicy(ctx, "policy-a"); err != nil {
			t.Errorf("policies should survive ClearRuns: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	runStoreSuite(t, s)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r := testRun("r", time.Now(), 1)
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	r.Episodes[0].UnlockRate = 99

	got, _ := s.GetRun(ctx, "r")
	if got.Episodes[0].UnlockRate == 99 {
		t.Error("store shares episode slice with caller")
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "simcore.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "simcore.db")

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s.SaveRun(ctx, testRun("persisted", time.Now(), 5)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if _, err := s.GetRun(ctx, "persisted"); err != nil {
		t.Errorf("run lost across reopen: %v", err)
	}

	version, err := getSchemaVersion(ctx, s.DB())
	if err != nil {
		t.Fatalf("getSchemaVersion failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version = %d, want %d", version, SchemaVersion)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("SIMCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SIMCORE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"active_policy", "policies", "runs"} {
		if _, err := s.DB().ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
	runStoreSuite(t, s)
}

func TestNewPostgresStore_RequiresDSN(t *testing.T) {
	if _, err := NewPostgresStore(context.Background(), ""); err == nil {
		t.Error("expected error for empty DSN")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	mem, err := New(ctx, KindMemory, "")
	if err != nil {
		t.Fatalf("New(memory) failed: %v", err)
	}
	if _, ok := mem.(*MemoryStore); !ok {
		t.Errorf("New(memory) returned %T", mem)
	}

	lite, err := New(ctx, KindSQLite, filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("New(sqlite) failed: %v", err)
	}
	defer lite.Close()
	if _, ok := lite.(*SQLiteStore); !ok {
		t.Errorf("New(sqlite) returned %T", lite)
	}

	if _, err := New(ctx, "redis", ""); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestRebind(t *testing.T) {
	q := `INSERT INTO t (a, b) VALUES (?, ?)`
	if got := sqliteDialect.rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %s", got)
	}
	if got := postgresDialect.rebind(q); got != `INSERT INTO t (a, b) VALUES ($1, $2)` {
		t.Errorf("postgres rebind = %s", got)
	}
}

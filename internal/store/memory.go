package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vsoverseer/simcore/internal/models"
)

// MemoryStore implements Store in process memory for tests and one-off runs.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]models.RunRecord
	policies map[string]models.Policy
	active   string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:     make(map[string]models.RunRecord),
		policies: make(map[string]models.Policy),
	}
}

// SaveRun inserts or replaces a run.
func (s *MemoryStore) SaveRun(ctx context.Context, run models.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	run.Episodes = append([]models.Episode(nil), run.Episodes...)
	s.runs[run.ID] = run
	return nil
}

// GetRun retrieves a run by ID.
func (s *MemoryStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	run.Episodes = append([]models.Episode(nil), run.Episodes...)
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	s.mu.RLock()
	runs := make([]models.RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ClearRuns removes every run.
func (s *MemoryStore) ClearRuns(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string]models.RunRecord)
	return nil
}

// SavePolicy inserts or replaces a policy.
func (s *MemoryStore) SavePolicy(ctx context.Context, p models.Policy) error {
	if p.ID == "" {
		return fmt.Errorf("policy ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p
	return nil
}

// GetPolicy retrieves a policy by ID.
func (s *MemoryStore) GetPolicy(ctx context.Context, id string) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

// ListPolicies returns policies newest first.
func (s *MemoryStore) ListPolicies(ctx context.Context, limit int) ([]models.Policy, error) {
	s.mu.RLock()
	policies := make([]models.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		policies = append(policies, p)
	}
	s.mu.RUnlock()

	sort.Slice(policies, func(i, j int) bool {
		if !policies[i].CreatedAt.Equal(policies[j].CreatedAt) {
			return policies[i].CreatedAt.After(policies[j].CreatedAt)
		}
		return policies[i].ID < policies[j].ID
	})
	if limit > 0 && len(policies) > limit {
		policies = policies[:limit]
	}
	return policies, nil
}

// SetActivePolicy marks an existing policy active.
func (s *MemoryStore) SetActivePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[id]; !ok {
		return fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	s.active = id
	return nil
}

// ActivePolicy returns the active policy.
func (s *MemoryStore) ActivePolicy(ctx context.Context) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == "" {
		return nil, fmt.Errorf("active policy: %w", ErrNotFound)
	}
	p := s.policies[s.active]
	return &p, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

package backup

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/store"
)

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := models.RunRecord{
			ID:        id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Source:    models.SourceCLI,
			Seed:      uint64(i + 1),
			Traits:    models.DefaultTraits(),
			Aggregate: models.AggregateStats{Episodes: 2, ObjectiveRate: 0.5},
			Episodes: []models.Episode{
				{UnlockRate: 0.4, ObjectiveComplete: true, Stability: 0.9, ElapsedS: 300},
				{UnlockRate: 0.2, ObjectiveComplete: false, Stability: 0.7, ElapsedS: 400},
			},
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	policy := models.Policy{
		ID:        "policy-1",
		CreatedAt: base,
		Traits:    models.DefaultTraits(),
		Score:     0.42,
		State:     models.StateBaseline,
	}
	if err := s.SavePolicy(ctx, policy); err != nil {
		t.Fatalf("SavePolicy: %v", err)
	}
	if err := s.SetActivePolicy(ctx, policy.ID); err != nil {
		t.Fatalf("SetActivePolicy: %v", err)
	}
	return s
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)

	var buf bytes.Buffer
	header, err := Export(ctx, src, &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if header.RunCount != 3 || header.PolicyCount != 1 {
		t.Errorf("header counts = %d/%d, want 3/1", header.RunCount, header.PolicyCount)
	}
	if header.ActivePolicyID != "policy-1" {
		t.Errorf("ActivePolicyID = %q", header.ActivePolicyID)
	}
	if !strings.HasPrefix(header.Checksum, "sha256:") {
		t.Errorf("Checksum = %q, want sha256: prefix", header.Checksum)
	}

	dst := store.NewMemoryStore()
	result, err := Import(ctx, dst, &buf, ImportMerge)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.RunsImported != 3 || result.PoliciesImported != 1 {
		t.Errorf("result = %+v", result)
	}

	got, err := dst.GetRun(ctx, "run-b")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	want, _ := src.GetRun(ctx, "run-b")
	if got.Seed != want.Seed || got.Aggregate != want.Aggregate || len(got.Episodes) != 2 {
		t.Errorf("imported run = %+v, want %+v", got, want)
	}
	if got.Episodes[0] != want.Episodes[0] {
		t.Errorf("episode = %+v, want %+v", got.Episodes[0], want.Episodes[0])
	}

	active, err := dst.ActivePolicy(ctx)
	if err != nil || active.ID != "policy-1" {
		t.Errorf("ActivePolicy = %v, %v", active, err)
	}
}

func TestImport_MergeSkipsExisting(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)

	var buf bytes.Buffer
	if _, err := Export(ctx, src, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	result, err := Import(ctx, src, &buf, "")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.RunsImported != 0 || result.RunsSkipped != 3 || result.PoliciesSkipped != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestImport_ReplaceClearsRuns(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)

	var buf bytes.Buffer
	if _, err := Export(ctx, src, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := store.NewMemoryStore()
	extra := models.RunRecord{ID: "local-only", CreatedAt: time.Now().UTC(), Source: models.SourceHTTP}
	if err := dst.SaveRun(ctx, extra); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	result, err := Import(ctx, dst, &buf, ImportReplace)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.RunsImported != 3 {
		t.Errorf("RunsImported = %d, want 3", result.RunsImported)
	}
	if _, err := dst.GetRun(ctx, "local-only"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected local-only run to be cleared, got %v", err)
	}
}

func TestImport_UnknownMode(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	if _, err := Export(ctx, seedStore(t), &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := Import(ctx, store.NewMemoryStore(), &buf, "overwrite"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestRead_ChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Export(context.Background(), seedStore(t), &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data := buf.Bytes()
	data[len(data)-5] ^= 0xff

	dst := store.NewMemoryStore()
	_, err := Import(context.Background(), dst, bytes.NewReader(data), ImportMerge)
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
	runs, _ := dst.ListRuns(context.Background(), 0)
	if len(runs) != 0 {
		t.Errorf("failed import wrote %d runs", len(runs))
	}
}

func TestRead_RejectsBadHeader(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "hello\n"},
		{"wrong version", `{"version":99,"checksum":"sha256:00"}` + "\n"},
		{"no newline", `{"version":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExportFile_ReadHeader(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "archive"+ArchiveExt)

	header, err := ExportFile(ctx, seedStore(t), path)
	if err != nil {
		t.Fatalf("ExportFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}

	got, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got.Checksum != header.Checksum || got.RunCount != 3 {
		t.Errorf("ReadHeader = %+v, want %+v", got, header)
	}

	result, err := ImportFile(ctx, store.NewMemoryStore(), path, ImportMerge)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if result.RunsImported != 3 {
		t.Errorf("RunsImported = %d, want 3", result.RunsImported)
	}
}

func TestExport_EmptyStore(t *testing.T) {
	var buf bytes.Buffer
	header, err := Export(context.Background(), store.NewMemoryStore(), &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if header.RunCount != 0 || header.ActivePolicyID != "" {
		t.Errorf("header = %+v", header)
	}

	archive, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(archive.Runs) != 0 || len(archive.Policies) != 0 {
		t.Errorf("archive = %+v", archive)
	}
}

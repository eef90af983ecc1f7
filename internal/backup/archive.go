// Package backup exports run history and policies to a checksummed archive
// and imports such archives back into a store.
//
// An archive is a JSON header line followed by a gzip-compressed JSONL body.
// The header carries a sha256 checksum of the compressed bytes so a
// truncated or altered archive is rejected before anything is imported.
package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/store"
)

// FormatVersion is the archive format written by Export.
const FormatVersion = 1

// MaxDecompressedSize is the maximum allowed size of a decompressed body (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

// Header is the plain-text first line of an archive.
type Header struct {
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	Checksum       string    `json:"checksum"`
	RunCount       int       `json:"run_count"`
	PolicyCount    int       `json:"policy_count"`
	ActivePolicyID string    `json:"active_policy_id,omitempty"`
}

// record is one body line.
type record struct {
	Kind   string            `json:"kind"`
	Run    *models.RunRecord `json:"run,omitempty"`
	Policy *models.Policy    `json:"policy,omitempty"`
}

const (
	kindRun    = "run"
	kindPolicy = "policy"
)

// Export writes every run and policy in s to w as an archive.
func Export(ctx context.Context, s store.Store, w io.Writer) (*Header, error) {
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	policies, err := s.ListPolicies(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing policies: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	enc := json.NewEncoder(gzw)
	// Policies first so an importer sees parents before the runs that cite them.
	for i := range policies {
		if err := enc.Encode(record{Kind: kindPolicy, Policy: &policies[i]}); err != nil {
			return nil, fmt.Errorf("encoding policy %s: %w", policies[i].ID, err)
		}
	}
	for i := range runs {
		if err := enc.Encode(record{Kind: kindRun, Run: &runs[i]}); err != nil {
			return nil, fmt.Errorf("encoding run %s: %w", runs[i].ID, err)
		}
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	header := &Header{
		Version:     FormatVersion,
		CreatedAt:   time.Now().UTC(),
		Checksum:    checksum(compressed.Bytes()),
		RunCount:    len(runs),
		PolicyCount: len(policies),
	}
	if active, err := s.ActivePolicy(ctx); err == nil {
		header.ActivePolicyID = active.ID
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("reading active policy: %w", err)
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}
	headerBytes = append(headerBytes, '\n')
	if _, err := w.Write(headerBytes); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Write(compressed.Bytes()); err != nil {
		return nil, fmt.Errorf("writing body: %w", err)
	}
	return header, nil
}

// ExportFile writes an archive to path, creating parent directories.
func ExportFile(ctx context.Context, s store.Store, path string) (*Header, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	header, err := Export(ctx, s, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing file: %w", closeErr)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return header, nil
}

// Archive is a decoded, verified archive.
type Archive struct {
	Header   Header
	Runs     []models.RunRecord
	Policies []models.Policy
}

// Read parses and verifies an archive.
func Read(r io.Reader) (*Archive, error) {
	reader := bufio.NewReader(r)
	header, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	compressedData, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if actual := checksum(compressedData); actual != header.Checksum {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	archive := &Archive{Header: *header}
	dec := json.NewDecoder(io.LimitReader(gzr, MaxDecompressedSize))
	for {
		var rec record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decoding body: %w", err)
		}
		switch {
		case rec.Kind == kindRun && rec.Run != nil:
			archive.Runs = append(archive.Runs, *rec.Run)
		case rec.Kind == kindPolicy && rec.Policy != nil:
			archive.Policies = append(archive.Policies, *rec.Policy)
		default:
			return nil, fmt.Errorf("unknown record kind %q", rec.Kind)
		}
	}

	if len(archive.Runs) != header.RunCount || len(archive.Policies) != header.PolicyCount {
		return nil, fmt.Errorf("record counts %d/%d do not match header %d/%d",
			len(archive.Runs), len(archive.Policies), header.RunCount, header.PolicyCount)
	}
	return archive, nil
}

// ReadFile parses and verifies the archive at path.
func ReadFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// ReadHeader reads only the header line of the archive at path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f))
}

func readHeader(reader *bufio.Reader) (*Header, error) {
	headerLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}

	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(headerLine), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported archive version: %d", header.Version)
	}
	return &header, nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// ImportMode controls how Import handles existing data.
type ImportMode string

const (
	// ImportMerge skips runs and policies that already exist (default).
	ImportMerge ImportMode = "merge"
	// ImportReplace clears run history first and overwrites policies.
	ImportReplace ImportMode = "replace"
)

// ImportResult contains statistics about an import.
type ImportResult struct {
	RunsImported     int `json:"runs_imported"`
	RunsSkipped      int `json:"runs_skipped"`
	PoliciesImported int `json:"policies_imported"`
	PoliciesSkipped  int `json:"policies_skipped"`
}

// Import verifies the archive read from r and loads it into s. Nothing is
// written when verification fails.
func Import(ctx context.Context, s store.Store, r io.Reader, mode ImportMode) (*ImportResult, error) {
	archive, err := Read(r)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = ImportMerge
	}
	if mode != ImportMerge && mode != ImportReplace {
		return nil, fmt.Errorf("unknown import mode: %s", mode)
	}

	if mode == ImportReplace {
		if err := s.ClearRuns(ctx); err != nil {
			return nil, err
		}
	}

	result := &ImportResult{}
	for _, p := range archive.Policies {
		if mode == ImportMerge {
			exists, err := policyExists(ctx, s, p.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				result.PoliciesSkipped++
				continue
			}
		}
		if err := s.SavePolicy(ctx, p); err != nil {
			return nil, fmt.Errorf("importing policy %s: %w", p.ID, err)
		}
		result.PoliciesImported++
	}

	for _, run := range archive.Runs {
		if mode == ImportMerge {
			exists, err := runExists(ctx, s, run.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				result.RunsSkipped++
				continue
			}
		}
		if err := s.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("importing run %s: %w", run.ID, err)
		}
		result.RunsImported++
	}

	if id := archive.Header.ActivePolicyID; id != "" {
		_, err := s.ActivePolicy(ctx)
		if mode == ImportReplace || errors.Is(err, store.ErrNotFound) {
			if err := s.SetActivePolicy(ctx, id); err != nil {
				return nil, fmt.Errorf("activating policy %s: %w", id, err)
			}
		}
	}

	return result, nil
}

// ImportFile imports the archive at path.
func ImportFile(ctx context.Context, s store.Store, path string, mode ImportMode) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return Import(ctx, s, f, mode)
}

func runExists(ctx context.Context, s store.Store, id string) (bool, error) {
	_, err := s.GetRun(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("checking run %s: %w", id, err)
}

func policyExists(ctx context.Context, s store.Store, id string) (bool, error) {
	_, err := s.GetPolicy(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("checking policy %s: %w", id, err)
}

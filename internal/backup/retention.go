package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ArchivePrefix and ArchiveExt name the files written by ArchivePath.
const (
	ArchivePrefix = "simcore-runs-"
	ArchiveExt    = ".jsonl.gz"
)

// ArchivePath returns a timestamped archive path in dir.
func ArchivePath(dir string, now time.Time) string {
	return filepath.Join(dir, ArchivePrefix+now.UTC().Format("20060102-150405")+ArchiveExt)
}

// ArchiveInfo describes one archive file on disk.
type ArchiveInfo struct {
	Path      string
	Size      int64
	CreatedAt time.Time
	RunCount  int
}

// Retention selects which archives survive pruning. Input is newest first.
type Retention interface {
	Keep(archives []ArchiveInfo) []ArchiveInfo
}

// KeepLast keeps the N newest archives.
type KeepLast struct {
	N int
}

// Keep implements Retention.
func (k KeepLast) Keep(archives []ArchiveInfo) []ArchiveInfo {
	if k.N < 0 || len(archives) <= k.N {
		return archives
	}
	return archives[:k.N]
}

// KeepNewerThan keeps archives created within MaxAge of Now.
type KeepNewerThan struct {
	MaxAge time.Duration
	Now    time.Time
}

// Keep implements Retention.
func (k KeepNewerThan) Keep(archives []ArchiveInfo) []ArchiveInfo {
	now := k.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(-k.MaxAge)
	var keep []ArchiveInfo
	for _, a := range archives {
		if a.CreatedAt.After(cutoff) {
			keep = append(keep, a)
		}
	}
	return keep
}

// KeepAny keeps an archive when any of its rules keeps it.
type KeepAny []Retention

// Keep implements Retention.
func (k KeepAny) Keep(archives []ArchiveInfo) []ArchiveInfo {
	kept := make(map[string]bool)
	for _, rule := range k {
		for _, a := range rule.Keep(archives) {
			kept[a.Path] = true
		}
	}
	var result []ArchiveInfo
	for _, a := range archives {
		if kept[a.Path] {
			result = append(result, a)
		}
	}
	return result
}

// ListArchives returns the archives in dir, newest first. A missing
// directory yields no archives.
func ListArchives(dir string) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []ArchiveInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ArchivePrefix) || !strings.HasSuffix(name, ArchiveExt) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info := ArchiveInfo{
			Path:      filepath.Join(dir, name),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if h, err := ReadHeader(info.Path); err == nil {
			info.CreatedAt = h.CreatedAt
			info.RunCount = h.RunCount
		}
		archives = append(archives, info)
	}

	// The timestamp is embedded in the name.
	sort.Slice(archives, func(i, j int) bool {
		return filepath.Base(archives[i].Path) > filepath.Base(archives[j].Path)
	})
	return archives, nil
}

// Prune deletes the archives in dir that rule does not keep and returns
// the removed paths.
func Prune(dir string, rule Retention) ([]string, error) {
	archives, err := ListArchives(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for _, a := range rule.Keep(archives) {
		keep[a.Path] = true
	}

	var deleted []string
	for _, a := range archives {
		if keep[a.Path] {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(a.Path), err)
		}
		deleted = append(deleted, a.Path)
	}
	return deleted, nil
}

// ParseDuration accepts Go durations ("720h") plus day and week counts
// ("30d", "2w").
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", s[len(s)-1:], s)
	}
}

// Package logging provides leveled logging and decision tracing for simcore.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr, optionally mirrored to a rotated file
//   - A DecisionLogger for structured JSONL tuner decisions (<state dir>/decisions.jsonl)
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace is a custom slog level below Debug. At this level every
// simulated episode is logged.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok && l == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
}

// NewLogger creates a leveled slog.Logger writing text records to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(ParseLevel(level))))
}

// FileOptions configures the rotated log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup builds the process logger. Records go to w as text and, when
// file.Path is set, to a size-rotated file as JSON. The returned closer
// releases the file and is never nil.
func Setup(level string, w io.Writer, file FileOptions) (*slog.Logger, io.Closer) {
	lvl := ParseLevel(level)
	console := slog.NewTextHandler(w, handlerOptions(lvl))
	if file.Path == "" {
		return slog.New(console), nopCloser{}
	}

	rotated := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
	}
	fileHandler := slog.NewJSONHandler(rotated, handlerOptions(lvl))
	return slog.New(fanout{console, fileHandler}), rotated
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends each record to every handler enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// DecisionFile is the name of the decision trace inside the state directory.
const DecisionFile = "decisions.jsonl"

// DecisionLogger writes tuner decisions (candidate scores, canary results,
// promotions) to a rotated JSONL file. It is safe for concurrent use.
// A nil DecisionLogger is safe to use; all methods are no-ops on nil receiver.
type DecisionLogger struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

// NewDecisionLogger creates a decision logger writing to dir/decisions.jsonl.
// At "info" level (the default) it returns nil and no file is created.
// At "debug" or "trace" level the file is created on the first event.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	return &DecisionLogger{out: &lumberjack.Logger{
		Filename:   filepath.Join(dir, DecisionFile),
		MaxSize:    20,
		MaxBackups: 5,
	}}
}

// Log writes one decision event as a single JSONL line. A "time" field is
// added; the caller's map is not mutated.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.out == nil {
		return
	}
	_, _ = dl.out.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.out != nil {
		dl.out.Close()
		dl.out = nil
	}
}

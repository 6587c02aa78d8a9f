package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Log is an append-only JSON-lines audit log backed by a file.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer zerolog.Logger
	now    func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source used for events without a timestamp
// and for purge cutoffs.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// Open opens (creating if needed) the audit file at path for appending.
func Open(path string, opts ...Option) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	l := &Log{path: path, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.reopen(); err != nil {
		return nil, err
	}
	return l, nil
}

// reopen must be called with mu held (or before the log is shared).
func (l *Log) reopen() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	l.file = file
	l.writer = zerolog.New(file)
	return nil
}

// Path returns the file backing the log.
func (l *Log) Path() string {
	return l.path
}

// Record appends ev as one JSON line. When ctx carries a recording span the
// event is also attached to it.
func (l *Log) Record(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	if ev.PermissionsChecked == nil {
		ev.PermissionsChecked = []string{}
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("audit."+eventName(ev), trace.WithAttributes(
			attribute.String("audit.tool", ev.ToolName),
			attribute.String("audit.role", ev.RoleID),
			attribute.Bool("audit.allowed", ev.Allowed),
			attribute.String("audit.reason", ev.Reason),
		))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log is closed")
	}

	l.writer.Log().
		Str("timestamp", ev.Timestamp.UTC().Format(time.RFC3339Nano)).
		Str("mission_id", ev.MissionID).
		Str("role_id", ev.RoleID).
		Str("tool_name", ev.ToolName).
		Str("domain", ev.Domain).
		Bool("allowed", ev.Allowed).
		Str("reason", ev.Reason).
		Str("user_id", ev.UserID).
		Strs("permissions_checked", ev.PermissionsChecked).
		Interface("metadata", ev.Metadata).
		Msg("")

	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func eventName(ev Event) string {
	if kind := ev.Kind(); kind != "" {
		return kind
	}
	return "event"
}

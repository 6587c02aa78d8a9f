package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func openTestLog(t *testing.T, opts ...Option) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit", "audit.jsonl"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	require.NoError(t, scanner.Err())
	return n
}

func TestLog_RecordWritesOneLine(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, l.Record(ctx, Event{ToolName: "hris_lookup", Allowed: true}))
		assert.Equal(t, i, countLines(t, l.Path()))
	}
}

func TestLog_RecordFields(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	l := openTestLog(t)

	require.NoError(t, l.Record(context.Background(), Event{
		Timestamp:          ts,
		MissionID:          "m-1",
		RoleID:             "hr_recruiter",
		ToolName:           "candidate_update",
		Domain:             "hr",
		Allowed:            false,
		Reason:             "missing permissions: hris_write",
		UserID:             "u-7",
		PermissionsChecked: []string{"email_send", "hris_write"},
		Metadata:           map[string]any{"kind": KindAccess},
	}))

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2025-03-04T05:06:07Z", raw["timestamp"])
	assert.Equal(t, "m-1", raw["mission_id"])
	assert.Equal(t, "hr_recruiter", raw["role_id"])
	assert.Equal(t, "candidate_update", raw["tool_name"])
	assert.Equal(t, "hr", raw["domain"])
	assert.Equal(t, false, raw["allowed"])
	assert.Equal(t, "u-7", raw["user_id"])
	assert.Equal(t, []any{"email_send", "hris_write"}, raw["permissions_checked"])
	assert.Equal(t, map[string]any{"kind": "access"}, raw["metadata"])
	assert.NotContains(t, raw, "message")
	assert.NotContains(t, raw, "level")
}

func TestLog_RecordDefaults(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := openTestLog(t, WithClock(func() time.Time { return now }))

	require.NoError(t, l.Record(context.Background(), Event{ToolName: "x"}))

	events, err := l.Query(Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, now.Equal(events[0].Timestamp))
	assert.Equal(t, []string{}, events[0].PermissionsChecked)
	assert.Equal(t, map[string]any{}, events[0].Metadata)
}

func TestLog_RecordAddsSpanEvent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := provider.Tracer("test").Start(context.Background(), "execute")

	l := openTestLog(t)
	require.NoError(t, l.Record(ctx, Event{ToolName: "email_send", Metadata: map[string]any{"kind": KindExecution}}))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "audit.execution", spans[0].Events()[0].Name)
}

func TestLog_RecordAfterClose(t *testing.T) {
	l := openTestLog(t)
	require.NoError(t, l.Close())
	assert.Error(t, l.Record(context.Background(), Event{}))
	assert.NoError(t, l.Close())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestLog_Purge(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	l := openTestLog(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, Event{Timestamp: now.AddDate(0, 0, -40), ToolName: "old"}))
	require.NoError(t, l.Record(ctx, Event{Timestamp: now.AddDate(0, 0, -1), ToolName: "recent"}))

	// corrupt and timestamp-less lines survive
	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n{\"tool_name\":\"no-ts\"}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	removed, err := l.Purge(30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 3, countLines(t, l.Path()))

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "{not json")
	assert.Contains(t, string(data), "no-ts")
	assert.NotContains(t, string(data), `"old"`)

	// still appendable after the rewrite
	require.NoError(t, l.Record(ctx, Event{ToolName: "after"}))
	assert.Equal(t, 4, countLines(t, l.Path()))

	_, err = l.Purge(0)
	assert.Error(t, err)
}

func TestRetention(t *testing.T) {
	l := openTestLog(t)

	_, err := NewRetention(l, 0, "", zerolog.Nop())
	assert.Error(t, err)

	_, err = NewRetention(l, 30, "not a schedule", zerolog.Nop())
	assert.Error(t, err)

	r, err := NewRetention(l, 30, "", zerolog.Nop())
	require.NoError(t, err)
	r.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Stop(ctx))
}

func TestRetention_RunPurges(t *testing.T) {
	now := time.Now()
	l := openTestLog(t)
	require.NoError(t, l.Record(context.Background(), Event{Timestamp: now.AddDate(0, 0, -10), ToolName: "stale"}))

	r, err := NewRetention(l, 7, "@daily", zerolog.Nop())
	require.NoError(t, err)
	r.run()

	events, err := l.Query(Filter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

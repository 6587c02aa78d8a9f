package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/opsframe/pkg/action"
	"github.com/harun/opsframe/pkg/audit"
	"github.com/harun/opsframe/pkg/tool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memoryAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memoryAuditor) Record(_ context.Context, ev audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memoryAuditor) all() []audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Event(nil), m.events...)
}

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) ToolExecuted(name string, category tool.Category, success bool, d time.Duration) {
	m.Called(name, category, success, d)
}

func manifest(name string, mutate ...func(*tool.Manifest)) tool.Manifest {
	m := tool.Manifest{
		Name:         name,
		Version:      "1.0.0",
		Description:  "test tool " + name,
		Domains:      []string{"hr"},
		AllowedRoles: []string{"hr_recruiter"},
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"candidate_id": map[string]any{"type": "string"}},
			"required":   []any{"candidate_id"},
		},
		TimeoutSeconds: 5,
	}
	for _, fn := range mutate {
		fn(&m)
	}
	return m
}

func echo(m tool.Manifest) *tool.Func {
	return &tool.Func{
		Spec: m,
		Fn: func(_ context.Context, params map[string]any, _ *tool.ExecutionContext) (tool.Result, error) {
			return tool.OK(map[string]any{"echo": params["candidate_id"]}), nil
		},
	}
}

func newTestRegistry(t *testing.T, cfg Config) (*Registry, *memoryAuditor) {
	t.Helper()
	auditor := &memoryAuditor{}
	if cfg.Auditor == nil {
		cfg.Auditor = auditor
	}
	if cfg.Plugins == nil {
		cfg.Plugins = []Plugin{}
	}
	cfg.Logger = zerolog.Nop()
	return New(cfg), auditor
}

func recruiter(perms ...string) *tool.ExecutionContext {
	return &tool.ExecutionContext{MissionID: "m-1", RoleID: "hr_recruiter", Domain: "hr", Permissions: perms}
}

func TestRegister_DuplicateReplacesWithOneWarning(t *testing.T) {
	var buf bytes.Buffer
	r := New(Config{Plugins: []Plugin{}, Logger: zerolog.New(&buf)})

	require.NoError(t, r.Register(echo(manifest("candidate_search"))))
	require.NoError(t, r.Register(echo(manifest("candidate_search", func(m *tool.Manifest) { m.Version = "1.1.0" }))))

	assert.Equal(t, 1, r.Count())
	m, ok := r.Manifest("candidate_search")
	require.True(t, ok)
	assert.Equal(t, "1.1.0", m.Version)
	assert.Equal(t, 1, strings.Count(buf.String(), "Tool already registered, replacing"))
}

func TestRegister_RejectsInvalid(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(echo(manifest("Bad-Name"))))
	assert.Equal(t, 0, r.Count())
}

func TestQueries(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	require.NoError(t, r.Register(echo(manifest("candidate_search"))))
	require.NoError(t, r.Register(echo(manifest("invoice_lookup", func(m *tool.Manifest) {
		m.Domains = []string{"finance"}
		m.AllowedRoles = []string{"accountant"}
	}))))
	require.NoError(t, r.Register(echo(manifest("calendar_check", func(m *tool.Manifest) {
		m.Domains = []string{"hr", "finance"}
		m.AllowedRoles = []string{tool.WildcardRole}
	}))))

	names := func(ms []tool.Manifest) []string {
		var out []string
		for _, m := range ms {
			out = append(out, m.Name)
		}
		return out
	}

	assert.Equal(t, []string{"calendar_check", "candidate_search", "invoice_lookup"}, names(r.List()))
	assert.Equal(t, []string{"calendar_check", "candidate_search"}, names(r.ForDomain("hr", "")))
	assert.Equal(t, []string{"calendar_check", "invoice_lookup"}, names(r.ForDomain("finance", "accountant")))
	assert.Equal(t, []string{"calendar_check"}, names(r.ForDomain("finance", "hr_recruiter")))
	assert.Empty(t, r.ForDomain("legal", ""))

	stats := r.Statistics()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"hr": 2, "finance": 2}, stats.ByDomain)

	_, ok := r.Get("calendar_check")
	assert.True(t, ok)
	_, ok = r.Get("nope")
	assert.False(t, ok)

	assert.True(t, r.Unregister("calendar_check"))
	assert.False(t, r.Unregister("calendar_check"))
	assert.Equal(t, 2, r.Count())
}

func TestExecute_GateOrder(t *testing.T) {
	r, auditor := newTestRegistry(t, Config{})
	require.NoError(t, r.Register(echo(manifest("candidate_update", func(m *tool.Manifest) {
		m.RequiredPermissions = []string{"hris_read", "hris_write"}
	}))))
	ctx := context.Background()

	tests := []struct {
		name     string
		tool     string
		params   map[string]any
		execCtx  *tool.ExecutionContext
		category tool.Category
		errPart  string
	}{
		{"unknown tool", "nope", nil, recruiter("hris_read", "hris_write"), tool.CategoryNotFound, "tool not found: nope"},
		{"permissions before validation", "candidate_update", map[string]any{}, recruiter("hris_read"), tool.CategoryPermissionDenied, "missing permissions: hris_write"},
		{"missing required param", "candidate_update", map[string]any{}, recruiter("hris_read", "hris_write"), tool.CategoryValidation, "candidate_id"},
		{"wrong param type", "candidate_update", map[string]any{"candidate_id": 12}, recruiter("hris_read", "hris_write"), tool.CategoryValidation, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.Execute(ctx, tt.tool, tt.params, tt.execCtx)
			assert.False(t, result.Success)
			assert.Equal(t, tt.category, result.Category)
			if tt.errPart != "" {
				assert.Contains(t, result.Error, tt.errPart)
			}
		})
	}

	result := r.Execute(ctx, "candidate_update", map[string]any{"candidate_id": "c-1"}, recruiter("hris_read", "hris_write"))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, map[string]any{"echo": "c-1"}, result.Data)

	events := auditor.all()
	require.Len(t, events, len(tests)+1)
	assert.False(t, events[1].Allowed)
	assert.Equal(t, []string{"hris_read", "hris_write"}, events[1].PermissionsChecked)
	assert.Equal(t, false, events[1].Metadata["executed"])
	last := events[len(events)-1]
	assert.True(t, last.Allowed)
	assert.Equal(t, "success", last.Reason)
	assert.Equal(t, true, last.Metadata["executed"])
	assert.Equal(t, audit.KindExecution, last.Kind())
}

func TestExecute_MissingPermissionListed(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	require.NoError(t, r.Register(echo(manifest("offer_send", func(m *tool.Manifest) {
		m.RequiredPermissions = []string{"document_generate", "email_send"}
	}))))

	result := r.Execute(context.Background(), "offer_send", map[string]any{"candidate_id": "c"}, recruiter("document_generate"))
	assert.Equal(t, tool.CategoryPermissionDenied, result.Category)
	assert.Equal(t, "missing permissions: email_send", result.Error)
	assert.Equal(t, []string{"email_send"}, result.Metadata["missing_permissions"])
}

func TestExecute_Timeout(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	m := manifest("slow_tool", func(m *tool.Manifest) { m.TimeoutSeconds = 2 })
	require.NoError(t, r.Register(&tool.Func{
		Spec: m,
		Fn: func(ctx context.Context, _ map[string]any, _ *tool.ExecutionContext) (tool.Result, error) {
			select {
			case <-time.After(10 * time.Second):
				return tool.OK("too late"), nil
			case <-ctx.Done():
				return tool.Result{}, ctx.Err()
			}
		},
	}))

	start := time.Now()
	result := r.Execute(context.Background(), "slow_tool", map[string]any{"candidate_id": "c"}, recruiter())
	elapsed := time.Since(start)

	assert.Equal(t, tool.CategoryTimeout, result.Category)
	assert.Contains(t, result.Error, "timed out after 2s")
	assert.Less(t, elapsed, 5*time.Second)
}

func TestExecute_CallerCancellation(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	require.NoError(t, r.Register(&tool.Func{
		Spec: manifest("blocking_tool"),
		Fn: func(ctx context.Context, _ map[string]any, _ *tool.ExecutionContext) (tool.Result, error) {
			<-ctx.Done()
			return tool.Result{}, ctx.Err()
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	result := r.Execute(ctx, "blocking_tool", map[string]any{"candidate_id": "c"}, recruiter())
	assert.False(t, result.Success)
	assert.Equal(t, tool.CategoryExecution, result.Category)
}

func TestExecute_Faults(t *testing.T) {
	r, auditor := newTestRegistry(t, Config{})
	require.NoError(t, r.Register(&tool.Func{
		Spec: manifest("panicky_tool"),
		Fn: func(context.Context, map[string]any, *tool.ExecutionContext) (tool.Result, error) {
			panic("boom")
		},
	}))
	require.NoError(t, r.Register(&tool.Func{
		Spec: manifest("erroring_tool"),
		Fn: func(context.Context, map[string]any, *tool.ExecutionContext) (tool.Result, error) {
			return tool.Result{}, os.ErrPermission
		},
	}))
	require.NoError(t, r.Register(&tool.Func{
		Spec: manifest("uncategorized_tool"),
		Fn: func(context.Context, map[string]any, *tool.ExecutionContext) (tool.Result, error) {
			return tool.Result{Success: false, Error: "nope"}, nil
		},
	}))
	params := map[string]any{"candidate_id": "c"}

	result := r.Execute(context.Background(), "panicky_tool", params, recruiter())
	assert.Equal(t, tool.CategoryExecution, result.Category)
	assert.Contains(t, result.Error, "boom")
	assert.Equal(t, "panic", result.Metadata["error_type"])

	result = r.Execute(context.Background(), "erroring_tool", params, recruiter())
	assert.Equal(t, tool.CategoryExecution, result.Category)
	assert.NotEmpty(t, result.Metadata["error_type"])

	result = r.Execute(context.Background(), "uncategorized_tool", params, recruiter())
	assert.Equal(t, tool.CategoryExecution, result.Category)

	assert.Len(t, auditor.all(), 3)
}

func TestExecute_OutputWarning(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	m := manifest("report_tool", func(m *tool.Manifest) {
		m.OutputSchema = map[string]any{
			"type":     "object",
			"required": []any{"total"},
		}
	})
	require.NoError(t, r.Register(&tool.Func{
		Spec: m,
		Fn: func(context.Context, map[string]any, *tool.ExecutionContext) (tool.Result, error) {
			return tool.OK(map[string]any{"count": 3}), nil
		},
	}))

	result := r.Execute(context.Background(), "report_tool", map[string]any{"candidate_id": "c"}, recruiter())
	assert.True(t, result.Success)
	assert.Contains(t, result.Metadata["output_warning"], "total")
}

func TestExecute_Observer(t *testing.T) {
	obs := &mockObserver{}
	obs.On("ToolExecuted", "candidate_search", tool.Category(""), true, mock.AnythingOfType("time.Duration")).Once()
	obs.On("ToolExecuted", "missing", tool.CategoryNotFound, false, mock.AnythingOfType("time.Duration")).Once()

	r, _ := newTestRegistry(t, Config{Observer: obs})
	require.NoError(t, r.Register(echo(manifest("candidate_search"))))

	r.Execute(context.Background(), "candidate_search", map[string]any{"candidate_id": "c"}, recruiter())
	r.Execute(context.Background(), "missing", nil, recruiter())
	obs.AssertExpectations(t)
}

type refund struct{ m tool.Manifest }

func (a refund) Manifest() tool.Manifest { return a.m }
func (a refund) EstimateCost(context.Context, map[string]any) (float64, error) {
	return 0.5, nil
}
func (a refund) Describe(map[string]any) string { return "refund" }
func (a refund) Perform(context.Context, map[string]any, *tool.ExecutionContext) (tool.Result, error) {
	return tool.OK("refunded"), nil
}

func TestExecute_SelfAuditingRecordsOnce(t *testing.T) {
	r, auditor := newTestRegistry(t, Config{})
	runner := action.NewRunner(refund{m: manifest("refund_issue", func(m *tool.Manifest) {
		m.RequiredPermissions = []string{"payment_send"}
	})}, action.Services{Auditor: auditor, Logger: zerolog.Nop()})
	require.NoError(t, r.Register(runner))

	result := r.Execute(context.Background(), "refund_issue", map[string]any{"candidate_id": "c"}, recruiter("payment_send"))
	require.True(t, result.Success, result.Error)
	assert.Len(t, auditor.all(), 1)

	// Rejected before the runner is invoked, so the registry records it.
	result = r.Execute(context.Background(), "refund_issue", map[string]any{"candidate_id": "c"}, recruiter())
	assert.Equal(t, tool.CategoryPermissionDenied, result.Category)
	assert.Len(t, auditor.all(), 2)

	assert.Equal(t, 1, r.Statistics().Actions)
}

type faultyEstimate struct{ refund }

func (a faultyEstimate) EstimateCost(context.Context, map[string]any) (float64, error) {
	panic("rate table missing")
}

func TestExecute_SelfAuditingPanicRecordsOnce(t *testing.T) {
	r, auditor := newTestRegistry(t, Config{})
	runner := action.NewRunner(faultyEstimate{refund{m: manifest("refund_issue")}},
		action.Services{Auditor: auditor, Logger: zerolog.Nop()})
	require.NoError(t, r.Register(runner))

	result := r.Execute(context.Background(), "refund_issue", map[string]any{"candidate_id": "c"}, recruiter())
	assert.False(t, result.Success)
	assert.Equal(t, tool.CategoryExecution, result.Category)
	assert.Contains(t, result.Error, "rate table missing")

	events := auditor.all()
	require.Len(t, events, 1)
	assert.False(t, events[0].Allowed)
	assert.Equal(t, "cost estimation failed", events[0].Reason)
	assert.Equal(t, false, events[0].Metadata["executed"])
}

type slowRefund struct {
	refund
	release chan struct{}
}

func (a slowRefund) Perform(context.Context, map[string]any, *tool.ExecutionContext) (tool.Result, error) {
	<-a.release
	return tool.OK("refunded"), nil
}

func TestExecute_SelfAuditingTimeoutRecordsOnce(t *testing.T) {
	r, auditor := newTestRegistry(t, Config{})
	slow := slowRefund{
		refund:  refund{m: manifest("refund_issue", func(m *tool.Manifest) { m.TimeoutSeconds = 0.1 })},
		release: make(chan struct{}),
	}
	runner := action.NewRunner(slow, action.Services{
		Auditor:         auditor,
		ApprovalTimeout: 100 * time.Millisecond,
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, r.Register(runner))

	result := r.Execute(context.Background(), "refund_issue", map[string]any{"candidate_id": "c"}, recruiter())
	assert.Equal(t, tool.CategoryTimeout, result.Category)

	events := auditor.all()
	require.Len(t, events, 1, "timeout is recorded when the call returns")
	assert.False(t, events[0].Allowed)
	assert.Contains(t, events[0].Reason, "timed out")
	assert.Equal(t, string(tool.CategoryTimeout), events[0].Metadata["category"])

	// The abandoned body finishing later must not add a contradicting event.
	close(slow.release)
	require.Eventually(t, func() bool {
		entries, err := runner.History().List(context.Background(), "refund_issue", 0)
		return err == nil && len(entries) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return len(auditor.all()) != 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func writeUnit(t *testing.T, dir, unit string, m tool.Manifest) {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, unit), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, unit, ManifestFile), data, 0o644))
}

func echoPlugin() Plugin {
	return Plugin{
		Name:     "echo",
		Manifest: manifest("echo"),
		New: func(m tool.Manifest, _ Env) (tool.Tool, error) {
			return echo(m), nil
		},
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "candidate_search", manifest("candidate_search", func(m *tool.Manifest) { m.Implementation = "echo" }))
	writeUnit(t, dir, "_draft", manifest("draft_tool", func(m *tool.Manifest) { m.Implementation = "echo" }))
	writeUnit(t, dir, ".hidden", manifest("hidden_tool", func(m *tool.Manifest) { m.Implementation = "echo" }))
	writeUnit(t, dir, "orphan", manifest("orphan_tool", func(m *tool.Manifest) { m.Implementation = "missing" }))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken", ManifestFile), []byte("{"), 0o644))

	r, _ := newTestRegistry(t, Config{
		Dirs:    []string{dir, filepath.Join(dir, "does-not-exist")},
		Plugins: []Plugin{echoPlugin()},
	})

	loaded, err := r.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	_, ok := r.Get("candidate_search")
	assert.True(t, ok)
	_, ok = r.Get("draft_tool")
	assert.False(t, ok)
	_, ok = r.Get("hidden_tool")
	assert.False(t, ok)

	loaded, err = r.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, loaded, "units load once")
}

func TestDiscover_UnregisterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	original := manifest("candidate_search", func(m *tool.Manifest) {
		m.Implementation = "echo"
		m.Tags = []string{"search"}
	})
	writeUnit(t, dir, "candidate_search", original)

	r, _ := newTestRegistry(t, Config{Dirs: []string{dir}, Plugins: []Plugin{echoPlugin()}})
	_, err := r.Discover(context.Background())
	require.NoError(t, err)
	before, ok := r.Manifest("candidate_search")
	require.True(t, ok)

	require.True(t, r.Unregister("candidate_search"))
	loaded, err := r.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	after, ok := r.Manifest("candidate_search")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestDiscover_Builtin(t *testing.T) {
	r, _ := newTestRegistry(t, Config{Builtin: true, Plugins: []Plugin{echoPlugin()}})

	loaded, err := r.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	_, ok := r.Get("echo")
	assert.True(t, ok)

	loaded, err = r.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, loaded)
}

func TestDiscover_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "candidate_search", manifest("candidate_search", func(m *tool.Manifest) { m.Implementation = "echo" }))
	r, _ := newTestRegistry(t, Config{Dirs: []string{dir}, Plugins: []Plugin{echoPlugin()}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatcher_PicksUpNewUnit(t *testing.T) {
	dir := t.TempDir()
	r, _ := newTestRegistry(t, Config{Dirs: []string{dir}, Plugins: []Plugin{echoPlugin()}})

	w, err := r.Watch(20 * time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	writeUnit(t, dir, "candidate_search", manifest("candidate_search", func(m *tool.Manifest) { m.Implementation = "echo" }))

	assert.Eventually(t, func() bool {
		_, ok := r.Get("candidate_search")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestProvide(t *testing.T) {
	assert.Panics(t, func() { Provide(Plugin{}) })
	assert.Panics(t, func() { Provide(Plugin{Name: "no_factory"}) })

	Provide(Plugin{Name: "registry_test_plugin", New: echoPlugin().New})
	assert.Panics(t, func() { Provide(Plugin{Name: "registry_test_plugin", New: echoPlugin().New}) })

	var found bool
	for _, p := range Catalog() {
		if p.Name == "registry_test_plugin" {
			found = true
		}
	}
	assert.True(t, found)
}

package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/harun/opsframe/internal/tracing"
	"github.com/harun/opsframe/pkg/audit"
	"github.com/harun/opsframe/pkg/tool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "opsframe.registry"

// PanicError is produced when a tool body panics.
type PanicError struct {
	Tool  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("tool %s panicked: %v", e.Tool, e.Value)
}

type outcome struct {
	result tool.Result
	err    error
}

// attempt is what the gates and the bounded run produced for one call.
type attempt struct {
	result  tool.Result
	entry   *entry
	invoked bool
	claimed bool // the registry holds the audit claim
}

// Execute runs the named tool. Gates apply in order: lookup, permissions,
// input validation, bounded execution, then a soft output check. Failures
// are reported through the result, never as a Go error or panic.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, execCtx *tool.ExecutionContext) tool.Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if execCtx == nil {
		execCtx = &tool.ExecutionContext{}
	}
	if params == nil {
		params = map[string]any{}
	}

	ctx = tracing.NewExecutionContext(ctx, execCtx.MissionID, execCtx.RoleID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "registry.execute",
		attribute.String("tool.name", name),
		attribute.String("role.id", execCtx.RoleID),
		attribute.String("mission.id", execCtx.MissionID),
	)
	defer span.End()

	claim := &tool.AuditClaim{}
	ctx = tool.ContextWithAuditClaim(ctx, claim)

	start := time.Now()
	a := r.execute(ctx, name, params, execCtx)
	elapsed := time.Since(start)
	result := a.result.WithMeta("duration_ms", elapsed.Milliseconds())

	span.SetAttributes(attribute.Bool("tool.success", result.Success))
	if !result.Success {
		span.SetAttributes(attribute.String("tool.category", string(result.Category)))
		span.SetStatus(codes.Error, result.Error)
	}

	if r.observer != nil {
		r.observer.ToolExecuted(name, result.Category, result.Success, elapsed)
	}

	// A self-auditing tool that finished has taken the claim already.
	if a.claimed || claim.Take() {
		r.audit(ctx, name, a.entry, params, execCtx, result, a.invoked)
	}

	level := zerolog.DebugLevel
	if !result.Success {
		level = zerolog.WarnLevel
	}
	logger := tracing.LoggerFromContext(ctx, r.logger)
	logger.WithLevel(level).
		Str("tool", name).
		Bool("success", result.Success).
		Str("category", string(result.Category)).
		Dur("duration", elapsed).
		Msg("Tool executed")

	return result
}

func (r *Registry) execute(ctx context.Context, name string, params map[string]any, execCtx *tool.ExecutionContext) attempt {
	e, ok := r.lookup(name)
	if !ok {
		return attempt{result: tool.Fail(tool.CategoryNotFound, "tool not found: %s", name)}
	}

	if missing := execCtx.MissingPermissions(e.manifest.RequiredPermissions); len(missing) > 0 {
		return attempt{
			result: tool.Fail(tool.CategoryPermissionDenied, "missing permissions: %s", strings.Join(missing, ", ")).
				WithMeta("missing_permissions", missing),
			entry: e,
		}
	}

	if err := e.input.Validate(params); err != nil {
		return attempt{result: tool.Fail(tool.CategoryValidation, "invalid parameters: %s", err.Error()), entry: e}
	}

	result, claimed := r.run(ctx, e, params, execCtx)

	if result.Success && result.Data != nil {
		if err := e.output.Validate(result.Data); err != nil {
			r.logger.Warn().Err(err).Str("tool", name).Msg("Tool output does not match output schema")
			result = result.WithMeta("output_warning", err.Error())
		}
	}
	return attempt{result: result, entry: e, invoked: true, claimed: claimed}
}

// run executes the tool body in its own goroutine bounded by the tool's
// budget. When the budget or the caller's context ends first, run takes the
// audit claim so a late self-audit from the abandoned body is suppressed, and
// reports claimed=true.
func (r *Registry) run(ctx context.Context, e *entry, params map[string]any, execCtx *tool.ExecutionContext) (tool.Result, bool) {
	budget := e.manifest.Timeout()
	if b, ok := e.tool.(tool.Budgeted); ok && b.Budget() > 0 {
		budget = b.Budget()
	}

	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	runCtx = tool.ContextWithExecContext(runCtx, execCtx)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: &PanicError{Tool: e.manifest.Name, Value: rec, Stack: debug.Stack()}}
			}
		}()
		res, err := e.tool.Execute(runCtx, params, execCtx)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return normalize(out), false
	case <-runCtx.Done():
		if !tool.AuditClaimFromContext(ctx).Take() {
			// The tool recorded its own outcome as the deadline hit.
			return normalize(<-done), false
		}
		if ctx.Err() != nil {
			return tool.Fail(tool.CategoryExecution, "tool %s cancelled: %v", e.manifest.Name, ctx.Err()).
				WithMeta("error_type", "cancelled"), true
		}
		return tool.Fail(tool.CategoryTimeout, "tool %s timed out after %s", e.manifest.Name, budget).
			WithMeta("timeout_seconds", budget.Seconds()), true
	}
}

func normalize(out outcome) tool.Result {
	if out.err != nil {
		if p, ok := out.err.(*PanicError); ok {
			return tool.Fail(tool.CategoryExecution, "%s", p.Error()).
				WithMeta("error_type", "panic")
		}
		return tool.FromError(out.err)
	}

	result := out.result
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	if !result.Success && result.Category == "" {
		result.Category = tool.CategoryExecution
	}
	return result
}

func (r *Registry) audit(ctx context.Context, name string, e *entry, params map[string]any, execCtx *tool.ExecutionContext, result tool.Result, invoked bool) {
	if r.auditor == nil {
		return
	}

	reason := "success"
	if !result.Success {
		reason = result.Error
	}
	domain := execCtx.Domain
	if domain == "" && e != nil && len(e.manifest.Domains) > 0 {
		domain = e.manifest.Domains[0]
	}
	metadata := map[string]any{
		"kind":     audit.KindExecution,
		"params":   params,
		"success":  result.Success,
		"executed": invoked,
		"trace_id": tracing.GetTraceID(ctx),
	}
	if !result.Success {
		metadata["category"] = string(result.Category)
	}
	if ms, ok := result.Metadata["duration_ms"]; ok {
		metadata["duration_ms"] = ms
	}

	var checked []string
	if e != nil {
		checked = e.manifest.RequiredPermissions
	}

	ev := audit.Event{
		MissionID:          execCtx.MissionID,
		RoleID:             execCtx.RoleID,
		ToolName:           name,
		Domain:             domain,
		Allowed:            result.Success,
		Reason:             reason,
		UserID:             execCtx.UserID,
		PermissionsChecked: checked,
		Metadata:           metadata,
	}
	// The caller may already be gone; the event is still owed.
	if err := r.auditor.Record(tracing.Detach(ctx), ev); err != nil {
		r.logger.Error().Err(err).Str("tool", name).Msg("Failed to record audit event")
	}
}

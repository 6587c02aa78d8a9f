package tool

import (
	"context"
	"time"
)

// Tool is the unit every plugin implements.
type Tool interface {
	// Manifest returns the static capability description.
	Manifest() Manifest

	// Execute runs the tool. Expected failures are reported through the
	// Result; a non-nil error (or a panic) is an unexpected fault that the
	// caller converts into an ExecutionError result.
	Execute(ctx context.Context, params map[string]any, execCtx *ExecutionContext) (Result, error)
}

// Budgeted tools declare an execution budget that differs from
// Manifest.Timeout, e.g. because they wait for a human first.
type Budgeted interface {
	Budget() time.Duration
}

// SelfAuditing tools record their own audit event for every invocation that
// reaches Execute.
type SelfAuditing interface {
	AuditsItself() bool
}

// Func adapts a plain function into a Tool.
type Func struct {
	Spec Manifest
	Fn   func(ctx context.Context, params map[string]any, execCtx *ExecutionContext) (Result, error)
}

// Manifest implements Tool.
func (f *Func) Manifest() Manifest {
	return f.Spec
}

// Execute implements Tool.
func (f *Func) Execute(ctx context.Context, params map[string]any, execCtx *ExecutionContext) (Result, error) {
	return f.Fn(ctx, params, execCtx)
}

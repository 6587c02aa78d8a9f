package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	c := logger.With()
	if tc.TraceID != "" {
		c = c.Str("trace_id", tc.TraceID)
	}
	if tc.ExecutionID != "" {
		c = c.Str("execution_id", tc.ExecutionID)
	}
	if tc.ParentExecutionID != "" {
		c = c.Str("parent_execution_id", tc.ParentExecutionID)
	}
	if tc.MissionID != "" {
		c = c.Str("mission_id", tc.MissionID)
	}
	if tc.Role != "" {
		c = c.Str("role", tc.Role)
	}
	return c.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing values from source that target lacks.
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.ExecutionID != "" && GetExecutionID(target) == "" {
		target = WithExecutionID(target, tc.ExecutionID)
	}
	if tc.MissionID != "" && GetMissionID(target) == "" {
		target = WithMissionID(target, tc.MissionID)
	}
	if tc.Role != "" && GetRole(target) == "" {
		target = WithRole(target, tc.Role)
	}
	return target
}

// Detach returns a context carrying the values of ctx, including its span,
// but none of its cancellation. Audit writes that must outlive the caller
// use it.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

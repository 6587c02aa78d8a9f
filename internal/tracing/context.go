package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// ExecutionIDKey identifies a single tool execution
	ExecutionIDKey ContextKey = "execution_id"
	// MissionIDKey is the context key for the mission a call belongs to
	MissionIDKey ContextKey = "mission_id"
	// RoleKey is the context key for the acting role
	RoleKey ContextKey = "role"
	// ParentExecutionIDKey links a nested execution to its caller
	ParentExecutionIDKey ContextKey = "parent_execution_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID           string
	ExecutionID       string
	ParentExecutionID string
	MissionID         string
	Role              string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewExecutionID generates a new execution ID
func NewExecutionID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithExecutionID adds an execution ID to the context
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, ExecutionIDKey, executionID)
}

// WithMissionID adds a mission ID to the context
func WithMissionID(ctx context.Context, missionID string) context.Context {
	return context.WithValue(ctx, MissionIDKey, missionID)
}

// WithRole adds the acting role to the context
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

func withParentExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, ParentExecutionIDKey, executionID)
}

func value(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return value(ctx, TraceIDKey)
}

// GetExecutionID retrieves the execution ID from the context
func GetExecutionID(ctx context.Context) string {
	return value(ctx, ExecutionIDKey)
}

// GetParentExecutionID retrieves the caller's execution ID, if any
func GetParentExecutionID(ctx context.Context) string {
	return value(ctx, ParentExecutionIDKey)
}

// GetMissionID retrieves the mission ID from the context
func GetMissionID(ctx context.Context) string {
	return value(ctx, MissionIDKey)
}

// GetRole retrieves the acting role from the context
func GetRole(ctx context.Context) string {
	return value(ctx, RoleKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:           GetTraceID(ctx),
		ExecutionID:       GetExecutionID(ctx),
		ParentExecutionID: GetParentExecutionID(ctx),
		MissionID:         GetMissionID(ctx),
		Role:              GetRole(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.ExecutionID != "" {
		ctx = WithExecutionID(ctx, tc.ExecutionID)
	}
	if tc.ParentExecutionID != "" {
		ctx = withParentExecutionID(ctx, tc.ParentExecutionID)
	}
	if tc.MissionID != "" {
		ctx = WithMissionID(ctx, tc.MissionID)
	}
	if tc.Role != "" {
		ctx = WithRole(ctx, tc.Role)
	}
	return ctx
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewExecutionContext tags ctx for one tool execution. A context that
// already carries an execution becomes the parent of the new one.
func NewExecutionContext(ctx context.Context, missionID, role string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = NewRequestContext(ctx)
	}
	if parent := GetExecutionID(ctx); parent != "" {
		ctx = withParentExecutionID(ctx, parent)
	}
	ctx = WithExecutionID(ctx, NewExecutionID())
	if missionID != "" {
		ctx = WithMissionID(ctx, missionID)
	}
	if role != "" {
		ctx = WithRole(ctx, role)
	}
	return ctx
}

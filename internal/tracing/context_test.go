package tracing

import (
	"context"
	"testing"
)

func TestNewIDs(t *testing.T) {
	if NewTraceID() == NewTraceID() {
		t.Error("NewTraceID returned duplicate IDs")
	}
	if NewExecutionID() == "" {
		t.Error("NewExecutionID returned empty string")
	}
}

func TestWithValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithExecutionID(ctx, "exec-456")
	ctx = WithMissionID(ctx, "m-42")
	ctx = WithRole(ctx, "hr_recruiter")

	if got := GetTraceID(ctx); got != "trace-123" {
		t.Errorf("Expected trace ID trace-123, got %s", got)
	}
	if got := GetExecutionID(ctx); got != "exec-456" {
		t.Errorf("Expected execution ID exec-456, got %s", got)
	}
	if got := GetMissionID(ctx); got != "m-42" {
		t.Errorf("Expected mission ID m-42, got %s", got)
	}
	if got := GetRole(ctx); got != "hr_recruiter" {
		t.Errorf("Expected role hr_recruiter, got %s", got)
	}
}

func TestGettersEmpty(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" || GetExecutionID(ctx) != "" || GetMissionID(ctx) != "" || GetRole(ctx) != "" {
		t.Error("Expected empty values from a bare context")
	}
}

func TestFromContextRoundTrip(t *testing.T) {
	tc := &TraceContext{
		TraceID:     "trace-123",
		ExecutionID: "exec-456",
		MissionID:   "m-42",
		Role:        "accountant",
	}

	got := FromContext(NewContext(context.Background(), tc))

	if *got != *tc {
		t.Errorf("Expected %+v, got %+v", *tc, *got)
	}
}

func TestNewExecutionContext(t *testing.T) {
	t.Run("fresh request", func(t *testing.T) {
		ctx := NewExecutionContext(context.Background(), "m-1", "engineer")

		if GetTraceID(ctx) == "" {
			t.Error("Trace ID not generated")
		}
		if GetExecutionID(ctx) == "" {
			t.Error("Execution ID not generated")
		}
		if GetParentExecutionID(ctx) != "" {
			t.Error("Top-level execution should have no parent")
		}
		if GetMissionID(ctx) != "m-1" || GetRole(ctx) != "engineer" {
			t.Error("Mission or role not set")
		}
	})

	t.Run("nested execution", func(t *testing.T) {
		outer := NewExecutionContext(context.Background(), "m-1", "engineer")
		inner := NewExecutionContext(outer, "", "")

		if GetTraceID(inner) != GetTraceID(outer) {
			t.Error("Trace ID not propagated")
		}
		if GetExecutionID(inner) == GetExecutionID(outer) {
			t.Error("Nested execution should get its own ID")
		}
		if GetParentExecutionID(inner) != GetExecutionID(outer) {
			t.Error("Parent execution not linked")
		}
		if GetMissionID(inner) != "m-1" || GetRole(inner) != "engineer" {
			t.Error("Mission or role not inherited")
		}
	})
}

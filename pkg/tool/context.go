package tool

import (
	"context"
	"slices"
	"sync/atomic"
)

// ExecutionContext is the per-call bundle of caller identity, permissions and
// runtime flags. It is created and owned by the caller.
type ExecutionContext struct {
	MissionID   string         `json:"mission_id"`
	ProjectRoot string         `json:"project_root,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Permissions []string       `json:"permissions"`
	RoleID      string         `json:"role_id"`
	Domain      string         `json:"domain,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	DryRun      bool           `json:"dry_run,omitempty"`
	MaxCostUSD  float64        `json:"max_cost_usd,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HasPermission reports whether the context was granted permission.
func (c *ExecutionContext) HasPermission(permission string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Permissions, permission)
}

// MissingPermissions returns the entries of required not granted to the
// context, in declaration order.
func (c *ExecutionContext) MissingPermissions(required []string) []string {
	var missing []string
	for _, permission := range required {
		if !c.HasPermission(permission) {
			missing = append(missing, permission)
		}
	}
	return missing
}

type execContextKey struct{}

// ContextWithExecContext attaches the execution context to a context.Context for tool bodies.
func ContextWithExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext extracts the execution context from a context.Context.
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	if execCtx, ok := ctx.Value(execContextKey{}).(*ExecutionContext); ok {
		return execCtx
	}
	return nil
}

// AuditClaim decides who records the audit event of one invocation when a
// self-auditing tool and its caller could both do it. The first Take wins.
type AuditClaim struct {
	taken atomic.Bool
}

// Take reports whether the caller now owns the audit event. A nil claim
// always grants ownership.
func (c *AuditClaim) Take() bool {
	if c == nil {
		return true
	}
	return c.taken.CompareAndSwap(false, true)
}

type auditClaimKey struct{}

// ContextWithAuditClaim attaches claim to ctx.
func ContextWithAuditClaim(ctx context.Context, claim *AuditClaim) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, auditClaimKey{}, claim)
}

// AuditClaimFromContext returns the claim attached to ctx, or nil.
func AuditClaimFromContext(ctx context.Context) *AuditClaim {
	if ctx == nil {
		return nil
	}
	claim, _ := ctx.Value(auditClaimKey{}).(*AuditClaim)
	return claim
}

package gateway

import (
	"context"

	"github.com/harun/opsframe/pkg/action"
	"github.com/harun/opsframe/pkg/rbac"
	"github.com/harun/opsframe/pkg/tool"
)

// Backend is the runtime the gateway exposes. *platform.Platform
// implements it.
type Backend interface {
	Tools(domain, role string) []tool.Manifest
	Manifest(name string) (tool.Manifest, bool)
	ContextFor(role, domain, missionID string) (*tool.ExecutionContext, error)
	Execute(ctx context.Context, name string, params map[string]any, execCtx *tool.ExecutionContext) tool.Result
	CheckAccess(req rbac.AccessRequest) rbac.Decision
	History(ctx context.Context, actionName string, limit int) ([]action.HistoryEntry, error)
	Rollback(ctx context.Context, toolName, executionID string) (bool, error)
}

// registerBuiltinMethods registers all built-in RPC methods
func (s *Server) registerBuiltinMethods() {
	_ = s.router.RegisterMethod("system.methods", s.handleMethods, Uncapped())
	_ = s.router.RegisterMethod("tools.list", s.handleToolsList)
	_ = s.router.RegisterMethod("tools.describe", s.handleToolsDescribe)
	_ = s.router.RegisterMethod("tools.execute", s.handleToolsExecute)
	_ = s.router.RegisterMethod("access.check", s.handleAccessCheck)
	_ = s.router.RegisterMethod("actions.history", s.handleActionsHistory)
	_ = s.router.RegisterMethod("actions.rollback", s.handleActionsRollback)
	// Executions waiting on approval hold their limiter slots until answered.
	_ = s.router.RegisterMethod("approvals.respond", s.handleApprovalRespond, Uncapped())
}

func (s *Server) handleMethods(context.Context, map[string]any) (any, error) {
	return s.router.Methods(), nil
}

type toolsListParams struct {
	Domain string `json:"domain"`
	Role   string `json:"role"`
}

func (s *Server) handleToolsList(_ context.Context, params map[string]any) (any, error) {
	var p toolsListParams
	if err := tool.Decode(params, &p); err != nil {
		return nil, invalidParams("invalid tools.list params", err)
	}
	return s.backend.Tools(p.Domain, p.Role), nil
}

func (s *Server) handleToolsDescribe(_ context.Context, params map[string]any) (any, error) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "name is required"}
	}
	manifest, ok := s.backend.Manifest(name)
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "tool not found: " + name}
	}
	return manifest, nil
}

type executeParams struct {
	Tool       string         `json:"tool"`
	Role       string         `json:"role"`
	Domain     string         `json:"domain"`
	MissionID  string         `json:"mission_id"`
	UserID     string         `json:"user_id"`
	Params     map[string]any `json:"params"`
	DryRun     bool           `json:"dry_run"`
	MaxCostUSD float64        `json:"max_cost_usd"`
}

// handleToolsExecute always answers with a tool.Result; failures inside
// the pipeline are not RPC errors.
func (s *Server) handleToolsExecute(ctx context.Context, params map[string]any) (any, error) {
	var p executeParams
	if err := tool.Decode(params, &p); err != nil {
		return nil, invalidParams("invalid tools.execute params", err)
	}
	if p.Tool == "" || p.Role == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "tool and role are required"}
	}

	execCtx, err := s.backend.ContextFor(p.Role, p.Domain, p.MissionID)
	if err != nil {
		return nil, invalidParams("cannot build execution context", err)
	}
	execCtx.UserID = p.UserID
	execCtx.DryRun = p.DryRun
	execCtx.MaxCostUSD = p.MaxCostUSD

	return s.backend.Execute(ctx, p.Tool, p.Params, execCtx), nil
}

type accessParams struct {
	Role      string `json:"role"`
	Tool      string `json:"tool"`
	Domain    string `json:"domain"`
	MissionID string `json:"mission_id"`
	UserID    string `json:"user_id"`
}

func (s *Server) handleAccessCheck(_ context.Context, params map[string]any) (any, error) {
	var p accessParams
	if err := tool.Decode(params, &p); err != nil {
		return nil, invalidParams("invalid access.check params", err)
	}
	if p.Role == "" || p.Tool == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "role and tool are required"}
	}

	d := s.backend.CheckAccess(rbac.AccessRequest{
		Role:      p.Role,
		Tool:      p.Tool,
		Domain:    p.Domain,
		MissionID: p.MissionID,
		UserID:    p.UserID,
	})
	return map[string]any{
		"allowed":             d.Allowed,
		"reason":              d.Reason,
		"category":            string(d.Category),
		"missing_permissions": d.Missing,
		"permissions_checked": d.Checked,
	}, nil
}

type historyParams struct {
	Action string `json:"action"`
	Limit  int    `json:"limit"`
}

func (s *Server) handleActionsHistory(ctx context.Context, params map[string]any) (any, error) {
	var p historyParams
	if err := tool.Decode(params, &p); err != nil {
		return nil, invalidParams("invalid actions.history params", err)
	}
	return s.backend.History(ctx, p.Action, p.Limit)
}

type rollbackParams struct {
	Tool        string `json:"tool"`
	ExecutionID string `json:"execution_id"`
}

func (s *Server) handleActionsRollback(ctx context.Context, params map[string]any) (any, error) {
	var p rollbackParams
	if err := tool.Decode(params, &p); err != nil {
		return nil, invalidParams("invalid actions.rollback params", err)
	}
	if p.Tool == "" || p.ExecutionID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "tool and execution_id are required"}
	}

	ok, err := s.backend.Rollback(ctx, p.Tool, p.ExecutionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"rolled_back": ok}, nil
}

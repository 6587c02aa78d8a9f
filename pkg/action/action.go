package action

import (
	"context"

	"github.com/harun/opsframe/pkg/tool"
)

// Action is a tool with real-world side effects. A Runner wraps it with
// cost estimation, risk tiering, approval, auditing and history.
type Action interface {
	Manifest() tool.Manifest

	// EstimateCost returns the expected USD cost of running params. It
	// must not cause side effects.
	EstimateCost(ctx context.Context, params map[string]any) (float64, error)

	// Describe renders a one-line, human readable summary for approvers.
	Describe(params map[string]any) string

	// Perform does the work. It runs only after any required approval.
	Perform(ctx context.Context, params map[string]any, execCtx *tool.ExecutionContext) (tool.Result, error)
}

// RiskAssessor lets an action override the cost-based risk tier.
type RiskAssessor interface {
	AssessRisk(params map[string]any, costUSD float64) RiskTier
}

// Reverser is implemented by actions that can undo a prior execution.
// Reverse returns false when the execution cannot be reversed, e.g. it is
// outside the provider's reversal window.
type Reverser interface {
	Reverse(ctx context.Context, entry HistoryEntry) (bool, error)
}

// Assessment is the pre-execution evaluation of an invocation.
type Assessment struct {
	CostUSD          float64  `json:"cost_estimate"`
	Tier             RiskTier `json:"risk_tier"`
	RequiresApproval bool     `json:"requires_approval"`
	Requires2FA      bool     `json:"requires_2fa"`
	Description      string   `json:"description"`
}

// Assess estimates cost and grades risk for params.
func Assess(ctx context.Context, a Action, params map[string]any) (Assessment, error) {
	cost, err := a.EstimateCost(ctx, params)
	if err != nil {
		return Assessment{}, err
	}

	tier := DefaultRiskTier(cost)
	if assessor, ok := a.(RiskAssessor); ok {
		tier = assessor.AssessRisk(params, cost)
	}

	return Assessment{
		CostUSD:          cost,
		Tier:             tier,
		RequiresApproval: tier.RequiresApproval(),
		Requires2FA:      tier.Requires2FA(),
		Description:      a.Describe(params),
	}, nil
}

// Package action wraps side-effecting tools with cost estimation, risk
// tiering, human approval, audit and rollback.
//
// A Runner drives each invocation through
//
//	validating -> cost_estimated -> [awaiting_approval -> approved|declined|timed_out]
//	           -> executing -> succeeded|failed
//
// and a succeeded execution may later move to rolled_back.
//
// Invariants:
//   - Cost is estimated before the cost cap is checked and before approval
//     is requested; a capped call never reaches the bus.
//   - MEDIUM risk and above require an affirmative reply on
//     TopicApprovalRequest unless the call is a dry run.
//   - Every Execute emits exactly one audit event.
//
// Usage:
//
//	runner := action.NewRunner(transfer, action.Services{
//		Approvals: messageBus,
//		Auditor:   auditLog,
//	})
//	result, _ := runner.Execute(ctx, params, execCtx)
package action

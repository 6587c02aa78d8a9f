// Package tool defines the contract every pluggable capability implements.
//
// Invariants:
// - Manifest names match ^[a-z][a-z0-9_]*$ and versions are MAJOR.MINOR.PATCH.
// - Expected failures are returned as a Result with a Category, never as an error.
// - Execute honors ExecutionContext.DryRun by simulating without durable side effects.
//
// Usage:
//
//	type echo struct{ manifest tool.Manifest }
//
//	func (e *echo) Manifest() tool.Manifest { return e.manifest }
//
//	func (e *echo) Execute(ctx context.Context, params map[string]any, execCtx *tool.ExecutionContext) (tool.Result, error) {
//		return tool.OK(params["text"]), nil
//	}
package tool

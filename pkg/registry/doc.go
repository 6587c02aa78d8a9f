// Package registry discovers tools, indexes them by name and executes them
// through a fixed gate sequence.
//
// Tools come from two places. Compiled-in implementations are added to the
// process-wide catalog with Provide, normally from an init function. On-disk
// units are directories holding a tool.json; the manifest's implementation
// field names the catalog entry that backs it:
//
//	tools/
//	  payroll_lookup/tool.json   {"name": "payroll_lookup", "implementation": "hris_lookup", ...}
//	  _drafts/                   skipped
//
// Execute never returns a Go error. Every outcome is a tool.Result whose
// Category tells the caller what went wrong:
//
//	NotFound -> PermissionDenied -> ValidationError -> Timeout|ExecutionError
//
// and exactly one audit event is recorded per call.
package registry

// Package audit is the append-only record of every access decision and
// action execution.
//
// Each event is one JSON line:
//
//	{"timestamp":"2025-01-02T15:04:05Z","mission_id":"m-1","role_id":"hr_recruiter",
//	 "tool_name":"hris_lookup","domain":"hr","allowed":true,"reason":"access granted",
//	 "user_id":"u-1","permissions_checked":["hris_read"],"metadata":{}}
//
// Query and Stats scan the file; Purge rewrites it without expired events
// and never drops lines it cannot parse.
package audit

package audit

import "time"

// Event is one immutable audit record: an access decision or an execution
// outcome. It is persisted as a single JSON line.
type Event struct {
	Timestamp          time.Time      `json:"timestamp"`
	MissionID          string         `json:"mission_id"`
	RoleID             string         `json:"role_id"`
	ToolName           string         `json:"tool_name"`
	Domain             string         `json:"domain"`
	Allowed            bool           `json:"allowed"`
	Reason             string         `json:"reason"`
	UserID             string         `json:"user_id"`
	PermissionsChecked []string       `json:"permissions_checked"`
	Metadata           map[string]any `json:"metadata"`
}

// Kind returns metadata["kind"], e.g. "access", "execution" or "rollback".
func (e Event) Kind() string {
	if kind, ok := e.Metadata["kind"].(string); ok {
		return kind
	}
	return ""
}

// Event kinds written into metadata["kind"].
const (
	KindAccess    = "access"
	KindExecution = "execution"
	KindRollback  = "rollback"
)

package platform

import (
	"context"

	"github.com/harun/opsframe/pkg/audit"
	"github.com/harun/opsframe/pkg/rbac"
	"github.com/rs/zerolog"
)

// accessRecorder writes permission engine decisions to the audit log.
type accessRecorder struct {
	log    *audit.Log
	logger zerolog.Logger
}

func (r *accessRecorder) RecordAccess(d rbac.Decision) {
	metadata := map[string]any{"kind": audit.KindAccess}
	if len(d.Missing) > 0 {
		metadata["missing_permissions"] = d.Missing
	}
	if d.Category != "" {
		metadata["category"] = string(d.Category)
	}

	ev := audit.Event{
		MissionID:          d.MissionID,
		RoleID:             d.Role,
		ToolName:           d.Tool,
		Domain:             d.Domain,
		Allowed:            d.Allowed,
		Reason:             d.Reason,
		UserID:             d.UserID,
		PermissionsChecked: d.Checked,
		Metadata:           metadata,
	}
	if err := r.log.Record(context.Background(), ev); err != nil {
		r.logger.Error().Err(err).Str("tool", d.Tool).Msg("Failed to record access decision")
	}
}

type fanout []rbac.Recorder

func (f fanout) RecordAccess(d rbac.Decision) {
	for _, r := range f {
		r.RecordAccess(d)
	}
}

package scenario

import (
	"context"
	"fmt"

	"mentor-training-platform/internal/audit"
)

// AuditAdapter bridges the pin engine's audit hook to the shared audit.Service.
//
// This keeps scenario internals from depending on persistence or on any user-facing surface.

type AuditAdapter struct {
	Audit *audit.Service

	// Actor info is optional for pin applications (they fire on the trainee's
	// own request path, not on an admin action).
	ActorUserID string
	ActorRole   string
}

func (a AuditAdapter) LogPinApplied(ctx context.Context, e PinAuditEvent) error {
	if a.Audit == nil {
		return nil
	}
	return a.Audit.Append(ctx, audit.Event{
		TeamID:      e.TeamID,
		Type:        audit.EventTypeScenarioPin,
		ActorUserID: a.ActorUserID,
		ActorRole:   a.ActorRole,
		ScenarioID:  e.ScenarioID,
		SubjectID:   e.UserID,
		Message:     "pinned scenario served",
		Metadata:    fmt.Sprintf(`{"pin_id":%q,"expires_at":%q}`, e.PinID, e.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00")),
	})
}

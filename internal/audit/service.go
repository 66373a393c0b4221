package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TeamID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records an admin action (including hidden roles).
func (s *Service) LogAdminAction(ctx context.Context, teamID, actorUserID, actorRole, ip, message, metadata string) error {
	return s.Append(ctx, Event{
		TeamID:      teamID,
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Message:     message,
		Metadata:    metadata,
	})
}

// LogEvaluationRetrigger records an admin wiping and re-running a call's scores.
func (s *Service) LogEvaluationRetrigger(ctx context.Context, teamID, actorUserID, actorRole, ip, callID string) error {
	return s.Append(ctx, Event{
		TeamID:      teamID,
		Type:        EventTypeEvaluationRetrigger,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		CallID:      callID,
		Message:     "evaluation re-triggered",
	})
}

// LogScenarioPin records a scenario pinned to (or released from) a trainee.
func (s *Service) LogScenarioPin(ctx context.Context, teamID, actorUserID, actorRole, ip, scenarioID, traineeID, message string) error {
	return s.Append(ctx, Event{
		TeamID:      teamID,
		Type:        EventTypeScenarioPin,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		ScenarioID:  scenarioID,
		SubjectID:   traineeID,
		Message:     message,
	})
}

// LogQuotaGrant records practice minutes granted to a team.
func (s *Service) LogQuotaGrant(ctx context.Context, teamID, actorUserID, actorRole, ip, metadata string) error {
	return s.Append(ctx, Event{
		TeamID:      teamID,
		Type:        EventTypeQuotaGrant,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Message:     "practice minutes granted",
		Metadata:    metadata,
	})
}

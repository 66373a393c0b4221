package scenario

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PinEngine applies silent, expiry-based scenario pins.
//
// Requirements:
// - Silent: trainees must not be able to infer that a pin was used.
//   That means: do NOT surface special reasons/messages to user-facing APIs.
// - Expiry based: pins must be time-bounded.
// - Internal audit logging: every served pin should be recorded.
//
// This component returns an Assignment only and is intended to be placed
// *ahead of* normal rotation in the Resolver.

type PinEngine struct {
	Store   PinStore
	Catalog *Catalog
	Audit   AuditLogger
	Now     func() time.Time
}

// PinStore resolves and manages pins. Implementations may use Postgres.
// At most one pin exists per (team, trainee).
type PinStore interface {
	// GetActivePin returns an active pin if one exists for this trainee.
	// If none exists, it returns (Pin{}, false, nil).
	GetActivePin(ctx context.Context, teamID, userID string, now time.Time) (Pin, bool, error)

	SetPin(ctx context.Context, p Pin) error
	ClearPin(ctx context.Context, teamID, userID string) error
}

// AuditLogger records internal-only audit events.
type AuditLogger interface {
	LogPinApplied(ctx context.Context, e PinAuditEvent) error
}

// Pin forces one trainee onto one scenario until it expires.
type Pin struct {
	ID         string    `json:"id" db:"id"`
	TeamID     string    `json:"team_id" db:"team_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	ScenarioID string    `json:"scenario_id" db:"scenario_id"`
	PinnedBy   string    `json:"pinned_by" db:"pinned_by"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	Note       string    `json:"note,omitempty" db:"note"`
}

type PinAuditEvent struct {
	TeamID     string
	UserID     string
	ScenarioID string
	PinID      string

	AppliedAt time.Time
	ExpiresAt time.Time
	Note      string
}

func NewPinEngine(store PinStore, catalog *Catalog, audit AuditLogger) *PinEngine {
	return &PinEngine{Store: store, Catalog: catalog, Audit: audit, Now: time.Now}
}

// Decide returns (assignment, true, nil) if an active pin was applied.
// Returns (Assignment{}, false, nil) if no pin applies.
func (e *PinEngine) Decide(ctx context.Context, teamID, userID string) (Assignment, bool, error) {
	if teamID == "" {
		return Assignment{}, false, errors.New("scenario: team_id required")
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.Store == nil {
		return Assignment{}, false, nil
	}

	now := e.Now()
	p, ok, err := e.Store.GetActivePin(ctx, teamID, userID, now)
	if err != nil {
		return Assignment{}, false, err
	}
	if !ok {
		return Assignment{}, false, nil
	}
	if !p.ExpiresAt.After(now) {
		// Treat as not found; store should ideally filter these out.
		return Assignment{}, false, nil
	}

	sc, err := e.Catalog.GetByID(ctx, teamID, p.ScenarioID)
	if err != nil {
		// Pin points at a deleted scenario: ignore it and let rotation run.
		if errors.Is(err, ErrNotFound) {
			return Assignment{}, false, nil
		}
		return Assignment{}, false, err
	}
	if !sc.Active {
		return Assignment{}, false, nil
	}

	// Silent: no special Reason on the outgoing assignment.
	a := Assignment{TeamID: teamID, UserID: userID, ScenarioID: sc.ID, Title: sc.Title}

	// Internal audit.
	if e.Audit != nil {
		_ = e.Audit.LogPinApplied(ctx, PinAuditEvent{
			TeamID:     teamID,
			UserID:     userID,
			ScenarioID: sc.ID,
			PinID:      p.ID,
			AppliedAt:  now,
			ExpiresAt:  p.ExpiresAt,
			Note:       p.Note,
		})
	}

	return a, true, nil
}

// SetPin validates and stores a pin. The scenario must exist and be active;
// the expiry must be in the future.
func (e *PinEngine) SetPin(ctx context.Context, p Pin) (Pin, error) {
	if e.Now == nil {
		e.Now = time.Now
	}
	if p.TeamID == "" || p.UserID == "" || p.ScenarioID == "" {
		return Pin{}, ErrInvalidPin
	}
	if !p.ExpiresAt.After(e.Now()) {
		return Pin{}, ErrInvalidPin
	}

	sc, err := e.Catalog.GetByID(ctx, p.TeamID, p.ScenarioID)
	if err != nil {
		return Pin{}, err
	}
	if !sc.Active {
		return Pin{}, ErrInvalidPin
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := e.Store.SetPin(ctx, p); err != nil {
		return Pin{}, err
	}
	return p, nil
}

func (e *PinEngine) ClearPin(ctx context.Context, teamID, userID string) error {
	if teamID == "" || userID == "" {
		return ErrInvalidPin
	}
	return e.Store.ClearPin(ctx, teamID, userID)
}

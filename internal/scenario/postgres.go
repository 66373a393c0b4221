package scenario

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresStore persists team-authored scenarios and pins.
//
// Assumed schema (managed by migrations, not this package):
//   scenarios(
//     id UUID PRIMARY KEY, team_id UUID, title TEXT, persona TEXT,
//     difficulty INT, focus TEXT, prompt TEXT, weight INT,
//     active BOOLEAN, created_at TIMESTAMPTZ)
//   scenario_pins(
//     id UUID PRIMARY KEY, team_id UUID, user_id UUID, scenario_id UUID,
//     pinned_by UUID, expires_at TIMESTAMPTZ, note TEXT,
//     created_at TIMESTAMPTZ,
//     UNIQUE (team_id, user_id))
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const scenarioColumns = `
id, team_id, title, persona, difficulty, focus, prompt, weight, active, created_at
`

func (s *PostgresStore) Create(ctx context.Context, sc Scenario) (Scenario, error) {
	if sc.TeamID == "" || sc.Title == "" || !ValidCriterion(sc.Focus) {
		return Scenario{}, ErrInvalidScenario
	}
	if sc.Difficulty < 1 || sc.Difficulty > 5 {
		return Scenario{}, ErrInvalidScenario
	}
	if sc.Weight < 0 {
		return Scenario{}, ErrInvalidScenario
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	sc.Active = true
	sc.CreatedAt = s.clock().UTC()

	const q = `
INSERT INTO scenarios (
  id, team_id, title, persona, difficulty, focus, prompt, weight, active, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := s.db.ExecContext(ctx, q,
		sc.ID,
		sc.TeamID,
		sc.Title,
		sc.Persona,
		sc.Difficulty,
		string(sc.Focus),
		sc.Prompt,
		sc.Weight,
		sc.Active,
		sc.CreatedAt,
	)
	if err != nil {
		return Scenario{}, fmt.Errorf("insert scenario: %w", err)
	}
	return sc, nil
}

// Deactivate retires a scenario from rotation. Existing calls keep their
// scenario_label, so history stays readable.
func (s *PostgresStore) Deactivate(ctx context.Context, teamID, id string) error {
	if teamID == "" || id == "" {
		return ErrInvalidScenario
	}
	const q = `UPDATE scenarios SET active = FALSE WHERE team_id = $1 AND id = $2`
	res, err := s.db.ExecContext(ctx, q, teamID, id)
	if err != nil {
		return fmt.Errorf("deactivate scenario: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context, teamID string) ([]Scenario, error) {
	q := `SELECT ` + scenarioColumns + ` FROM scenarios WHERE team_id = $1 AND active ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, q, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetByID(ctx context.Context, teamID, id string) (Scenario, error) {
	if id == "" {
		return Scenario{}, ErrNotFound
	}
	q := `SELECT ` + scenarioColumns + ` FROM scenarios WHERE team_id = $1 AND id = $2`
	return scanScenario(s.db.QueryRowContext(ctx, q, teamID, id))
}

func (s *PostgresStore) GetActivePin(ctx context.Context, teamID, userID string, now time.Time) (Pin, bool, error) {
	const q = `
SELECT id, team_id, user_id, scenario_id, pinned_by, expires_at, note
FROM scenario_pins
WHERE team_id = $1 AND user_id = $2 AND expires_at > $3
`
	var p Pin
	err := s.db.QueryRowContext(ctx, q, teamID, userID, now.UTC()).Scan(
		&p.ID, &p.TeamID, &p.UserID, &p.ScenarioID, &p.PinnedBy, &p.ExpiresAt, &p.Note,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Pin{}, false, nil
		}
		return Pin{}, false, err
	}
	return p, true, nil
}

// SetPin upserts: repinning a trainee replaces the previous pin.
func (s *PostgresStore) SetPin(ctx context.Context, p Pin) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const q = `
INSERT INTO scenario_pins (id, team_id, user_id, scenario_id, pinned_by, expires_at, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (team_id, user_id) DO UPDATE SET
  scenario_id = EXCLUDED.scenario_id,
  pinned_by   = EXCLUDED.pinned_by,
  expires_at  = EXCLUDED.expires_at,
  note        = EXCLUDED.note,
  created_at  = EXCLUDED.created_at
`
	_, err := s.db.ExecContext(ctx, q,
		p.ID, p.TeamID, p.UserID, p.ScenarioID, p.PinnedBy, p.ExpiresAt.UTC(), p.Note, s.clock().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set scenario pin: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearPin(ctx context.Context, teamID, userID string) error {
	const q = `DELETE FROM scenario_pins WHERE team_id = $1 AND user_id = $2`
	if _, err := s.db.ExecContext(ctx, q, teamID, userID); err != nil {
		return fmt.Errorf("clear scenario pin: %w", err)
	}
	return nil
}

func scanScenario(r interface{ Scan(dest ...any) error }) (Scenario, error) {
	var sc Scenario
	var focus string
	err := r.Scan(
		&sc.ID,
		&sc.TeamID,
		&sc.Title,
		&sc.Persona,
		&sc.Difficulty,
		&focus,
		&sc.Prompt,
		&sc.Weight,
		&sc.Active,
		&sc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Scenario{}, ErrNotFound
		}
		return Scenario{}, err
	}
	sc.Focus = Criterion(focus)
	return sc, nil
}

package practicecall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresStore persists practice calls in a single practice_calls table.
//
// Assumed schema (managed by migrations, not this package):
//   practice_calls(
//     id UUID PRIMARY KEY, team_id UUID, user_id UUID,
//     scenario_id UUID NULL, scenario_label TEXT, participant_name TEXT,
//     external_call_id TEXT NULL UNIQUE, status TEXT, outcome TEXT, notes TEXT,
//     started_at TIMESTAMPTZ, ended_at TIMESTAMPTZ NULL,
//     duration_seconds INT NULL, cost_usd NUMERIC NULL,
//     transcript TEXT NULL, recording_url TEXT NULL,
//     poll_state TEXT, poll_attempts INT,
//     overall_score INT NULL, tone_score INT NULL, rapport_score INT NULL,
//     empathy_score INT NULL, handling_score INT NULL, knowledge_score INT NULL,
//     feedback TEXT NULL, evaluated_at TIMESTAMPTZ NULL,
//     created_at TIMESTAMPTZ, updated_at TIMESTAMPTZ)
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const callColumns = `
id, team_id, user_id, scenario_id, scenario_label, participant_name,
external_call_id, status, outcome, notes, started_at, ended_at,
duration_seconds, cost_usd, transcript, recording_url,
poll_state, poll_attempts,
overall_score, tone_score, rapport_score, empathy_score, handling_score, knowledge_score,
feedback, evaluated_at, created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, call PracticeCall) (PracticeCall, error) {
	if call.TeamID == "" || call.UserID == "" {
		return PracticeCall{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.StartedAt.IsZero() {
		call.StartedAt = now
	}
	if call.Outcome == "" {
		call.Outcome = OutcomeNA
	}
	if !ValidOutcome(call.Outcome) {
		return PracticeCall{}, ErrInvalidArgument
	}
	if call.PollState == "" {
		call.PollState = PollStatePending
	}
	call.CreatedAt = now
	call.UpdatedAt = now

	const q = `
INSERT INTO practice_calls (
  id, team_id, user_id, scenario_id, scenario_label, participant_name,
  external_call_id, status, outcome, notes, started_at, ended_at,
  duration_seconds, cost_usd, transcript, recording_url,
  poll_state, poll_attempts,
  overall_score, tone_score, rapport_score, empathy_score, handling_score, knowledge_score,
  feedback, evaluated_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
  $19,$20,$21,$22,$23,$24,$25,$26,$27,$28
)
`
	_, err := s.db.ExecContext(ctx, q,
		call.ID,
		call.TeamID,
		call.UserID,
		nullString(call.ScenarioID),
		call.ScenarioLabel,
		call.ParticipantName,
		call.ExternalCallID,
		call.Status,
		string(call.Outcome),
		call.Notes,
		call.StartedAt,
		call.EndedAt,
		call.DurationSeconds,
		call.Cost,
		call.Transcript,
		call.RecordingURL,
		string(call.PollState),
		call.PollAttempts,
		call.OverallScore,
		call.ToneScore,
		call.RapportScore,
		call.EmpathyScore,
		call.HandlingScore,
		call.KnowledgeScore,
		call.Feedback,
		call.EvaluatedAt,
		call.CreatedAt,
		call.UpdatedAt,
	)
	if err != nil {
		return PracticeCall{}, fmt.Errorf("insert practice call: %w", err)
	}
	return call, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, teamID, id string) (PracticeCall, error) {
	if teamID == "" || id == "" {
		return PracticeCall{}, ErrInvalidArgument
	}
	q := `SELECT ` + callColumns + ` FROM practice_calls WHERE team_id = $1 AND id = $2`
	return scanCall(s.db.QueryRowContext(ctx, q, teamID, id))
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, externalCallID string) (PracticeCall, error) {
	if externalCallID == "" {
		return PracticeCall{}, ErrInvalidArgument
	}
	q := `SELECT ` + callColumns + ` FROM practice_calls WHERE external_call_id = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, externalCallID))
}

func (s *PostgresStore) ApplyRecordingData(ctx context.Context, id string, p RecordingPatch) error {
	if id == "" {
		return ErrInvalidArgument
	}
	if p.Empty() {
		return nil
	}
	// COALESCE keeps stored values when the patch field is NULL, so a later
	// thinner snapshot can never erase an earlier transcript or URL.
	const q = `
UPDATE practice_calls SET
  status           = COALESCE($2, status),
  transcript       = COALESCE($3, transcript),
  recording_url    = COALESCE($4, recording_url),
  duration_seconds = COALESCE($5, duration_seconds),
  cost_usd         = COALESCE($6, cost_usd),
  participant_name = COALESCE($7, participant_name),
  updated_at       = $8
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q,
		id,
		p.Status,
		p.Transcript,
		p.RecordingURL,
		p.DurationSeconds,
		p.Cost,
		p.ParticipantName,
		s.clock().UTC(),
	)
	if err != nil {
		return fmt.Errorf("apply recording data: %w", err)
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

func (s *PostgresStore) SetPollState(ctx context.Context, id string, state PollState, attempts int) error {
	if id == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE practice_calls SET poll_state = $2, poll_attempts = $3, updated_at = $4
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, id, string(state), attempts, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("set poll state: %w", err)
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

func (s *PostgresStore) CompleteCall(ctx context.Context, teamID, id string, endedAt time.Time, outcome Outcome, notes string) (PracticeCall, error) {
	if teamID == "" || id == "" {
		return PracticeCall{}, ErrInvalidArgument
	}
	if !ValidOutcome(outcome) {
		return PracticeCall{}, ErrInvalidArgument
	}
	q := `
UPDATE practice_calls SET ended_at = $3, outcome = $4, notes = $5, updated_at = $6
WHERE team_id = $1 AND id = $2 AND ended_at IS NULL
RETURNING ` + callColumns
	call, err := scanCall(s.db.QueryRowContext(ctx, q, teamID, id, endedAt.UTC(), string(outcome), notes, s.clock().UTC()))
	if err == nil {
		return call, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return PracticeCall{}, err
	}
	// Row missing or already completed; disambiguate for the caller.
	if _, getErr := s.GetByID(ctx, teamID, id); getErr != nil {
		return PracticeCall{}, getErr
	}
	return PracticeCall{}, ErrAlreadyCompleted
}

func (s *PostgresStore) ApplyEvaluation(ctx context.Context, id string, ev Evaluation, evaluatedAt time.Time) error {
	if id == "" {
		return ErrInvalidArgument
	}
	// Compare-and-set on evaluated_at: the second concurrent evaluator hits
	// zero rows and must not overwrite the winner's result.
	const q = `
UPDATE practice_calls SET
  overall_score = $2, tone_score = $3, rapport_score = $4, empathy_score = $5,
  handling_score = $6, knowledge_score = $7, feedback = $8,
  evaluated_at = $9, updated_at = $9
WHERE id = $1 AND evaluated_at IS NULL
`
	res, err := s.db.ExecContext(ctx, q,
		id,
		ev.Overall,
		ev.Tone,
		ev.Rapport,
		ev.Empathy,
		ev.Handling,
		ev.Knowledge,
		ev.Feedback,
		evaluatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("apply evaluation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		const existsQ = `SELECT EXISTS (SELECT 1 FROM practice_calls WHERE id = $1)`
		if err := s.db.QueryRowContext(ctx, existsQ, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadyEvaluated
	}
	return nil
}

func (s *PostgresStore) ClearEvaluation(ctx context.Context, teamID, id string) error {
	if teamID == "" || id == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE practice_calls SET
  overall_score = NULL, tone_score = NULL, rapport_score = NULL, empathy_score = NULL,
  handling_score = NULL, knowledge_score = NULL, feedback = NULL,
  evaluated_at = NULL, updated_at = $3
WHERE team_id = $1 AND id = $2
`
	res, err := s.db.ExecContext(ctx, q, teamID, id, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("clear evaluation: %w", err)
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

func (s *PostgresStore) ListPendingEvaluation(ctx context.Context, limit int) ([]PracticeCall, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
SELECT ` + callColumns + `
FROM practice_calls
WHERE evaluated_at IS NULL AND transcript IS NOT NULL AND btrim(transcript) <> ''
ORDER BY created_at ASC
LIMIT $1
`
	return s.queryCalls(ctx, q, limit)
}

func (s *PostgresStore) ListStalePolls(ctx context.Context, olderThan time.Time, limit int) ([]PracticeCall, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
SELECT ` + callColumns + `
FROM practice_calls
WHERE poll_state IN ('PENDING','POLLING')
  AND external_call_id IS NOT NULL
  AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2
`
	return s.queryCalls(ctx, q, olderThan.UTC(), limit)
}

func (s *PostgresStore) ListByRange(ctx context.Context, teamID string, from, to time.Time, userID string) ([]PracticeCall, error) {
	if teamID == "" || from.IsZero() || to.IsZero() {
		return nil, ErrInvalidArgument
	}
	if userID == "" {
		q := `
SELECT ` + callColumns + `
FROM practice_calls
WHERE team_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC
`
		return s.queryCalls(ctx, q, teamID, from.UTC(), to.UTC())
	}
	q := `
SELECT ` + callColumns + `
FROM practice_calls
WHERE team_id = $1 AND created_at >= $2 AND created_at < $3 AND user_id = $4
ORDER BY created_at ASC
`
	return s.queryCalls(ctx, q, teamID, from.UTC(), to.UTC(), userID)
}

func (s *PostgresStore) queryCalls(ctx context.Context, q string, args ...any) ([]PracticeCall, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PracticeCall
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(r rowScanner) (PracticeCall, error) {
	var c PracticeCall
	var (
		scenarioID sql.NullString
		external   sql.NullString
		endedAt    sql.NullTime
		duration   sql.NullInt64
		cost       sql.NullFloat64
		transcript sql.NullString
		recording  sql.NullString
		overall    sql.NullInt64
		tone       sql.NullInt64
		rapport    sql.NullInt64
		empathy    sql.NullInt64
		handling   sql.NullInt64
		knowledge  sql.NullInt64
		feedback   sql.NullString
		evaluated  sql.NullTime
		outcome    string
		pollState  string
	)
	err := r.Scan(
		&c.ID,
		&c.TeamID,
		&c.UserID,
		&scenarioID,
		&c.ScenarioLabel,
		&c.ParticipantName,
		&external,
		&c.Status,
		&outcome,
		&c.Notes,
		&c.StartedAt,
		&endedAt,
		&duration,
		&cost,
		&transcript,
		&recording,
		&pollState,
		&c.PollAttempts,
		&overall,
		&tone,
		&rapport,
		&empathy,
		&handling,
		&knowledge,
		&feedback,
		&evaluated,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PracticeCall{}, ErrNotFound
		}
		return PracticeCall{}, err
	}

	c.Outcome = Outcome(outcome)
	c.PollState = PollState(pollState)
	c.ScenarioID = scenarioID.String
	if external.Valid {
		c.ExternalCallID = &external.String
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	if duration.Valid {
		n := int(duration.Int64)
		c.DurationSeconds = &n
	}
	if cost.Valid {
		v := cost.Float64
		c.Cost = &v
	}
	if transcript.Valid {
		c.Transcript = &transcript.String
	}
	if recording.Valid {
		c.RecordingURL = &recording.String
	}
	c.OverallScore = nullableInt(overall)
	c.ToneScore = nullableInt(tone)
	c.RapportScore = nullableInt(rapport)
	c.EmpathyScore = nullableInt(empathy)
	c.HandlingScore = nullableInt(handling)
	c.KnowledgeScore = nullableInt(knowledge)
	if feedback.Valid {
		c.Feedback = &feedback.String
	}
	if evaluated.Valid {
		t := evaluated.Time
		c.EvaluatedAt = &t
	}
	return c, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

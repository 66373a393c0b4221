package practicecall

import (
	"strings"
	"time"
)

// PracticeCall is a tenant-scoped roleplay call record.
//
// Multi-tenant invariant: TeamID is required on every row.
//
// It is the single coordination point between three writers:
// the recording poller (recording fields), the trainee completion flow
// (ended_at/outcome/notes), and the evaluation orchestrator (score fields).
// Every writer patches only its own fields; nobody overwrites the whole row.
//
// NOTE: provider-specific identity lives in ExternalCallID; the provider's
// raw status string is stored verbatim in Status and not interpreted here.

type PracticeCall struct {
	ID     string `json:"id" db:"id"`
	TeamID string `json:"team_id" db:"team_id"`
	UserID string `json:"user_id" db:"user_id"`

	ScenarioID      string `json:"scenario_id,omitempty" db:"scenario_id"`
	ScenarioLabel   string `json:"scenario_label" db:"scenario_label"`
	ParticipantName string `json:"participant_name,omitempty" db:"participant_name"`

	ExternalCallID *string `json:"external_call_id,omitempty" db:"external_call_id"`
	Status         string  `json:"status" db:"status"`

	Outcome Outcome `json:"outcome" db:"outcome"`
	Notes   string  `json:"notes,omitempty" db:"notes"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds and Cost are provider-reported; nil until the poll
	// (or webhook) delivers them.
	DurationSeconds *int     `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Cost            *float64 `json:"cost,omitempty" db:"cost_usd"`

	Transcript   *string `json:"transcript,omitempty" db:"transcript"`
	RecordingURL *string `json:"recording_url,omitempty" db:"recording_url"`

	PollState    PollState `json:"poll_state" db:"poll_state"`
	PollAttempts int       `json:"poll_attempts" db:"poll_attempts"`

	// Evaluation fields are all-or-nothing: either every one of them is set
	// (EvaluatedAt included) or none is.
	OverallScore   *int       `json:"overall_score,omitempty" db:"overall_score"`
	ToneScore      *int       `json:"tone_score,omitempty" db:"tone_score"`
	RapportScore   *int       `json:"rapport_score,omitempty" db:"rapport_score"`
	EmpathyScore   *int       `json:"empathy_score,omitempty" db:"empathy_score"`
	HandlingScore  *int       `json:"handling_score,omitempty" db:"handling_score"`
	KnowledgeScore *int       `json:"knowledge_score,omitempty" db:"knowledge_score"`
	Feedback       *string    `json:"feedback,omitempty" db:"feedback"`
	EvaluatedAt    *time.Time `json:"evaluated_at,omitempty" db:"evaluated_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasTranscript reports whether a scoreable transcript is present.
// Whitespace-only transcripts do not count.
func (c PracticeCall) HasTranscript() bool {
	return c.Transcript != nil && strings.TrimSpace(*c.Transcript) != ""
}

func (c PracticeCall) HasRecording() bool {
	return c.RecordingURL != nil && *c.RecordingURL != ""
}

func (c PracticeCall) Evaluated() bool {
	return c.EvaluatedAt != nil
}

type Outcome string

const (
	OutcomePassed  Outcome = "PASSED"
	OutcomeImprove Outcome = "IMPROVE"
	OutcomeNA      Outcome = "N/A"
)

func ValidOutcome(o Outcome) bool {
	switch o {
	case OutcomePassed, OutcomeImprove, OutcomeNA:
		return true
	default:
		return false
	}
}

// PollState tracks the background recording poll per call.
// PENDING -> POLLING -> one of the terminal states.
type PollState string

const (
	PollStatePending   PollState = "PENDING"
	PollStatePolling   PollState = "POLLING"
	PollStateReady     PollState = "READY"     // transcript and recording both captured
	PollStatePartial   PollState = "PARTIAL"   // attempt budget spent, some data captured
	PollStateExhausted PollState = "EXHAUSTED" // attempt budget spent, nothing captured
	PollStateNotFound  PollState = "NOT_FOUND" // provider does not know the call
)

func (s PollState) Terminal() bool {
	switch s {
	case PollStateReady, PollStatePartial, PollStateExhausted, PollStateNotFound:
		return true
	default:
		return false
	}
}

// RecordingPatch is a field-level update from the poller or the provider
// webhook. Nil fields are left untouched in storage; a patch never clears
// previously captured data.
type RecordingPatch struct {
	Status          *string
	Transcript      *string
	RecordingURL    *string
	DurationSeconds *int
	Cost            *float64
	ParticipantName *string
}

func (p RecordingPatch) Empty() bool {
	return p.Status == nil &&
		p.Transcript == nil &&
		p.RecordingURL == nil &&
		p.DurationSeconds == nil &&
		p.Cost == nil &&
		p.ParticipantName == nil
}

// Evaluation carries the scored result to be flattened onto the record.
// All fields persist together; see Store.ApplyEvaluation.
type Evaluation struct {
	Overall   int
	Tone      int
	Rapport   int
	Empathy   int
	Handling  int
	Knowledge int
	Feedback  string
}

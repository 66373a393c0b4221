package scenario

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("scenario not found")
	ErrNoScenarios     = errors.New("no eligible scenarios")
	ErrInvalidPin      = errors.New("invalid scenario pin")
	ErrInvalidScenario = errors.New("invalid scenario")
)

// Criterion names a rubric dimension a scenario drills. Values match the
// score field names on practice calls.
type Criterion string

const (
	CriterionTone      Criterion = "tone"
	CriterionRapport   Criterion = "rapport"
	CriterionEmpathy   Criterion = "empathy"
	CriterionHandling  Criterion = "handling"
	CriterionKnowledge Criterion = "knowledge"
)

func ValidCriterion(c Criterion) bool {
	switch c {
	case CriterionTone, CriterionRapport, CriterionEmpathy, CriterionHandling, CriterionKnowledge:
		return true
	default:
		return false
	}
}

// Scenario is a roleplay script for practice calls. The voice-AI agent
// plays Persona; Focus names the rubric criterion the drill targets.
type Scenario struct {
	ID         string    `json:"id" db:"id"`
	TeamID     string    `json:"team_id,omitempty" db:"team_id"` // empty for builtins
	Title      string    `json:"title" db:"title"`
	Persona    string    `json:"persona" db:"persona"`
	Difficulty int       `json:"difficulty" db:"difficulty"` // 1 (intro) .. 5 (hostile)
	Focus      Criterion `json:"focus" db:"focus"`
	Prompt     string    `json:"prompt" db:"prompt"`
	Weight     int       `json:"weight" db:"weight"` // rotation weight; 0 = pin-only
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Assignment is the resolver's output: which scenario the trainee practices
// next.
//
// Reason is for internal logs/metrics only. User-facing APIs must not expose
// it: a pinned drill has to be indistinguishable from normal rotation.
type Assignment struct {
	TeamID     string `json:"team_id"`
	UserID     string `json:"user_id"`
	ScenarioID string `json:"scenario_id"`
	Title      string `json:"title"`

	Reason string `json:"reason,omitempty"`
}

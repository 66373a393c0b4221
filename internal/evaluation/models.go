package evaluation

import (
	"context"
	"errors"
	"math"
)

// ErrNoTranscript means the call has nothing scoreable. Evaluation is
// refused outright rather than returning a degenerate zero result.
var ErrNoTranscript = errors.New("evaluation: call has no transcript")

// Input is what a Scorer judges. AudioURL is optional; when absent, tone is
// scored from the transcript text alone.
type Input struct {
	Transcript   string
	ScenarioName string
	AudioURL     string
}

// Scorecard holds the five rubric criteria, each on a 0-100 scale.
type Scorecard struct {
	Tone      int `json:"tone"`
	Rapport   int `json:"rapport"`
	Empathy   int `json:"empathy"`
	Handling  int `json:"handling"`
	Knowledge int `json:"knowledge"`
}

// Clamped forces every criterion into [0, 100]. Applied to every scoring
// path so intermediate arithmetic can never leak out of range.
func (s Scorecard) Clamped() Scorecard {
	return Scorecard{
		Tone:      clamp(s.Tone),
		Rapport:   clamp(s.Rapport),
		Empathy:   clamp(s.Empathy),
		Handling:  clamp(s.Handling),
		Knowledge: clamp(s.Knowledge),
	}
}

// Overall is the rounded unweighted mean: each criterion contributes
// exactly 20%.
func (s Scorecard) Overall() int {
	sum := s.Tone + s.Rapport + s.Empathy + s.Handling + s.Knowledge
	return int(math.Round(float64(sum) / 5))
}

// Result is the full outcome of scoring one transcript.
type Result struct {
	Scorecard
	Overall  int    `json:"overall"`
	Feedback string `json:"feedback"`
}

// Scorer produces a Result for a transcript. Implementations must be
// stateless and side-effect-free; persistence belongs to the Service.
type Scorer interface {
	Score(ctx context.Context, in Input) (Result, error)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

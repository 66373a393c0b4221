package evaluation

import (
	"strings"
	"testing"
)

func TestFeedbackIsDeterministic(t *testing.T) {
	card := Scorecard{Tone: 81, Rapport: 55, Empathy: 90, Handling: 62, Knowledge: 77}
	first := ComposeFeedback(card, "Refund request")
	second := ComposeFeedback(card, "Refund request")
	if first != second {
		t.Fatalf("same scorecard produced different feedback:\n%q\n%q", first, second)
	}
}

func TestFeedbackFlagsByThreshold(t *testing.T) {
	// 75 is a strength (inclusive), 59 a focus area, 60-74 neither.
	card := Scorecard{Tone: 75, Rapport: 60, Empathy: 74, Handling: 59, Knowledge: 90}
	fb := ComposeFeedback(card, "")

	if !strings.HasPrefix(fb, "Overall 72/100: competent performance with room to grow.") {
		t.Fatalf("unexpected tier line:\n%s", fb)
	}

	strengths := section(t, fb, "Strengths:")
	for _, want := range []string{"Tone of voice (75/100)", "Knowledge (90/100)"} {
		if !strings.Contains(strengths, want) {
			t.Fatalf("strengths missing %q:\n%s", want, fb)
		}
	}
	if strings.Contains(strengths, "Showing empathy") {
		t.Fatalf("74 flagged as strength:\n%s", fb)
	}

	focus := section(t, fb, "Focus areas:")
	if !strings.Contains(focus, "Handling skills (59/100)") {
		t.Fatalf("focus missing handling:\n%s", fb)
	}
	if strings.Contains(focus, "Building rapport") {
		t.Fatalf("60 flagged as focus area:\n%s", fb)
	}

	if strings.Contains(fb, "Scenario notes:") {
		t.Fatalf("scenario section without a recognized title:\n%s", fb)
	}
}

func TestFeedbackOmitsEmptySections(t *testing.T) {
	card := Scorecard{Tone: 65, Rapport: 65, Empathy: 65, Handling: 65, Knowledge: 65}
	fb := ComposeFeedback(card, "Unmapped scenario")

	if strings.Contains(fb, "Strengths:") || strings.Contains(fb, "Focus areas:") {
		t.Fatalf("empty sections rendered:\n%s", fb)
	}
	if fb != "Overall 65/100: competent performance with room to grow." {
		t.Fatalf("unexpected feedback:\n%q", fb)
	}
}

func TestScenarioNotesKeyedOffTitle(t *testing.T) {
	card := Scorecard{Tone: 70, Rapport: 70, Empathy: 70, Handling: 70, Knowledge: 70}

	cases := []struct {
		title string
		want  string
	}{
		{"Refund request from upset parent", "Refund conversations"},
		{"Angry parent complaint", "De-escalate first"},
		{"Rescheduling a missed class", "two concrete time slots"},
		{"Trial lesson walkthrough", "trial-lesson calls"},
	}
	for _, tc := range cases {
		fb := ComposeFeedback(card, tc.title)
		if !strings.Contains(fb, "Scenario notes:") || !strings.Contains(fb, tc.want) {
			t.Fatalf("title %q: note %q missing:\n%s", tc.title, tc.want, fb)
		}
	}
}

func TestTierBoundaries(t *testing.T) {
	cases := []struct {
		overall int
		want    string
	}{
		{100, "excellent performance"},
		{85, "excellent performance"},
		{84, "strong performance"},
		{75, "strong performance"},
		{74, "competent performance with room to grow"},
		{60, "competent performance with room to grow"},
		{59, "needs focused practice"},
		{0, "needs focused practice"},
	}
	for _, tc := range cases {
		if got := tierLabel(tc.overall); got != tc.want {
			t.Fatalf("tierLabel(%d) = %q, want %q", tc.overall, got, tc.want)
		}
	}
}

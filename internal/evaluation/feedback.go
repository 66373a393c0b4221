package evaluation

import (
	"fmt"
	"strings"
)

// Feedback thresholds. A criterion at or above strengthThreshold is called
// out as a strength; strictly below improvementThreshold as a focus area;
// anything between is not flagged either way.
const (
	strengthThreshold    = 75
	improvementThreshold = 60
)

type criterion struct {
	name  string
	score int
}

func criteria(card Scorecard) []criterion {
	return []criterion{
		{"Tone of voice", card.Tone},
		{"Building rapport", card.Rapport},
		{"Showing empathy", card.Empathy},
		{"Handling skills", card.Handling},
		{"Knowledge", card.Knowledge},
	}
}

// ComposeFeedback renders the narrative for a scorecard. It is fully
// deterministic: the same scores and scenario always produce the same text,
// with stable section headings and criterion order, so re-scoring identical
// input never churns stored feedback.
func ComposeFeedback(card Scorecard, scenarioName string) string {
	overall := card.Overall()

	var b strings.Builder
	fmt.Fprintf(&b, "Overall %d/100: %s.", overall, tierLabel(overall))

	var strengths, focus []criterion
	for _, c := range criteria(card) {
		switch {
		case c.score >= strengthThreshold:
			strengths = append(strengths, c)
		case c.score < improvementThreshold:
			focus = append(focus, c)
		}
	}

	if len(strengths) > 0 {
		b.WriteString("\n\nStrengths:")
		for _, c := range strengths {
			fmt.Fprintf(&b, "\n- %s (%d/100)", c.name, c.score)
		}
	}
	if len(focus) > 0 {
		b.WriteString("\n\nFocus areas:")
		for _, c := range focus {
			fmt.Fprintf(&b, "\n- %s (%d/100)", c.name, c.score)
		}
	}
	if note := scenarioNote(scenarioName); note != "" {
		b.WriteString("\n\nScenario notes:\n- ")
		b.WriteString(note)
	}

	return b.String()
}

func tierLabel(overall int) string {
	switch {
	case overall >= 85:
		return "excellent performance"
	case overall >= strengthThreshold:
		return "strong performance"
	case overall >= improvementThreshold:
		return "competent performance with room to grow"
	default:
		return "needs focused practice"
	}
}

// scenarioNote keys coaching advice off recognized scenario-title
// substrings. Unrecognized titles get no scenario section.
func scenarioNote(scenarioName string) string {
	title := strings.ToLower(scenarioName)
	switch {
	case strings.Contains(title, "refund"):
		return "Refund conversations land best when the policy explanation is followed by one concrete next step for the caller."
	case strings.Contains(title, "complaint"), strings.Contains(title, "angry"):
		return "De-escalate first: acknowledge the frustration explicitly before moving to resolution."
	case strings.Contains(title, "schedul"):
		return "Offer two concrete time slots instead of an open-ended availability question."
	case strings.Contains(title, "trial"):
		return "Close trial-lesson calls by confirming the booking and what the student should prepare."
	default:
		return ""
	}
}

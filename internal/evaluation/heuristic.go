package evaluation

import (
	"context"
	"regexp"
	"strings"
)

// HeuristicScorer grades a transcript with lexical analysis only: phrase
// presence per criterion, filler-word penalties normalized by transcript
// length, and fixed per-criterion baselines. Deterministic by construction,
// so it doubles as the fallback when the completion-API path fails.
type HeuristicScorer struct{}

func NewHeuristicScorer() *HeuristicScorer { return &HeuristicScorer{} }

// Phrase tables are matched against the lowercased transcript. Overlapping
// entries are deliberate: a fuller phrase landing alongside its stem is a
// stronger signal and earns both hits.
var (
	empathyPhrases = []string{
		"i understand",
		"understand your",
		"your concern",
		"i hear you",
		"that must be",
		"i'm sorry",
		"i am sorry",
		"i apologize",
		"i can imagine",
		"appreciate your patience",
		"how you feel",
	}

	rapportMarkers = []string{
		"together",
		"we can",
		"let's",
		"thanks for",
		"thank you for",
		"great question",
		"happy to help",
		"i'm here",
		"glad you",
	}

	handlingMarkers = []string{
		"solution",
		"resolve",
		"let me",
		"i will",
		"i'll",
		"next step",
		"option",
		"recommend",
		"schedule",
		"follow up",
		"arrange",
	}

	knowledgeTerms = []string{
		"policy",
		"research",
		"ebbinghaus",
		"curriculum",
		"spaced repetition",
		"methodology",
		"study plan",
		"based on our",
		"according to our",
		"certified",
	}

	// e.g. "12-class" or "12 class": citing concrete program structure.
	classCountPattern = regexp.MustCompile(`\d+[- ]class`)

	politenessMarkers = []string{"please", "thank you", "thanks", "you're welcome", "my pleasure"}

	multiWordFillers = []string{"you know", "i mean", "kind of", "sort of"}
)

func (h *HeuristicScorer) Score(_ context.Context, in Input) (Result, error) {
	if strings.TrimSpace(in.Transcript) == "" {
		return Result{}, ErrNoTranscript
	}

	text := strings.ToLower(in.Transcript)
	words := normalizedWords(text)

	card := Scorecard{
		Tone:      scoreTone(text, words),
		Rapport:   50 + 10*countPhrases(text, rapportMarkers),
		Empathy:   50 + 15*countPhrases(text, empathyPhrases),
		Handling:  50 + 10*countPhrases(text, handlingMarkers),
		Knowledge: scoreKnowledge(text),
	}.Clamped()

	return Result{
		Scorecard: card,
		Overall:   card.Overall(),
		Feedback:  ComposeFeedback(card, in.ScenarioName),
	}, nil
}

// scoreTone starts from a neutral 70 and moves on delivery signals: filler
// density (per-100-words, so long calls are not punished for absolute
// counts) pulls it down, politeness pushes it up.
func scoreTone(text string, words []string) int {
	fillers := 0
	for _, w := range words {
		switch w {
		case "um", "uh", "erm", "uhm":
			fillers++
		}
	}
	for _, phrase := range multiWordFillers {
		fillers += strings.Count(text, phrase)
	}

	penalty := 0
	if len(words) > 0 {
		rate := fillers * 100 / len(words)
		penalty = rate * 3
		if penalty > 30 {
			penalty = 30
		}
	}

	bonus := 0
	for _, p := range politenessMarkers {
		if strings.Contains(text, p) {
			bonus += 5
		}
	}
	if bonus > 15 {
		bonus = 15
	}

	return clamp(70 - penalty + bonus)
}

// scoreKnowledge rewards grounded claims: program vocabulary plus citing a
// concrete class count ("12-class") both count.
func scoreKnowledge(text string) int {
	hits := countPhrases(text, knowledgeTerms)
	if classCountPattern.MatchString(text) {
		hits++
	}
	return clamp(45 + 12*hits)
}

func countPhrases(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(text, p) {
			n++
		}
	}
	return n
}

// normalizedWords splits the lowercased transcript into tokens with edge
// punctuation stripped, so "um," counts as the filler "um".
func normalizedWords(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.Trim(f, ".,!?;:\"'()[]")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

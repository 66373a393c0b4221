package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mentor-training-platform/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

const llmSystemPrompt = `You are a strict call-center training coach. Grade the mentor's side of a practice call transcript on five criteria, each 0-100: tone (delivery and professionalism), rapport (connection with the caller), empathy (acknowledging feelings), handling (moving the call toward resolution), knowledge (accurate program and policy information). Respond with a single JSON object: {"tone":int,"rapport":int,"empathy":int,"handling":int,"knowledge":int,"commentary":string}. The commentary is two or three sentences of concrete coaching advice. No other text.`

// LLMScorer grades transcripts through an OpenAI-compatible completion API.
// Every failure mode falls back to the heuristic scorer, so callers always
// get a usable Result; the completion path only ever improves on it.
//
// Per-criterion scores come from the model, but the overall score and the
// structured feedback sections are recomputed locally so which criteria get
// flagged stays rule-based and reproducible.
type LLMScorer struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	fallback Scorer
	log      *slog.Logger
}

// NewScorerFromConfig returns the completion-backed scorer when the LLM
// section is enabled and keyed, otherwise the plain heuristic scorer.
func NewScorerFromConfig(cfg config.LLMConfig, log *slog.Logger) Scorer {
	heuristic := NewHeuristicScorer()
	if !cfg.Enabled || cfg.APIKey == "" {
		return heuristic
	}

	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	return NewLLMScorer(openai.NewClientWithConfig(cc), cfg.Model, cfg.Timeout, heuristic, log)
}

func NewLLMScorer(client *openai.Client, model string, timeout time.Duration, fallback Scorer, log *slog.Logger) *LLMScorer {
	if fallback == nil {
		fallback = NewHeuristicScorer()
	}
	if log == nil {
		log = slog.Default()
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &LLMScorer{
		client:   client,
		model:    model,
		timeout:  timeout,
		fallback: fallback,
		log:      log,
	}
}

type llmScorecard struct {
	Tone       int    `json:"tone"`
	Rapport    int    `json:"rapport"`
	Empathy    int    `json:"empathy"`
	Handling   int    `json:"handling"`
	Knowledge  int    `json:"knowledge"`
	Commentary string `json:"commentary"`
}

func (s *LLMScorer) Score(ctx context.Context, in Input) (Result, error) {
	if strings.TrimSpace(in.Transcript) == "" {
		return Result{}, ErrNoTranscript
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llmSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(in)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := s.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return s.fallbackScore(ctx, in, fmt.Errorf("completion request: %w", err))
	}
	if len(resp.Choices) == 0 {
		return s.fallbackScore(ctx, in, fmt.Errorf("completion returned no choices"))
	}

	var sc llmScorecard
	if err := json.Unmarshal([]byte(extractJSON(resp.Choices[0].Message.Content)), &sc); err != nil {
		return s.fallbackScore(ctx, in, fmt.Errorf("decode scorecard: %w", err))
	}

	card := Scorecard{
		Tone:      sc.Tone,
		Rapport:   sc.Rapport,
		Empathy:   sc.Empathy,
		Handling:  sc.Handling,
		Knowledge: sc.Knowledge,
	}.Clamped()

	feedback := ComposeFeedback(card, in.ScenarioName)
	if commentary := strings.TrimSpace(sc.Commentary); commentary != "" {
		feedback += "\n\nCoach commentary:\n" + commentary
	}

	return Result{
		Scorecard: card,
		Overall:   card.Overall(),
		Feedback:  feedback,
	}, nil
}

// fallbackScore runs the heuristic path on the parent context, so a timed
// out completion call does not poison the fallback.
func (s *LLMScorer) fallbackScore(ctx context.Context, in Input, cause error) (Result, error) {
	s.log.Warn("completion scoring failed, falling back to heuristic", "err", cause)
	return s.fallback.Score(ctx, in)
}

func buildUserPrompt(in Input) string {
	var b strings.Builder
	if in.ScenarioName != "" {
		fmt.Fprintf(&b, "Scenario: %s\n", in.ScenarioName)
	}
	if in.AudioURL != "" {
		b.WriteString("A call recording exists; weigh delivery accordingly.\n")
	}
	b.WriteString("Transcript:\n")
	b.WriteString(in.Transcript)
	return b.String()
}

// extractJSON trims any prose or markdown fences a model wraps around the
// JSON object.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

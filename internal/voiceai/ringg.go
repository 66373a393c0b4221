package voiceai

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"mentor-training-platform/internal/config"

	"github.com/go-resty/resty/v2"
)

// RinggProvider talks to the Ringg AI calling API.
//
// The API exposes a single call-detail endpoint that carries status,
// transcript, recording URL, duration and cost together. Retry policy is
// deliberately NOT configured on the client; the recording poller owns
// retries and backoff.
type RinggProvider struct {
	http *resty.Client
}

func NewRinggProvider(cfg config.ProviderConfig) *RinggProvider {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("X-API-KEY", cfg.APIKey).
		SetHeader("Accept", "application/json")
	return &RinggProvider{http: client}
}

func (p *RinggProvider) Name() string { return "ringg" }

func (p *RinggProvider) HealthCheck(ctx context.Context) error {
	// Ringg has no dedicated health endpoint; connectivity problems surface
	// on the first snapshot fetch.
	_ = ctx
	return nil
}

func (p *RinggProvider) FetchCallSnapshot(ctx context.Context, externalCallID string) (CallSnapshot, error) {
	id := strings.TrimSpace(externalCallID)
	if id == "" {
		return CallSnapshot{}, ErrCallNotFound
	}

	var body ringgCallResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetResult(&body).
		SetPathParam("call_id", id).
		Get("/api/v0/calling/call/{call_id}")
	if err != nil {
		return CallSnapshot{}, fmt.Errorf("voiceai: fetch call snapshot: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return CallSnapshot{}, ErrCallNotFound
	}
	if resp.IsError() {
		return CallSnapshot{}, fmt.Errorf("voiceai: provider returned %s", resp.Status())
	}
	return body.toSnapshot(id), nil
}

// ringgCallResponse mirrors the subset of the Ringg call-detail payload we
// consume. Every field may be absent while the call is still being processed.
type ringgCallResponse struct {
	Data struct {
		ID            string                `json:"id"`
		Status        string                `json:"status"`
		CallDuration  *float64              `json:"call_duration"`
		TotalCost     *float64              `json:"total_cost"`
		RecordingURL  *string               `json:"recording_url"`
		Transcript    *string               `json:"transcript"`
		Transcription []ringgTranscriptTurn `json:"transcription"`
		CalleeName    *string               `json:"callee_name"`
	} `json:"data"`
}

type ringgTranscriptTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func (r ringgCallResponse) toSnapshot(externalCallID string) CallSnapshot {
	snap := CallSnapshot{
		ExternalCallID:  externalCallID,
		Status:          r.Data.Status,
		RecordingURL:    cleanOptional(r.Data.RecordingURL),
		Cost:            r.Data.TotalCost,
		ParticipantName: cleanOptional(r.Data.CalleeName),
	}

	// Prefer the flat transcript; fall back to flattening the turn list so
	// callers never deal with the provider's structured form.
	if t := cleanOptional(r.Data.Transcript); t != nil {
		snap.Transcript = t
	} else if flat := flattenTurns(r.Data.Transcription); flat != "" {
		snap.Transcript = &flat
	}

	if r.Data.CallDuration != nil {
		sec := int(math.Round(*r.Data.CallDuration))
		if sec >= 0 {
			snap.DurationSeconds = &sec
		}
	}
	return snap
}

func flattenTurns(turns []ringgTranscriptTurn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		speaker := strings.TrimSpace(turn.Speaker)
		if speaker != "" {
			b.WriteString(speaker)
			b.WriteString(": ")
		}
		b.WriteString(text)
	}
	return b.String()
}

func cleanOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

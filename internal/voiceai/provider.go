package voiceai

import (
	"context"
	"errors"
	"strings"
)

// Provider defines the provider-agnostic interface used by business logic.
//
// Rules:
// - No provider HTTP calls outside voiceai adapters.
// - A snapshot is one round-trip: transcript and recording always come from
//   the same response, never from separate endpoints, so callers never see
//   an inconsistent half-view.
// - Absent fields stay nil; callers must tolerate partial snapshots.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// FetchCallSnapshot returns the provider's current view of a call.
	// Unknown or malformed call IDs yield ErrCallNotFound, which is terminal;
	// any other error is transient and may be retried by the caller.
	FetchCallSnapshot(ctx context.Context, externalCallID string) (CallSnapshot, error)
}

// ErrCallNotFound means the provider does not know the call. Distinct from
// transient fetch failures: pollers must stop on it, not retry.
var ErrCallNotFound = errors.New("voiceai: call not found")

// CallSnapshot is a provider-agnostic view of a call's readiness.
type CallSnapshot struct {
	ExternalCallID string `json:"external_call_id"`

	// Status is the provider's raw status string, stored verbatim.
	Status string `json:"status"`

	Transcript      *string  `json:"transcript,omitempty"`
	RecordingURL    *string  `json:"recording_url,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
	Cost            *float64 `json:"cost,omitempty"`
	ParticipantName *string  `json:"participant_name,omitempty"`
}

func (s CallSnapshot) HasTranscript() bool {
	return s.Transcript != nil && strings.TrimSpace(*s.Transcript) != ""
}

func (s CallSnapshot) HasRecording() bool {
	return s.RecordingURL != nil && *s.RecordingURL != ""
}

// Ready reports whether both transcript and recording have arrived.
func (s CallSnapshot) Ready() bool {
	return s.HasTranscript() && s.HasRecording()
}

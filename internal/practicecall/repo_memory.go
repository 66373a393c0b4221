package practicecall

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store useful for tests and early development.
// Semantics mirror PostgresStore, including the evaluated_at compare-and-set.
//
// NOTE: This is not intended for production; use PostgresStore.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]PracticeCall
	byExt map[string]string

	Clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls: make(map[string]PracticeCall),
		byExt: make(map[string]string),
		Clock: time.Now,
	}
}

func (s *MemoryStore) now() time.Time { return s.Clock().UTC() }

func (s *MemoryStore) Create(ctx context.Context, call PracticeCall) (PracticeCall, error) {
	_ = ctx
	if call.TeamID == "" || call.UserID == "" {
		return PracticeCall{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
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

	s.calls[call.ID] = call
	if call.ExternalCallID != nil && *call.ExternalCallID != "" {
		s.byExt[*call.ExternalCallID] = call.ID
	}
	return call, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, teamID, id string) (PracticeCall, error) {
	_ = ctx
	if teamID == "" || id == "" {
		return PracticeCall{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok || c.TeamID != teamID {
		return PracticeCall{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetByExternalID(ctx context.Context, externalCallID string) (PracticeCall, error) {
	_ = ctx
	if externalCallID == "" {
		return PracticeCall{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byExt[externalCallID]
	if !ok {
		return PracticeCall{}, ErrNotFound
	}
	return s.calls[id], nil
}

func (s *MemoryStore) ApplyRecordingData(ctx context.Context, id string, p RecordingPatch) error {
	_ = ctx
	if id == "" {
		return ErrInvalidArgument
	}
	if p.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Transcript != nil {
		v := *p.Transcript
		c.Transcript = &v
	}
	if p.RecordingURL != nil {
		v := *p.RecordingURL
		c.RecordingURL = &v
	}
	if p.DurationSeconds != nil {
		v := *p.DurationSeconds
		c.DurationSeconds = &v
	}
	if p.Cost != nil {
		v := *p.Cost
		c.Cost = &v
	}
	if p.ParticipantName != nil {
		c.ParticipantName = *p.ParticipantName
	}
	c.UpdatedAt = s.now()
	s.calls[id] = c
	return nil
}

func (s *MemoryStore) SetPollState(ctx context.Context, id string, state PollState, attempts int) error {
	_ = ctx
	if id == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.PollState = state
	c.PollAttempts = attempts
	c.UpdatedAt = s.now()
	s.calls[id] = c
	return nil
}

func (s *MemoryStore) CompleteCall(ctx context.Context, teamID, id string, endedAt time.Time, outcome Outcome, notes string) (PracticeCall, error) {
	_ = ctx
	if teamID == "" || id == "" {
		return PracticeCall{}, ErrInvalidArgument
	}
	if !ValidOutcome(outcome) {
		return PracticeCall{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok || c.TeamID != teamID {
		return PracticeCall{}, ErrNotFound
	}
	if c.EndedAt != nil {
		return PracticeCall{}, ErrAlreadyCompleted
	}
	t := endedAt.UTC()
	c.EndedAt = &t
	c.Outcome = outcome
	c.Notes = notes
	c.UpdatedAt = s.now()
	s.calls[id] = c
	return c, nil
}

func (s *MemoryStore) ApplyEvaluation(ctx context.Context, id string, ev Evaluation, evaluatedAt time.Time) error {
	_ = ctx
	if id == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	if c.EvaluatedAt != nil {
		return ErrAlreadyEvaluated
	}
	overall, tone, rapport := ev.Overall, ev.Tone, ev.Rapport
	empathy, handling, knowledge := ev.Empathy, ev.Handling, ev.Knowledge
	feedback := ev.Feedback
	at := evaluatedAt.UTC()

	c.OverallScore = &overall
	c.ToneScore = &tone
	c.RapportScore = &rapport
	c.EmpathyScore = &empathy
	c.HandlingScore = &handling
	c.KnowledgeScore = &knowledge
	c.Feedback = &feedback
	c.EvaluatedAt = &at
	c.UpdatedAt = at
	s.calls[id] = c
	return nil
}

func (s *MemoryStore) ClearEvaluation(ctx context.Context, teamID, id string) error {
	_ = ctx
	if teamID == "" || id == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[id]
	if !ok || c.TeamID != teamID {
		return ErrNotFound
	}
	c.OverallScore = nil
	c.ToneScore = nil
	c.RapportScore = nil
	c.EmpathyScore = nil
	c.HandlingScore = nil
	c.KnowledgeScore = nil
	c.Feedback = nil
	c.EvaluatedAt = nil
	c.UpdatedAt = s.now()
	s.calls[id] = c
	return nil
}

func (s *MemoryStore) ListPendingEvaluation(ctx context.Context, limit int) ([]PracticeCall, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PracticeCall
	for _, c := range s.calls {
		if c.Evaluated() || !c.HasTranscript() {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListByRange(ctx context.Context, teamID string, from, to time.Time, userID string) ([]PracticeCall, error) {
	_ = ctx
	if teamID == "" || from.IsZero() || to.IsZero() {
		return nil, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PracticeCall
	for _, c := range s.calls {
		if c.TeamID != teamID {
			continue
		}
		if userID != "" && c.UserID != userID {
			continue
		}
		if c.CreatedAt.Before(from.UTC()) || !c.CreatedAt.Before(to.UTC()) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListStalePolls(ctx context.Context, olderThan time.Time, limit int) ([]PracticeCall, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PracticeCall
	for _, c := range s.calls {
		if c.PollState.Terminal() {
			continue
		}
		if c.ExternalCallID == nil || *c.ExternalCallID == "" {
			continue
		}
		if !c.UpdatedAt.Before(olderThan.UTC()) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

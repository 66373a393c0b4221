package scenario

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Source + PinStore for tests and early
// development. Semantics mirror PostgresStore, including the one-pin-per-
// trainee upsert.
type MemoryStore struct {
	mu        sync.Mutex
	scenarios map[string]Scenario
	pins      map[string]Pin // keyed team_id + "/" + user_id

	Clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scenarios: make(map[string]Scenario),
		pins:      make(map[string]Pin),
		Clock:     time.Now,
	}
}

// Seed installs scenarios directly, bypassing Create validation.
func (s *MemoryStore) Seed(list ...Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range list {
		s.scenarios[sc.ID] = sc
	}
}

func (s *MemoryStore) Create(ctx context.Context, sc Scenario) (Scenario, error) {
	_ = ctx
	if sc.TeamID == "" || sc.Title == "" || !ValidCriterion(sc.Focus) {
		return Scenario{}, ErrInvalidScenario
	}
	if sc.Difficulty < 1 || sc.Difficulty > 5 {
		return Scenario{}, ErrInvalidScenario
	}
	if sc.Weight < 0 {
		return Scenario{}, ErrInvalidScenario
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	sc.Active = true
	sc.CreatedAt = s.Clock().UTC()
	s.scenarios[sc.ID] = sc
	return sc, nil
}

func (s *MemoryStore) Deactivate(ctx context.Context, teamID, id string) error {
	_ = ctx
	if teamID == "" || id == "" {
		return ErrInvalidScenario
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scenarios[id]
	if !ok || sc.TeamID != teamID {
		return ErrNotFound
	}
	sc.Active = false
	s.scenarios[id] = sc
	return nil
}

func (s *MemoryStore) ListActive(ctx context.Context, teamID string) ([]Scenario, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Scenario
	for _, sc := range s.scenarios {
		if sc.TeamID == teamID && sc.Active {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, teamID, id string) (Scenario, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scenarios[id]
	if !ok || sc.TeamID != teamID {
		return Scenario{}, ErrNotFound
	}
	return sc, nil
}

func (s *MemoryStore) GetActivePin(ctx context.Context, teamID, userID string, now time.Time) (Pin, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pins[pinKey(teamID, userID)]
	if !ok || !p.ExpiresAt.After(now) {
		return Pin{}, false, nil
	}
	return p, true, nil
}

func (s *MemoryStore) SetPin(ctx context.Context, p Pin) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.pins[pinKey(p.TeamID, p.UserID)] = p
	return nil
}

func (s *MemoryStore) ClearPin(ctx context.Context, teamID, userID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pins, pinKey(teamID, userID))
	return nil
}

func pinKey(teamID, userID string) string { return teamID + "/" + userID }

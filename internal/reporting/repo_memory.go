package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/quota"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early development.
// It enforces team isolation on reads.

type MemoryRepo struct {
	mu sync.Mutex

	Calls  []practicecall.PracticeCall
	Ledger []quota.LedgerEntry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, teamID string, from, to time.Time, userID string) ([]practicecall.PracticeCall, error) {
	if teamID == "" {
		return nil, errors.New("team_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]practicecall.PracticeCall, 0)
	for _, c := range r.Calls {
		if c.TeamID != teamID {
			continue
		}
		if !c.CreatedAt.IsZero() {
			if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
				continue
			}
		}
		if userID != "" && c.UserID != userID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) ListQuotaLedger(ctx context.Context, teamID string, from, to time.Time, userID string) ([]quota.LedgerEntry, error) {
	if teamID == "" {
		return nil, errors.New("team_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]quota.LedgerEntry, 0)
	for _, e := range r.Ledger {
		if e.TeamID != teamID {
			continue
		}
		if !e.CreatedAt.IsZero() {
			if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
				continue
			}
		}
		if userID != "" && e.UserID != userID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

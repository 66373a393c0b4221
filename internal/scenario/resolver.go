package scenario

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// ProgressSource reports which rubric criterion a trainee is currently
// weakest on, based on their evaluated call history. ok=false means there
// is not enough history to say.
type ProgressSource interface {
	WeakestCriterion(ctx context.Context, teamID, userID string) (Criterion, bool, error)
}

// Resolver picks the next scenario for a trainee.
//
// Priority order:
//  1. Active pin (silent, expiry-based, audit logged).
//  2. Weakest-criterion targeting: prefer scenarios whose Focus matches
//     the criterion the trainee scores lowest on.
//  3. Weighted random rotation across the active catalog.
type Resolver struct {
	Pins     *PinEngine
	Catalog  *Catalog
	Progress ProgressSource
	RNG      *rand.Rand
	Log      *slog.Logger
}

func NewResolver(pins *PinEngine, catalog *Catalog, progress ProgressSource, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		Pins:     pins,
		Catalog:  catalog,
		Progress: progress,
		RNG:      rand.New(rand.NewSource(time.Now().UnixNano())),
		Log:      log,
	}
}

// Resolve returns the scenario assignment for one trainee. It never returns
// a pinned assignment that looks different from a rotation assignment.
func (r *Resolver) Resolve(ctx context.Context, teamID, userID string) (Assignment, error) {
	// Step 1: pins beat everything.
	if r.Pins != nil {
		a, ok, err := r.Pins.Decide(ctx, teamID, userID)
		if err != nil {
			return Assignment{}, err
		}
		if ok {
			return a, nil
		}
	}

	list, err := r.Catalog.ListActive(ctx, teamID)
	if err != nil {
		return Assignment{}, err
	}
	if len(list) == 0 {
		return Assignment{}, ErrNoScenarios
	}

	// Step 2: target the trainee's weakest criterion when history allows.
	// Progress lookups are advisory: failures fall through to rotation.
	if r.Progress != nil {
		weak, ok, err := r.Progress.WeakestCriterion(ctx, teamID, userID)
		if err != nil {
			log := r.Log
			if log == nil {
				log = slog.Default()
			}
			log.Warn("weakest-criterion lookup failed, falling back to rotation",
				"team_id", teamID, "user_id", userID, "error", err)
		} else if ok {
			focused := filterByFocus(list, weak)
			if sc, picked := r.pick(focused); picked {
				return Assignment{
					TeamID:     teamID,
					UserID:     userID,
					ScenarioID: sc.ID,
					Title:      sc.Title,
					Reason:     "focus:" + string(weak),
				}, nil
			}
		}
	}

	// Step 3: weighted rotation.
	sc, picked := r.pick(list)
	if !picked {
		return Assignment{}, ErrNoScenarios
	}
	return Assignment{
		TeamID:     teamID,
		UserID:     userID,
		ScenarioID: sc.ID,
		Title:      sc.Title,
		Reason:     "rotation",
	}, nil
}

// pick selects one scenario with probability proportional to Weight.
// Zero-weight scenarios are pin-only and never picked here.
func (r *Resolver) pick(list []Scenario) (Scenario, bool) {
	total := 0
	for _, sc := range list {
		if sc.Weight > 0 {
			total += sc.Weight
		}
	}
	if total == 0 {
		return Scenario{}, false
	}

	rng := r.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	n := rng.Intn(total)
	for _, sc := range list {
		if sc.Weight <= 0 {
			continue
		}
		n -= sc.Weight
		if n < 0 {
			return sc, true
		}
	}
	return Scenario{}, false
}

func filterByFocus(list []Scenario, c Criterion) []Scenario {
	out := make([]Scenario, 0, len(list))
	for _, sc := range list {
		if sc.Focus == c {
			out = append(out, sc)
		}
	}
	return out
}

package scenario

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Source lists scenarios from persistence.
type Source interface {
	ListActive(ctx context.Context, teamID string) ([]Scenario, error)
	GetByID(ctx context.Context, teamID, id string) (Scenario, error)
}

const catalogTTL = 5 * time.Minute

// Catalog serves the scenario list behind a short read-through cache: the
// catalog changes rarely but is consulted on every practice-call start.
// Teams without custom scenarios get the builtin set.
type Catalog struct {
	src   Source
	cache *cache.Cache
}

func NewCatalog(src Source) *Catalog {
	return &Catalog{
		src:   src,
		cache: cache.New(catalogTTL, 2*catalogTTL),
	}
}

func (c *Catalog) ListActive(ctx context.Context, teamID string) ([]Scenario, error) {
	key := "active:" + teamID
	if v, ok := c.cache.Get(key); ok {
		return v.([]Scenario), nil
	}

	list, err := c.src.ListActive(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		list = Builtins()
	}
	c.cache.Set(key, list, cache.DefaultExpiration)
	return list, nil
}

// GetByID resolves builtins first, then the team's own scenarios.
func (c *Catalog) GetByID(ctx context.Context, teamID, id string) (Scenario, error) {
	for _, s := range Builtins() {
		if s.ID == id {
			return s, nil
		}
	}
	return c.src.GetByID(ctx, teamID, id)
}

// Invalidate drops the team's cached list; call after catalog writes.
func (c *Catalog) Invalidate(teamID string) {
	c.cache.Delete("active:" + teamID)
}

// Builtins is the stock drill set: one scenario per rubric criterion, so
// weakest-criterion targeting always has a candidate even before a team
// authors its own catalog.
func Builtins() []Scenario {
	return []Scenario{
		{
			ID:         "builtin-refund",
			Title:      "Refund request from an upset parent",
			Persona:    "Parent demanding their money back after two missed classes",
			Difficulty: 3,
			Focus:      CriterionKnowledge,
			Prompt:     "You paid for a 12-class package and want a refund. Push back on policy answers unless the mentor cites the actual terms.",
			Weight:     3,
			Active:     true,
		},
		{
			ID:         "builtin-complaint",
			Title:      "Angry complaint about a tutor",
			Persona:    "Caller furious about last week's session quality",
			Difficulty: 4,
			Focus:      CriterionEmpathy,
			Prompt:     "Stay upset until the mentor acknowledges how the situation made you feel. Escalate if they jump straight to fixes.",
			Weight:     3,
			Active:     true,
		},
		{
			ID:         "builtin-reschedule",
			Title:      "Rescheduling a missed class",
			Persona:    "Busy parent who keeps rejecting proposed time slots",
			Difficulty: 2,
			Focus:      CriterionHandling,
			Prompt:     "Accept a slot only after the mentor offers concrete alternatives and confirms the follow-up.",
			Weight:     2,
			Active:     true,
		},
		{
			ID:         "builtin-trial",
			Title:      "Trial lesson walkthrough",
			Persona:    "Curious but skeptical parent comparing providers",
			Difficulty: 2,
			Focus:      CriterionRapport,
			Prompt:     "Warm up only if the mentor builds a personal connection before pitching the curriculum.",
			Weight:     2,
			Active:     true,
		},
		{
			ID:         "builtin-coldcall",
			Title:      "Cold-call introduction",
			Persona:    "Distracted parent answering an unexpected call",
			Difficulty: 1,
			Focus:      CriterionTone,
			Prompt:     "Give the mentor thirty seconds of attention; stay on the line only for a calm, confident delivery.",
			Weight:     1,
			Active:     true,
		},
	}
}

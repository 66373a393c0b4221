package scenario

import (
	"context"
	"errors"
	"testing"
	"time"
)

// countingSource wraps a Source and counts passthrough calls so tests can
// observe cache hits.
type countingSource struct {
	inner Source
	lists int
	gets  int
}

func (c *countingSource) ListActive(ctx context.Context, teamID string) ([]Scenario, error) {
	c.lists++
	return c.inner.ListActive(ctx, teamID)
}

func (c *countingSource) GetByID(ctx context.Context, teamID, id string) (Scenario, error) {
	c.gets++
	return c.inner.GetByID(ctx, teamID, id)
}

func customScenario(teamID, id string, focus Criterion, weight int) Scenario {
	return Scenario{
		ID:         id,
		TeamID:     teamID,
		Title:      "Custom " + id,
		Persona:    "Test persona",
		Difficulty: 2,
		Focus:      focus,
		Prompt:     "Test prompt",
		Weight:     weight,
		Active:     true,
		CreatedAt:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestCatalogFallsBackToBuiltins(t *testing.T) {
	catalog := NewCatalog(NewMemoryStore())

	list, err := catalog.ListActive(context.Background(), "team-a")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != len(Builtins()) {
		t.Fatalf("expected %d builtins, got %d", len(Builtins()), len(list))
	}

	seen := map[Criterion]bool{}
	for _, sc := range list {
		seen[sc.Focus] = true
	}
	for _, c := range []Criterion{CriterionTone, CriterionRapport, CriterionEmpathy, CriterionHandling, CriterionKnowledge} {
		if !seen[c] {
			t.Fatalf("builtin set missing a %s drill", c)
		}
	}
}

func TestCatalogPrefersTeamScenarios(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(customScenario("team-a", "sc-1", CriterionEmpathy, 2))
	catalog := NewCatalog(store)

	list, err := catalog.ListActive(context.Background(), "team-a")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 || list[0].ID != "sc-1" {
		t.Fatalf("expected the team's own scenario, got %+v", list)
	}
}

func TestCatalogCachesUntilInvalidated(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(customScenario("team-a", "sc-1", CriterionEmpathy, 2))
	src := &countingSource{inner: store}
	catalog := NewCatalog(src)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := catalog.ListActive(ctx, "team-a"); err != nil {
			t.Fatalf("ListActive #%d: %v", i, err)
		}
	}
	if src.lists != 1 {
		t.Fatalf("expected 1 source hit behind the cache, got %d", src.lists)
	}

	catalog.Invalidate("team-a")
	if _, err := catalog.ListActive(ctx, "team-a"); err != nil {
		t.Fatalf("ListActive after invalidate: %v", err)
	}
	if src.lists != 2 {
		t.Fatalf("expected invalidate to force a reload, got %d source hits", src.lists)
	}
}

func TestCatalogCacheIsPerTeam(t *testing.T) {
	storeA := customScenario("team-a", "sc-a", CriterionTone, 1)
	storeB := customScenario("team-b", "sc-b", CriterionRapport, 1)
	store := NewMemoryStore()
	store.Seed(storeA, storeB)
	catalog := NewCatalog(store)

	ctx := context.Background()
	listA, err := catalog.ListActive(ctx, "team-a")
	if err != nil {
		t.Fatalf("ListActive team-a: %v", err)
	}
	listB, err := catalog.ListActive(ctx, "team-b")
	if err != nil {
		t.Fatalf("ListActive team-b: %v", err)
	}
	if len(listA) != 1 || listA[0].ID != "sc-a" {
		t.Fatalf("team-a list leaked: %+v", listA)
	}
	if len(listB) != 1 || listB[0].ID != "sc-b" {
		t.Fatalf("team-b list leaked: %+v", listB)
	}
}

func TestCatalogGetByIDResolvesBuiltinsFirst(t *testing.T) {
	catalog := NewCatalog(NewMemoryStore())

	sc, err := catalog.GetByID(context.Background(), "team-a", "builtin-refund")
	if err != nil {
		t.Fatalf("GetByID builtin: %v", err)
	}
	if sc.Focus != CriterionKnowledge {
		t.Fatalf("builtin-refund should drill knowledge, got %s", sc.Focus)
	}

	if _, err := catalog.GetByID(context.Background(), "team-a", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestDeactivatedScenarioLeavesRotation(t *testing.T) {
	store := NewMemoryStore()
	sc1 := customScenario("team-a", "sc-1", CriterionEmpathy, 2)
	sc2 := customScenario("team-a", "sc-2", CriterionTone, 2)
	store.Seed(sc1, sc2)
	catalog := NewCatalog(store)

	ctx := context.Background()
	if err := store.Deactivate(ctx, "team-a", "sc-1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	catalog.Invalidate("team-a")

	list, err := catalog.ListActive(ctx, "team-a")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 || list[0].ID != "sc-2" {
		t.Fatalf("deactivated scenario still listed: %+v", list)
	}
}

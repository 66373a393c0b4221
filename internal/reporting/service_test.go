package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/quota"
	"mentor-training-platform/internal/scenario"
)

func intp(n int) *int           { return &n }
func floatp(f float64) *float64 { return &f }
func strp(s string) *string     { return &s }

func evaluatedCall(team, user string, at time.Time, tone, rapport, empathy, handling, knowledge, overall int) practicecall.PracticeCall {
	ev := at.Add(time.Minute)
	return practicecall.PracticeCall{
		ID:             "call-" + at.Format("20060102150405"),
		TeamID:         team,
		UserID:         user,
		ToneScore:      intp(tone),
		RapportScore:   intp(rapport),
		EmpathyScore:   intp(empathy),
		HandlingScore:  intp(handling),
		KnowledgeScore: intp(knowledge),
		OverallScore:   intp(overall),
		Feedback:       strp("noted"),
		EvaluatedAt:    &ev,
		CreatedAt:      at,
	}
}

func TestProgressSummaryAggregatesEvaluatedCalls(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Calls = []practicecall.PracticeCall{
		evaluatedCall("team-a", "user-1", now.Add(-3*time.Hour), 60, 70, 40, 80, 90, 68),
		evaluatedCall("team-a", "user-1", now.Add(-2*time.Hour), 70, 80, 50, 80, 90, 74),
		// Not evaluated yet; counts toward totals only.
		{ID: "c3", TeamID: "team-a", UserID: "user-1", CreatedAt: now.Add(-time.Hour)},
	}
	svc := NewService(repo)

	out, err := svc.ProgressSummary(context.Background(), ProgressSummaryRequest{
		TeamID: "team-a", UserID: "user-1",
		Range: TimeRange{From: now.Add(-24 * time.Hour), To: now},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 3 || out.CallsEvaluated != 2 {
		t.Fatalf("expected 3 calls / 2 evaluated, got %d/%d", out.TotalCalls, out.CallsEvaluated)
	}
	if out.Averages.Tone != 65 || out.Averages.Rapport != 75 || out.Averages.Empathy != 45 {
		t.Fatalf("unexpected averages: %+v", out.Averages)
	}
	if out.Averages.Handling != 80 || out.Averages.Knowledge != 90 {
		t.Fatalf("unexpected averages: %+v", out.Averages)
	}
	if out.AvgOverall != 71 {
		t.Fatalf("expected avg overall 71, got %v", out.AvgOverall)
	}
	if out.WeakestCriterion != "empathy" {
		t.Fatalf("expected empathy to be weakest, got %q", out.WeakestCriterion)
	}
	if out.BestCriterion != "knowledge" {
		t.Fatalf("expected knowledge to be best, got %q", out.BestCriterion)
	}
	if out.FirstOverall != 68 || out.LastOverall != 74 {
		t.Fatalf("expected trend 68 -> 74, got %d -> %d", out.FirstOverall, out.LastOverall)
	}
}

func TestProgressSummaryTeamIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Calls = []practicecall.PracticeCall{
		evaluatedCall("team-a", "user-1", now.Add(-2*time.Hour), 60, 60, 60, 60, 60, 60),
		evaluatedCall("team-b", "user-1", now.Add(-2*time.Hour), 90, 90, 90, 90, 90, 90),
	}
	svc := NewService(repo)

	out, err := svc.ProgressSummary(context.Background(), ProgressSummaryRequest{
		TeamID: "team-a", UserID: "user-1",
		Range: TimeRange{From: now.Add(-24 * time.Hour), To: now},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.CallsEvaluated != 1 || out.AvgOverall != 60 {
		t.Fatalf("team-b data leaked into team-a summary: %+v", out)
	}
}

func TestProgressSummaryValidation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()
	okRange := TimeRange{From: now.Add(-time.Hour), To: now}

	cases := []ProgressSummaryRequest{
		{UserID: "u", Range: okRange},
		{TeamID: "t", Range: okRange},
		{TeamID: "t", UserID: "u"},
		{TeamID: "t", UserID: "u", Range: TimeRange{From: now, To: now.Add(-time.Hour)}},
	}
	for i, req := range cases {
		if _, err := svc.ProgressSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestMinutesSummaryAggregates(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	ended := now.Add(-time.Hour)
	repo.Calls = []practicecall.PracticeCall{
		{
			ID: "c1", TeamID: "team-a", UserID: "user-1",
			EndedAt:         &ended,
			DurationSeconds: intp(90),
			Cost:            floatp(0.50),
			RecordingURL:    strp("https://cdn.example.com/c1.mp3"),
			CreatedAt:       now.Add(-2 * time.Hour),
		},
		{
			ID: "c2", TeamID: "team-a", UserID: "user-1",
			DurationSeconds: intp(150),
			Cost:            floatp(0.25),
			CreatedAt:       now.Add(-90 * time.Minute),
		},
	}
	repo.Ledger = []quota.LedgerEntry{
		{ID: "l1", TeamID: "team-a", UserID: "user-1", Type: quota.EntryTypeGrant, Minutes: 60, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "l2", TeamID: "team-a", UserID: "user-1", Type: quota.EntryTypeDebit, Minutes: -2, CallID: "c1", CreatedAt: now.Add(-time.Hour)},
		{ID: "l3", TeamID: "team-a", UserID: "user-1", Type: quota.EntryTypeDebit, Minutes: -3, CallID: "c2", CreatedAt: now.Add(-time.Hour)},
	}
	svc := NewService(repo)

	out, err := svc.MinutesSummary(context.Background(), MinutesSummaryRequest{
		TeamID: "team-a", UserID: "user-1",
		Range: TimeRange{From: now.Add(-24 * time.Hour), To: now},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 2 || out.CompletedCalls != 1 || out.RecordedCalls != 1 {
		t.Fatalf("unexpected call counts: %+v", out)
	}
	if out.TotalDurationSeconds != 240 || out.AverageDurationSeconds != 120 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.ProviderCostUSD != 0.75 {
		t.Fatalf("expected cost 0.75, got %v", out.ProviderCostUSD)
	}
	if out.MinutesGranted != 60 || out.MinutesConsumed != 5 || out.NetMinutes != 55 {
		t.Fatalf("unexpected quota movement: %+v", out)
	}
}

func TestMinutesSummaryWholeTeamWhenUserOmitted(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Calls = []practicecall.PracticeCall{
		{ID: "c1", TeamID: "team-a", UserID: "user-1", DurationSeconds: intp(60), CreatedAt: now.Add(-time.Hour)},
		{ID: "c2", TeamID: "team-a", UserID: "user-2", DurationSeconds: intp(60), CreatedAt: now.Add(-time.Hour)},
	}
	svc := NewService(repo)

	out, err := svc.MinutesSummary(context.Background(), MinutesSummaryRequest{
		TeamID: "team-a",
		Range:  TimeRange{From: now.Add(-24 * time.Hour), To: now},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 2 {
		t.Fatalf("expected both trainees' calls, got %d", out.TotalCalls)
	}
}

func TestWeakestCriterionTieBreaksInRubricOrder(t *testing.T) {
	a := CriterionAverages{Tone: 50, Rapport: 50, Empathy: 50, Handling: 50, Knowledge: 50}
	if got := weakestOf(a); got != "tone" {
		t.Fatalf("all-equal tie should pick tone, got %q", got)
	}
	a.Rapport = 40
	a.Handling = 40
	if got := weakestOf(a); got != "rapport" {
		t.Fatalf("rapport/handling tie should pick rapport, got %q", got)
	}
}

func TestProgressAdapterRequiresHistory(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Calls = []practicecall.PracticeCall{
		evaluatedCall("team-a", "user-1", now.Add(-2*time.Hour), 60, 70, 40, 80, 90, 68),
		evaluatedCall("team-a", "user-1", now.Add(-3*time.Hour), 60, 70, 40, 80, 90, 68),
	}
	adapter := ProgressAdapter{
		Reports:      NewService(repo),
		MinEvaluated: 3,
		Now:          func() time.Time { return now },
	}

	_, ok, err := adapter.WeakestCriterion(context.Background(), "team-a", "user-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatal("two evaluated calls must not satisfy a floor of three")
	}

	repo.Calls = append(repo.Calls, evaluatedCall("team-a", "user-1", now.Add(-time.Hour), 60, 70, 40, 80, 90, 68))
	crit, ok, err := adapter.WeakestCriterion(context.Background(), "team-a", "user-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ok || crit != scenario.CriterionEmpathy {
		t.Fatalf("expected empathy targeting once history suffices, got %v/%v", crit, ok)
	}
}

func TestProgressAdapterIgnoresCallsOutsideWindow(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 3; i++ {
		repo.Calls = append(repo.Calls,
			evaluatedCall("team-a", "user-1", now.Add(-time.Duration(i+40)*24*time.Hour), 60, 70, 40, 80, 90, 68))
	}
	adapter := ProgressAdapter{
		Reports: NewService(repo),
		Window:  30 * 24 * time.Hour,
		Now:     func() time.Time { return now },
	}

	_, ok, err := adapter.WeakestCriterion(context.Background(), "team-a", "user-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatal("stale evaluations outside the window must not drive targeting")
	}
}

package reporting

import (
	"context"
	"errors"
	"time"

	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/quota"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce team filtering.
// - Implementations should query immutable sources when possible
//   (quota ledger, practice-call records).

type Repository interface {
	ListCalls(ctx context.Context, teamID string, from, to time.Time, userID string) ([]practicecall.PracticeCall, error)
	ListQuotaLedger(ctx context.Context, teamID string, from, to time.Time, userID string) ([]quota.LedgerEntry, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) ProgressSummary(ctx context.Context, req ProgressSummaryRequest) (ProgressSummary, error) {
	if req.TeamID == "" || req.UserID == "" {
		return ProgressSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return ProgressSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return ProgressSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.TeamID, req.Range.From, req.Range.To, req.UserID)
	if err != nil {
		return ProgressSummary{}, err
	}

	out := ProgressSummary{TeamID: req.TeamID, UserID: req.UserID}
	var tone, rapport, empathy, handling, knowledge, overall int
	for _, c := range rows {
		out.TotalCalls++
		if c.EndedAt != nil {
			out.CompletedCalls++
		}
		if !c.Evaluated() {
			continue
		}
		// Score fields persist all-or-nothing with evaluated_at, so the
		// pointers are safe to dereference here.
		out.CallsEvaluated++
		tone += *c.ToneScore
		rapport += *c.RapportScore
		empathy += *c.EmpathyScore
		handling += *c.HandlingScore
		knowledge += *c.KnowledgeScore
		overall += *c.OverallScore

		if out.CallsEvaluated == 1 {
			out.FirstOverall = *c.OverallScore
		}
		out.LastOverall = *c.OverallScore
	}

	if out.CallsEvaluated > 0 {
		n := float64(out.CallsEvaluated)
		out.Averages = CriterionAverages{
			Tone:      float64(tone) / n,
			Rapport:   float64(rapport) / n,
			Empathy:   float64(empathy) / n,
			Handling:  float64(handling) / n,
			Knowledge: float64(knowledge) / n,
		}
		out.AvgOverall = float64(overall) / n
		out.WeakestCriterion = weakestOf(out.Averages)
		out.BestCriterion = bestOf(out.Averages)
	}
	return out, nil
}

func (s *Service) MinutesSummary(ctx context.Context, req MinutesSummaryRequest) (MinutesSummary, error) {
	if req.TeamID == "" {
		return MinutesSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return MinutesSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return MinutesSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.TeamID, req.Range.From, req.Range.To, req.UserID)
	if err != nil {
		return MinutesSummary{}, err
	}
	ledger, err := s.repo.ListQuotaLedger(ctx, req.TeamID, req.Range.From, req.Range.To, req.UserID)
	if err != nil {
		return MinutesSummary{}, err
	}

	out := MinutesSummary{TeamID: req.TeamID, UserID: req.UserID}
	for _, c := range rows {
		out.TotalCalls++
		if c.EndedAt != nil {
			out.CompletedCalls++
		}
		if c.HasRecording() {
			out.RecordedCalls++
		}
		if c.DurationSeconds != nil {
			out.TotalDurationSeconds += *c.DurationSeconds
		}
		if c.Cost != nil {
			out.ProviderCostUSD += *c.Cost
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}

	for _, e := range ledger {
		if e.Minutes > 0 {
			out.MinutesGranted += e.Minutes
		} else {
			out.MinutesConsumed += -e.Minutes
		}
	}
	out.NetMinutes = out.MinutesGranted - out.MinutesConsumed
	return out, nil
}

type criterionAvg struct {
	name string
	avg  float64
}

func rubricOrder(a CriterionAverages) []criterionAvg {
	return []criterionAvg{
		{"tone", a.Tone},
		{"rapport", a.Rapport},
		{"empathy", a.Empathy},
		{"handling", a.Handling},
		{"knowledge", a.Knowledge},
	}
}

func weakestOf(a CriterionAverages) string {
	ordered := rubricOrder(a)
	pick := ordered[0]
	for _, c := range ordered[1:] {
		if c.avg < pick.avg {
			pick = c
		}
	}
	return pick.name
}

func bestOf(a CriterionAverages) string {
	ordered := rubricOrder(a)
	pick := ordered[0]
	for _, c := range ordered[1:] {
		if c.avg > pick.avg {
			pick = c
		}
	}
	return pick.name
}

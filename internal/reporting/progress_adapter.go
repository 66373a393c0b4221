package reporting

import (
	"context"
	"time"

	"mentor-training-platform/internal/scenario"
)

// ProgressAdapter bridges progress summaries to the scenario resolver's
// weakest-criterion targeting. It answers ok=false until the trainee has
// enough evaluated calls for the signal to mean anything.
type ProgressAdapter struct {
	Reports *Service

	// Window bounds how far back evaluated calls count toward targeting.
	Window time.Duration
	// MinEvaluated is the history floor below which targeting stays off.
	MinEvaluated int

	Now func() time.Time
}

const (
	defaultProgressWindow = 30 * 24 * time.Hour
	defaultMinEvaluated   = 3
)

func (a ProgressAdapter) WeakestCriterion(ctx context.Context, teamID, userID string) (scenario.Criterion, bool, error) {
	if a.Reports == nil {
		return "", false, nil
	}
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	window := a.Window
	if window <= 0 {
		window = defaultProgressWindow
	}
	min := a.MinEvaluated
	if min <= 0 {
		min = defaultMinEvaluated
	}

	sum, err := a.Reports.ProgressSummary(ctx, ProgressSummaryRequest{
		TeamID: teamID,
		UserID: userID,
		Range:  TimeRange{From: now.Add(-window), To: now},
	})
	if err != nil {
		return "", false, err
	}
	if sum.CallsEvaluated < min {
		return "", false, nil
	}
	c := scenario.Criterion(sum.WeakestCriterion)
	if !scenario.ValidCriterion(c) {
		return "", false, nil
	}
	return c, true, nil
}

package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ProgressSummaryRequest requests one trainee's aggregated rubric scores.
// Tenancy isolation: TeamID is required.

type ProgressSummaryRequest struct {
	TeamID string    `json:"team_id"`
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type CriterionAverages struct {
	Tone      float64 `json:"tone"`
	Rapport   float64 `json:"rapport"`
	Empathy   float64 `json:"empathy"`
	Handling  float64 `json:"handling"`
	Knowledge float64 `json:"knowledge"`
}

type ProgressSummary struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	CallsEvaluated int `json:"calls_evaluated"`

	Averages   CriterionAverages `json:"averages"`
	AvgOverall float64           `json:"avg_overall"`

	// WeakestCriterion / BestCriterion name the rubric dimensions with the
	// lowest and highest averages. Empty until at least one call is evaluated.
	// Ties resolve in rubric order (tone first).
	WeakestCriterion string `json:"weakest_criterion,omitempty"`
	BestCriterion    string `json:"best_criterion,omitempty"`

	// FirstOverall/LastOverall anchor the chronological trend within the range.
	FirstOverall int `json:"first_overall,omitempty"`
	LastOverall  int `json:"last_overall,omitempty"`
}

// MinutesSummaryRequest requests usage/spend aggregates. UserID optional;
// empty means the whole team.

type MinutesSummaryRequest struct {
	TeamID string    `json:"team_id"`
	UserID string    `json:"user_id,omitempty"`
	Range  TimeRange `json:"range"`
}

type MinutesSummary struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id,omitempty"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	RecordedCalls  int `json:"recorded_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// ProviderCostUSD sums the provider-reported per-call cost.
	ProviderCostUSD float64 `json:"provider_cost_usd"`

	// Quota movement over the range, from the immutable ledger.
	MinutesGranted  int `json:"minutes_granted"`
	MinutesConsumed int `json:"minutes_consumed"`
	NetMinutes      int `json:"net_minutes"`
}

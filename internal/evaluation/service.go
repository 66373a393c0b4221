package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mentor-training-platform/internal/metrics"
	"mentor-training-platform/internal/practicecall"

	"golang.org/x/sync/errgroup"
)

// Batch item reason codes, also used verbatim by the HTTP layer.
const (
	ReasonAlreadyEvaluated = "ALREADY_EVALUATED"
	ReasonNoTranscript     = "NO_TRANSCRIPT"
	ReasonNotFound         = "NOT_FOUND"
)

type ItemStatus string

const (
	StatusEvaluated ItemStatus = "evaluated"
	StatusSkipped   ItemStatus = "skipped"
	StatusError     ItemStatus = "error"
)

type BatchItem struct {
	CallID  string     `json:"call_id"`
	Status  ItemStatus `json:"status"`
	Overall *int       `json:"overall_score,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

type BatchReport struct {
	Items     []BatchItem `json:"items"`
	Evaluated int         `json:"evaluated"`
	Skipped   int         `json:"skipped"`
	Errors    int         `json:"errors"`
}

type ServiceOptions struct {
	Store   practicecall.Store
	Scorer  Scorer
	Log     *slog.Logger
	Metrics *metrics.Registry

	// BatchWorkers bounds concurrent scoring in batch mode.
	BatchWorkers int
}

// Service is the evaluation orchestrator: the only place scoring is
// triggered. It checks preconditions, runs the scorer, and persists the
// result in one guarded write; the scorer itself never touches storage.
type Service struct {
	store   practicecall.Store
	scorer  Scorer
	log     *slog.Logger
	metrics *metrics.Registry
	workers int

	clock func() time.Time
}

func NewService(opts ServiceOptions) *Service {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	workers := opts.BatchWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		store:   opts.Store,
		scorer:  opts.Scorer,
		log:     log,
		metrics: opts.Metrics,
		workers: workers,
		clock:   time.Now,
	}
}

// Evaluate scores one call and persists the result.
//
// Preconditions, surfaced as sentinel errors: the call must exist
// (practicecall.ErrNotFound), must carry a non-blank transcript
// (ErrNoTranscript) and must not be evaluated yet
// (practicecall.ErrAlreadyEvaluated). A scorer failure writes nothing.
func (s *Service) Evaluate(ctx context.Context, teamID, callID string) (Result, error) {
	res, err := s.evaluate(ctx, teamID, callID)
	s.metrics.EvaluationOutcome(outcomeLabel(err))
	if err == nil {
		s.metrics.EvaluationScored(res.Overall)
	}
	return res, err
}

func (s *Service) evaluate(ctx context.Context, teamID, callID string) (Result, error) {
	call, err := s.store.GetByID(ctx, teamID, callID)
	if err != nil {
		return Result{}, err
	}
	if call.Evaluated() {
		return Result{}, practicecall.ErrAlreadyEvaluated
	}
	if !call.HasTranscript() {
		return Result{}, ErrNoTranscript
	}

	in := Input{
		Transcript:   *call.Transcript,
		ScenarioName: call.ScenarioLabel,
	}
	if call.RecordingURL != nil {
		in.AudioURL = *call.RecordingURL
	}

	res, err := s.scorer.Score(ctx, in)
	if err != nil {
		return Result{}, fmt.Errorf("score call %s: %w", callID, err)
	}

	ev := practicecall.Evaluation{
		Overall:   res.Overall,
		Tone:      res.Tone,
		Rapport:   res.Rapport,
		Empathy:   res.Empathy,
		Handling:  res.Handling,
		Knowledge: res.Knowledge,
		Feedback:  res.Feedback,
	}
	// The store's evaluated_at compare-and-set is the real idempotency
	// guard; the Evaluated() check above just fails fast. A concurrent
	// second writer loses here with ErrAlreadyEvaluated.
	if err := s.store.ApplyEvaluation(ctx, call.ID, ev, s.clock()); err != nil {
		return Result{}, err
	}

	s.log.Info("practice call evaluated",
		"call_id", call.ID,
		"team_id", teamID,
		"overall", res.Overall,
	)
	return res, nil
}

// Retrigger clears a stored result and scores the call again. Admin path
// only. The clear and the re-score are separate writes; if a concurrent
// evaluator lands between them, exactly one result still wins the
// compare-and-set.
func (s *Service) Retrigger(ctx context.Context, teamID, callID string) (Result, error) {
	if err := s.store.ClearEvaluation(ctx, teamID, callID); err != nil {
		return Result{}, err
	}
	s.log.Info("evaluation re-triggered", "call_id", callID, "team_id", teamID)
	return s.Evaluate(ctx, teamID, callID)
}

// BatchEvaluate attempts every listed call independently with bounded
// concurrency. One call's failure never aborts the rest; the report always
// comes back, even if every item failed.
func (s *Service) BatchEvaluate(ctx context.Context, teamID string, callIDs []string) BatchReport {
	items := make([]BatchItem, len(callIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range callIDs {
		i, id := i, id
		g.Go(func() error {
			items[i] = s.evaluateOne(gctx, teamID, id)
			return nil
		})
	}
	// Workers never return errors; every outcome lands in items.
	_ = g.Wait()

	return summarize(items)
}

// EvaluatePending scores every call that has a transcript and no result
// yet, oldest first. Used by the scheduled sweep; each call is evaluated
// under its own team.
func (s *Service) EvaluatePending(ctx context.Context, limit int) (BatchReport, error) {
	calls, err := s.store.ListPendingEvaluation(ctx, limit)
	if err != nil {
		return BatchReport{}, fmt.Errorf("list pending evaluation: %w", err)
	}

	items := make([]BatchItem, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			items[i] = s.evaluateOne(gctx, call.TeamID, call.ID)
			return nil
		})
	}
	_ = g.Wait()

	return summarize(items), nil
}

func (s *Service) evaluateOne(ctx context.Context, teamID, id string) BatchItem {
	res, err := s.Evaluate(ctx, teamID, id)
	switch {
	case err == nil:
		overall := res.Overall
		return BatchItem{CallID: id, Status: StatusEvaluated, Overall: &overall}
	case errors.Is(err, practicecall.ErrAlreadyEvaluated):
		return BatchItem{CallID: id, Status: StatusSkipped, Reason: ReasonAlreadyEvaluated}
	case errors.Is(err, ErrNoTranscript):
		return BatchItem{CallID: id, Status: StatusSkipped, Reason: ReasonNoTranscript}
	case errors.Is(err, practicecall.ErrNotFound):
		return BatchItem{CallID: id, Status: StatusError, Reason: ReasonNotFound}
	default:
		return BatchItem{CallID: id, Status: StatusError, Reason: err.Error()}
	}
}

func summarize(items []BatchItem) BatchReport {
	rep := BatchReport{Items: items}
	for _, it := range items {
		switch it.Status {
		case StatusEvaluated:
			rep.Evaluated++
		case StatusSkipped:
			rep.Skipped++
		default:
			rep.Errors++
		}
	}
	return rep
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return string(StatusEvaluated)
	case errors.Is(err, practicecall.ErrAlreadyEvaluated), errors.Is(err, ErrNoTranscript):
		return string(StatusSkipped)
	default:
		return string(StatusError)
	}
}

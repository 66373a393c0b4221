package task

import (
	"context"
	"log/slog"
	"time"

	"mentor-training-platform/internal/config"
	"mentor-training-platform/internal/evaluation"
	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/recording"

	"github.com/robfig/cron/v3"
)

// A poll that has not moved for this long is presumed orphaned (process
// restart mid-loop) and gets re-scheduled. Must exceed the worst-case gap
// between two poll attempts.
const pollStaleAfter = 15 * time.Minute

const sweepTimeout = 5 * time.Minute

// Runner owns the scheduled background jobs:
//   - pending-evaluation sweep: scores every call that gained a transcript
//     but was never evaluated (e.g. the admin never clicked evaluate);
//   - stale-poll resume: re-schedules polls that a restart interrupted, so
//     an in-flight recording fetch survives a deploy.
//
// Both jobs also run once at startup.
type Runner struct {
	evaluator *evaluation.Service
	calls     practicecall.Store
	scheduler *recording.Scheduler
	cfg       config.TaskConfig
	log       *slog.Logger

	cron  *cron.Cron
	clock func() time.Time
}

type Options struct {
	Evaluator *evaluation.Service
	Calls     practicecall.Store
	Scheduler *recording.Scheduler
	Cfg       config.TaskConfig
	Log       *slog.Logger
}

func NewRunner(opts Options) (*Runner, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		evaluator: opts.Evaluator,
		calls:     opts.Calls,
		scheduler: opts.Scheduler,
		cfg:       opts.Cfg,
		log:       log,
		cron:      cron.New(),
		clock:     time.Now,
	}

	if _, err := r.cron.AddFunc(r.cfg.EvaluationSweepSpec, r.sweepPendingEvaluations); err != nil {
		return nil, err
	}
	if _, err := r.cron.AddFunc(r.cfg.PollResumeSpec, r.resumeStalePolls); err != nil {
		return nil, err
	}
	return r, nil
}

// Start runs both jobs once immediately, then hands them to cron.
func (r *Runner) Start() {
	go r.sweepPendingEvaluations()
	go r.resumeStalePolls()
	r.cron.Start()
	r.log.Info("task runner started",
		"evaluation_sweep", r.cfg.EvaluationSweepSpec,
		"poll_resume", r.cfg.PollResumeSpec,
	)
}

// Stop waits for in-flight jobs to finish or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop().Done()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *Runner) sweepPendingEvaluations() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	rep, err := r.evaluator.EvaluatePending(ctx, r.cfg.SweepBatchSize)
	if err != nil {
		r.log.Error("pending-evaluation sweep failed", "err", err)
		return
	}
	if len(rep.Items) == 0 {
		return
	}
	r.log.Info("pending-evaluation sweep completed",
		"evaluated", rep.Evaluated,
		"skipped", rep.Skipped,
		"errors", rep.Errors,
	)
}

func (r *Runner) resumeStalePolls() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	olderThan := r.clock().UTC().Add(-pollStaleAfter)
	stale, err := r.calls.ListStalePolls(ctx, olderThan, r.cfg.SweepBatchSize)
	if err != nil {
		r.log.Error("stale-poll listing failed", "err", err)
		return
	}
	for _, call := range stale {
		// Schedule is safe against doubles: the per-call lock rejects a
		// loop that is in fact still alive.
		r.scheduler.Schedule(call)
	}
	if len(stale) > 0 {
		r.log.Info("stale polls re-scheduled", "count", len(stale))
	}
}

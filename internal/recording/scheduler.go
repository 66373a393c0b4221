package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"mentor-training-platform/internal/config"
	"mentor-training-platform/internal/metrics"
	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/voiceai"
)

var (
	// ErrPollInFlight means another loop already holds the call's poll slot.
	ErrPollInFlight = errors.New("recording: poll already in flight for call")

	// ErrNoExternalRef means the call was never bridged to the provider, so
	// there is nothing to poll.
	ErrNoExternalRef = errors.New("recording: practice call has no external call reference")
)

// Tuning bounds a single call's poll loop. Zero fields get defaults that
// keep total polling under a few minutes per call.
type Tuning struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	LockTTL         time.Duration
}

func TuningFromConfig(cfg config.PollConfig) Tuning {
	return Tuning{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		Multiplier:      cfg.Multiplier,
		MaxInterval:     cfg.MaxInterval,
		LockTTL:         cfg.LockTTL,
	}
}

func (t Tuning) normalized() Tuning {
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = 20
	}
	if t.InitialInterval <= 0 {
		t.InitialInterval = 10 * time.Second
	}
	if t.Multiplier < 1 {
		t.Multiplier = 1.2
	}
	if t.MaxInterval <= 0 {
		t.MaxInterval = 60 * time.Second
	}
	if t.LockTTL <= 0 {
		t.LockTTL = 30 * time.Minute
	}
	return t
}

// delay returns the wait after the attempt-th fetch (1-based): the initial
// interval grown geometrically, capped at MaxInterval.
func (t Tuning) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(t.InitialInterval) * math.Pow(t.Multiplier, float64(attempt-1)))
	if d > t.MaxInterval {
		d = t.MaxInterval
	}
	return d
}

// PollResult reports where a poll loop left the call.
type PollResult struct {
	State    practicecall.PollState
	Attempts int
}

// SchedulerOptions wires a Scheduler. Store and Provider are required;
// everything else has a usable default.
type SchedulerOptions struct {
	Store    practicecall.Store
	Provider voiceai.Provider
	Locks    Locker
	Log      *slog.Logger
	Metrics  *metrics.Registry
	Tuning   Tuning
}

// Scheduler runs the background recording poll: after a call ends, the
// provider finishes transcription and recording upload asynchronously, so we
// re-fetch the call snapshot on a growing interval until both artifacts are
// captured or the attempt budget runs out.
//
// State machine per call: PENDING -> POLLING -> READY | PARTIAL | EXHAUSTED |
// NOT_FOUND. Terminal states are never polled again.
type Scheduler struct {
	store    practicecall.Store
	provider voiceai.Provider
	locks    Locker
	log      *slog.Logger
	metrics  *metrics.Registry
	tuning   Tuning

	// base bounds every scheduled poll's lifetime; request contexts are
	// deliberately not used because the poll outlives the webhook that
	// triggered it.
	base context.Context

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

func NewScheduler(base context.Context, opts SchedulerOptions) *Scheduler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	locks := opts.Locks
	if locks == nil {
		locks = NewMemoryLocker()
	}
	return &Scheduler{
		store:    opts.Store,
		provider: opts.Provider,
		locks:    locks,
		log:      log,
		metrics:  opts.Metrics,
		tuning:   opts.Tuning.normalized(),
		base:     base,
		clock:    time.Now,
		sleep:    sleepContext,
	}
}

// Schedule starts a poll for the call in the background and returns
// immediately. Duplicate schedules are harmless: the loop exits early when
// the call is already terminal or another loop holds its slot.
func (s *Scheduler) Schedule(call practicecall.PracticeCall) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.Poll(s.base, call)
		switch {
		case errors.Is(err, ErrPollInFlight), errors.Is(err, ErrNoExternalRef):
			s.log.Info("recording poll skipped", "call_id", call.ID, "reason", err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.log.Info("recording poll interrupted", "call_id", call.ID, "attempts", res.Attempts)
		case err != nil:
			s.log.Error("recording poll failed", "call_id", call.ID, "err", err)
		}
	}()
}

// Drain blocks until every scheduled poll finished or ctx expires. Polls
// interrupted mid-loop persist their attempt count and are picked up by the
// stale-poll sweep after restart.
func (s *Scheduler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Poll runs the loop synchronously. Terminal calls return their current
// state without touching the provider.
func (s *Scheduler) Poll(ctx context.Context, seed practicecall.PracticeCall) (PollResult, error) {
	call, err := s.store.GetByID(ctx, seed.TeamID, seed.ID)
	if err != nil {
		return PollResult{}, fmt.Errorf("load call: %w", err)
	}
	if call.PollState.Terminal() {
		return PollResult{State: call.PollState, Attempts: call.PollAttempts}, nil
	}
	if call.ExternalCallID == nil || *call.ExternalCallID == "" {
		return PollResult{State: call.PollState, Attempts: call.PollAttempts}, ErrNoExternalRef
	}

	lockKey := "poll:call:" + call.ID
	token, ok, err := s.locks.Acquire(ctx, lockKey, s.tuning.LockTTL)
	if err != nil {
		return PollResult{State: call.PollState, Attempts: call.PollAttempts}, fmt.Errorf("acquire poll slot: %w", err)
	}
	if !ok {
		return PollResult{State: call.PollState, Attempts: call.PollAttempts}, ErrPollInFlight
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locks.Release(releaseCtx, lockKey, token); err != nil {
			s.log.Warn("poll slot release failed", "call_id", call.ID, "err", err)
		}
	}()

	s.metrics.PollStarted()
	s.log.Info("recording poll started",
		"call_id", call.ID,
		"external_call_id", *call.ExternalCallID,
		"resume_attempts", call.PollAttempts,
	)

	return s.run(ctx, call)
}

func (s *Scheduler) run(ctx context.Context, call practicecall.PracticeCall) (PollResult, error) {
	externalID := *call.ExternalCallID
	attempts := call.PollAttempts

	for attempts < s.tuning.MaxAttempts {
		attempts++

		snap, err := s.provider.FetchCallSnapshot(ctx, externalID)
		switch {
		case errors.Is(err, voiceai.ErrCallNotFound):
			// The provider disowns the call; retrying cannot change that.
			s.metrics.ProviderFetch(metrics.FetchNotFound)
			return s.finish(ctx, call, practicecall.PollStateNotFound, attempts)
		case err != nil:
			s.metrics.ProviderFetch(metrics.FetchError)
			s.log.Warn("call snapshot fetch failed",
				"call_id", call.ID, "attempt", attempts, "err", err)
		default:
			s.metrics.ProviderFetch(metrics.FetchOK)
			call, err = s.absorb(ctx, call, snap)
			if err != nil {
				return PollResult{State: call.PollState, Attempts: attempts}, err
			}
			if call.HasTranscript() && call.HasRecording() {
				return s.finish(ctx, call, practicecall.PollStateReady, attempts)
			}
		}

		if attempts >= s.tuning.MaxAttempts {
			break
		}
		if err := s.store.SetPollState(ctx, call.ID, practicecall.PollStatePolling, attempts); err != nil {
			return PollResult{State: practicecall.PollStatePolling, Attempts: attempts}, fmt.Errorf("persist poll progress: %w", err)
		}
		if err := s.sleep(ctx, s.tuning.delay(attempts)); err != nil {
			// Shutdown mid-loop: leave the row in POLLING with the spent
			// attempts so the stale-poll sweep can resume the budget.
			return PollResult{State: practicecall.PollStatePolling, Attempts: attempts}, err
		}
	}

	// Budget spent. PARTIAL when something was captured, EXHAUSTED when the
	// provider never produced anything usable.
	final := practicecall.PollStateExhausted
	if call.HasTranscript() || call.HasRecording() {
		final = practicecall.PollStatePartial
	}
	return s.finish(ctx, call, final, attempts)
}

// absorb merges a fetched snapshot into the stored row and returns the
// refreshed call. Patches are additive; earlier captures survive snapshots
// that no longer carry them.
func (s *Scheduler) absorb(ctx context.Context, call practicecall.PracticeCall, snap voiceai.CallSnapshot) (practicecall.PracticeCall, error) {
	patch := practicecall.RecordingPatch{
		Transcript:      snap.Transcript,
		RecordingURL:    snap.RecordingURL,
		DurationSeconds: snap.DurationSeconds,
		Cost:            snap.Cost,
		ParticipantName: snap.ParticipantName,
	}
	if snap.Status != "" {
		patch.Status = &snap.Status
	}
	if patch.Empty() {
		return call, nil
	}
	if err := s.store.ApplyRecordingData(ctx, call.ID, patch); err != nil {
		return call, fmt.Errorf("apply recording data: %w", err)
	}
	refreshed, err := s.store.GetByID(ctx, call.TeamID, call.ID)
	if err != nil {
		return call, fmt.Errorf("reload call: %w", err)
	}
	return refreshed, nil
}

func (s *Scheduler) finish(ctx context.Context, call practicecall.PracticeCall, state practicecall.PollState, attempts int) (PollResult, error) {
	if err := s.store.SetPollState(ctx, call.ID, state, attempts); err != nil {
		return PollResult{State: state, Attempts: attempts}, fmt.Errorf("persist poll state: %w", err)
	}
	s.metrics.PollCompleted(string(state), attempts)
	s.log.Info("recording poll finished",
		"call_id", call.ID,
		"state", state,
		"attempts", attempts,
		"has_transcript", call.HasTranscript(),
		"has_recording", call.HasRecording(),
	)
	return PollResult{State: state, Attempts: attempts}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/voiceai"
)

type fetchStep struct {
	snap voiceai.CallSnapshot
	err  error
}

// scriptedProvider replays fetch outcomes in order; the last step repeats
// once the script runs out.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []fetchStep
	calls int
}

func (p *scriptedProvider) Name() string                       { return "scripted" }
func (p *scriptedProvider) HealthCheck(_ context.Context) error { return nil }

func (p *scriptedProvider) FetchCallSnapshot(_ context.Context, externalCallID string) (voiceai.CallSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.steps) == 0 {
		return voiceai.CallSnapshot{ExternalCallID: externalCallID}, nil
	}
	step := p.steps[0]
	if len(p.steps) > 1 {
		p.steps = p.steps[1:]
	}
	return step.snap, step.err
}

func (p *scriptedProvider) fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestScheduler(t *testing.T, provider voiceai.Provider, locks Locker, tuning Tuning) (*Scheduler, *practicecall.MemoryStore, *[]time.Duration) {
	t.Helper()
	store := practicecall.NewMemoryStore()
	sched := NewScheduler(context.Background(), SchedulerOptions{
		Store:    store,
		Provider: provider,
		Locks:    locks,
		Tuning:   tuning,
	})
	delays := &[]time.Duration{}
	sched.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return sched, store, delays
}

func seedPollableCall(t *testing.T, store *practicecall.MemoryStore, externalID string) practicecall.PracticeCall {
	t.Helper()
	call := practicecall.PracticeCall{
		TeamID:        "team-1",
		UserID:        "user-1",
		ScenarioLabel: "Refund request",
	}
	if externalID != "" {
		call.ExternalCallID = &externalID
	}
	created, err := store.Create(context.Background(), call)
	if err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return created
}

func str(s string) *string { return &s }

func intp(n int) *int { return &n }

func TestPollNotFoundIsTerminalAfterOneAttempt(t *testing.T) {
	provider := &scriptedProvider{steps: []fetchStep{{err: voiceai.ErrCallNotFound}}}
	sched, store, _ := newTestScheduler(t, provider, nil, Tuning{MaxAttempts: 10})
	call := seedPollableCall(t, store, "ringg-404")

	res, err := sched.Poll(context.Background(), call)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.State != practicecall.PollStateNotFound || res.Attempts != 1 {
		t.Fatalf("result = %+v, want NOT_FOUND after 1 attempt", res)
	}
	if provider.fetches() != 1 {
		t.Fatalf("provider fetched %d times, want 1", provider.fetches())
	}

	stored, _ := store.GetByID(context.Background(), call.TeamID, call.ID)
	if stored.PollState != practicecall.PollStateNotFound || stored.PollAttempts != 1 {
		t.Fatalf("stored poll state = %s/%d, want NOT_FOUND/1", stored.PollState, stored.PollAttempts)
	}
}

func TestPollReadyOnceProviderFinishes(t *testing.T) {
	full := voiceai.CallSnapshot{
		Status:          "completed",
		Transcript:      str("Agent: Hello\nCaller: Hi"),
		RecordingURL:    str("https://cdn.example.com/rec.mp3"),
		DurationSeconds: intp(63),
	}
	provider := &scriptedProvider{steps: []fetchStep{{}, {}, {snap: full}}}
	sched, store, delays := newTestScheduler(t, provider, nil, Tuning{MaxAttempts: 10})
	call := seedPollableCall(t, store, "ringg-ok")

	res, err := sched.Poll(context.Background(), call)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.State != practicecall.PollStateReady || res.Attempts != 3 {
		t.Fatalf("result = %+v, want READY after 3 attempts", res)
	}

	stored, _ := store.GetByID(context.Background(), call.TeamID, call.ID)
	if !stored.HasTranscript() || !stored.HasRecording() {
		t.Fatalf("stored call missing captured data: %+v", stored)
	}
	if stored.DurationSeconds == nil || *stored.DurationSeconds != 63 {
		t.Fatalf("duration not persisted: %v", stored.DurationSeconds)
	}
	if stored.Status != "completed" {
		t.Fatalf("status = %q, want completed", stored.Status)
	}

	if len(*delays) != 2 {
		t.Fatalf("slept %d times, want 2 (between the 3 attempts)", len(*delays))
	}
	withinMilli(t, (*delays)[0], 10*time.Second)
	withinMilli(t, (*delays)[1], 12*time.Second)
}

func TestPollMergesCapturesAcrossAttempts(t *testing.T) {
	provider := &scriptedProvider{steps: []fetchStep{
		{snap: voiceai.CallSnapshot{Transcript: str("Agent: Hello")}},
		{snap: voiceai.CallSnapshot{RecordingURL: str("https://cdn.example.com/rec.mp3")}},
	}}
	sched, store, _ := newTestScheduler(t, provider, nil, Tuning{MaxAttempts: 10})
	call := seedPollableCall(t, store, "ringg-merge")

	res, err := sched.Poll(context.Background(), call)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.State != practicecall.PollStateReady || res.Attempts != 2 {
		t.Fatalf("result = %+v, want READY after 2 attempts", res)
	}

	stored, _ := store.GetByID(context.Background(), call.TeamID, call.ID)
	if stored.Transcript == nil || *stored.Transcript != "Agent: Hello" {
		t.Fatalf("transcript from first attempt lost: %v", stored.Transcript)
	}
	if stored.RecordingURL == nil || *stored.RecordingURL != "https://cdn.example.com/rec.mp3" {
		t.Fatalf("recording from second attempt missing: %v", stored.RecordingURL)
	}
}

func TestPollPartialWhenBudgetSpentWithSomeData(t *testing.T) {
	provider := &scriptedProvider{steps: []fetchStep{
		{snap: voiceai.CallSnapshot{Transcript: str("Agent: Hello")}},
	}}
	sched, store, delays := newTestScheduler(t, provider, nil, Tuning{MaxAttempts: 4})
	call := seedPollableCall(t, store, "ringg-partial")

	res, err := sched.Poll(context.Background(), call)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.State != practicecall.PollStatePartial || res.Attempts != 4 {
		t.Fatalf("result = %+v, want PARTIAL after 4 attempts", res)
	}
	if len(*delays) != 3 {
		t.Fatalf("slept %d times, want 3", len(*delays))
	}

	stored, _ := store.GetByID(context.Background(), call.TeamID, call.ID)
	if !stored.HasTranscript() {
		t.Fatal("partial poll dropped the captured transcript")
	}
	if stored.RecordingURL != nil {
		t.Fatalf("recording url = %v, want nil", stored.RecordingURL)
	}
}

func TestPollExhaustedWhenProviderStaysSilent(t *testing.T) {
	provider := &scriptedProvider{} // empty snapshots forever
	sched, store, _ := newTestScheduler(t, provider, nil, Tuning{MaxAttempts: 3})
	call := seedPollableCall(t, store, "ringg-silent")

	res, err := sched.Poll(context.Background(), call)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.State != practicecall.PollStateExhausted || res.Attempts != 3 {
		t.Fatalf("result = %+v, want EXHAUSTED after 3 attempts", res)
	}
	if provider.fetches() != 3 {
		t.Fatalf("provider fetched %d times, want 3", provider.fetches())
	}

	stored, _ := store.GetByID(context.Background(), call.TeamID, call.ID)
	if stored.PollState != practicecall.PollStateExhausted {
		t.Fatalf("stored state = %s, want EXHAUSTED", stored.PollState)
	}
}

func TestPollTransientErrorsConsumeBudget(t *testing.T) {
	provider := &scriptedProvider{steps: []fetchStep{
		{err: errors.New("ringg: call fetch failed with status 502")},
		{snap: voiceai.CallSnapshot{
			Transcript:   str("Agent: Hello"),
			RecordingURL: str("https://cdn.example.com/rec.mp3"),
		}},
	}}
	sched, store, _ := newTestScheduler(t, provider, nil, Tuning{MaxAttempts: 5})
	call := seedPollableCall(t, store, "ringg-flaky")

	res, err := sched.Poll(context.Background(), call)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.State != practicecall.PollStateReady || res.Attempts != 2 {
		t.Fatalf("result = %+v, want READY after 2 attempts", res)
	}

	stored, _ := store.GetByID(context.Background(), call.TeamID, call.ID)
	if stored.PollState != practicecall.PollStateReady {
		t.Fatalf("stored state = %s, want READY", stored.PollState)
	}
}

func TestPollBouncedWhileAnotherHolderPolls(t *testing.T) {
	locks := NewMemoryLocker()
	provider := &scriptedProvider{}
	sched, store, _ := newTestScheduler(t, provider, locks, Tuning{MaxAttempts: 3})
	call := seedPollableCall(t, store, "ringg-locked")

	if _, ok, _ := locks.Acquire(context.Background(), "poll:call:"+call.ID, time.Minute); !ok {
		t.Fatal("pre-acquire failed")
	}

	_, err := sched.Poll(context.Background(), call)
	if !errors.Is(err, ErrPollInFlight) {
		t.Fatalf("err = %v, want ErrPollInFlight", err)
	}
	if provider.fetches() != 0 {
		t.Fatalf("provider fetched %d times, want 0", provider.fetches())
	}
}

func TestPollTerminalCallShortCircuits(t *testing.T) {
	provider := &scriptedProvider{}
	sched, store, _ := newTestScheduler(t, provider, nil, Tuning{MaxAttempts: 3})
	call := seedPollableCall(t, store, "ringg-done")
	if err := store.SetPollState(context.Background(), call.ID, practicecall.PollStateReady, 5); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	res, err := sched.Poll(context.Background(), call)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.State != practicecall.PollStateReady || res.Attempts != 5 {
		t.Fatalf("result = %+v, want READY/5 untouched", res)
	}
	if provider.fetches() != 0 {
		t.Fatalf("provider fetched %d times, want 0", provider.fetches())
	}
}

func TestPollWithoutExternalRef(t *testing.T) {
	provider := &scriptedProvider{}
	sched, store, _ := newTestScheduler(t, provider, nil, Tuning{})
	call := seedPollableCall(t, store, "")

	_, err := sched.Poll(context.Background(), call)
	if !errors.Is(err, ErrNoExternalRef) {
		t.Fatalf("err = %v, want ErrNoExternalRef", err)
	}
}

func TestPollResumesSpentBudget(t *testing.T) {
	provider := &scriptedProvider{} // silent
	sched, store, _ := newTestScheduler(t, provider, nil, Tuning{MaxAttempts: 5})
	call := seedPollableCall(t, store, "ringg-resume")

	// A previous process burned 3 attempts before dying.
	if err := store.SetPollState(context.Background(), call.ID, practicecall.PollStatePolling, 3); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	res, err := sched.Poll(context.Background(), call)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Attempts != 5 {
		t.Fatalf("attempts = %d, want 5 (resumed budget, not restarted)", res.Attempts)
	}
	if provider.fetches() != 2 {
		t.Fatalf("provider fetched %d times, want 2", provider.fetches())
	}
}

func TestScheduleRunsDetached(t *testing.T) {
	full := voiceai.CallSnapshot{
		Transcript:   str("Agent: Hello"),
		RecordingURL: str("https://cdn.example.com/rec.mp3"),
	}
	provider := &scriptedProvider{steps: []fetchStep{{snap: full}}}
	sched, store, _ := newTestScheduler(t, provider, nil, Tuning{MaxAttempts: 3})
	call := seedPollableCall(t, store, "ringg-bg")

	sched.Schedule(call)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sched.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	stored, _ := store.GetByID(context.Background(), call.TeamID, call.ID)
	if stored.PollState != practicecall.PollStateReady {
		t.Fatalf("stored state = %s, want READY", stored.PollState)
	}
}

func TestBackoffGrowsGeometricallyToCap(t *testing.T) {
	tuning := Tuning{}.normalized()

	withinMilli(t, tuning.delay(1), 10*time.Second)
	withinMilli(t, tuning.delay(2), 12*time.Second)
	withinMilli(t, tuning.delay(3), 14400*time.Millisecond)
	withinMilli(t, tuning.delay(4), 17280*time.Millisecond)

	if got := tuning.delay(20); got != 60*time.Second {
		t.Fatalf("delay(20) = %v, want capped 60s", got)
	}
	for i := 1; i < 20; i++ {
		if tuning.delay(i+1) < tuning.delay(i) {
			t.Fatalf("delay shrank between attempts %d and %d", i, i+1)
		}
	}
}

// withinMilli allows for float rounding in the geometric backoff.
func withinMilli(t *testing.T, got, want time.Duration) {
	t.Helper()
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Millisecond {
		t.Fatalf("duration = %v, want ~%v", got, want)
	}
}

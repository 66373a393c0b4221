package practicecall

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("practice call not found")
	ErrAlreadyEvaluated = errors.New("practice call already evaluated")
	ErrAlreadyCompleted = errors.New("practice call already completed")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Store abstracts practice-call persistence.
//
// Write methods are field-level patches on purpose: the poller, the
// completion flow and the evaluator run concurrently against the same row
// and must not clobber each other's fields.
type Store interface {
	Create(ctx context.Context, call PracticeCall) (PracticeCall, error)
	GetByID(ctx context.Context, teamID, id string) (PracticeCall, error)
	GetByExternalID(ctx context.Context, externalCallID string) (PracticeCall, error)

	// ApplyRecordingData merges newly available provider data into the row.
	// Nil patch fields leave stored values untouched.
	ApplyRecordingData(ctx context.Context, id string, p RecordingPatch) error

	SetPollState(ctx context.Context, id string, state PollState, attempts int) error

	// CompleteCall closes the roleplay session. A second completion returns
	// ErrAlreadyCompleted and changes nothing.
	CompleteCall(ctx context.Context, teamID, id string, endedAt time.Time, outcome Outcome, notes string) (PracticeCall, error)

	// ApplyEvaluation persists all score fields plus evaluated_at in one
	// guarded write. If another evaluator already won the race the write is
	// rejected with ErrAlreadyEvaluated and the stored result is untouched.
	ApplyEvaluation(ctx context.Context, id string, ev Evaluation, evaluatedAt time.Time) error

	// ClearEvaluation removes a previous result so an admin can re-trigger
	// scoring. Explicit admin action only; never called by the orchestrator
	// on its own.
	ClearEvaluation(ctx context.Context, teamID, id string) error

	// ListPendingEvaluation returns calls that have a scoreable transcript
	// and no evaluation yet, oldest first.
	ListPendingEvaluation(ctx context.Context, limit int) ([]PracticeCall, error)

	// ListStalePolls returns calls whose poll never reached a terminal state
	// and which have not been touched since olderThan. Used to resume polls
	// after a restart.
	ListStalePolls(ctx context.Context, olderThan time.Time, limit int) ([]PracticeCall, error)

	// ListByRange returns a team's calls created within [from, to), oldest
	// first. An empty userID returns the whole team. Reporting reads only.
	ListByRange(ctx context.Context, teamID string, from, to time.Time, userID string) ([]PracticeCall, error)
}

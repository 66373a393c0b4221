package quota

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mentor-training-platform/pkg/utils"

	"github.com/google/uuid"
)

// Service provides practice-minute quota operations.
//
// Quota invariants:
// - No balance updates without a ledger entry
// - Ledger is append-only (immutable)
// - All quota operations must be executed in a DB transaction
//
// Tenancy invariant:
// - team_id is required and enforced in all queries
//
// Balance strategy:
// - Balance is stored in a projection table (quota_balances) updated atomically
//   alongside ledger inserts.
//
// Overdraft:
// - The availability gate runs at call *start* (see RequireAvailableMinutes).
//   By the time a call completes the provider minutes are already burned, so
//   DebitForCall always posts, even when it takes the balance negative. The
//   gate bounds the overdraft to one call.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time

	// minBillableSeconds is the floor applied before rounding a call's
	// duration up to whole minutes.
	minBillableSeconds int
}

func NewService(db *sql.DB, minBillableSeconds int) *Service {
	if minBillableSeconds <= 0 {
		minBillableSeconds = 30
	}
	return &Service{db: db, clock: time.Now, minBillableSeconds: minBillableSeconds}
}

type GrantRequest struct {
	Minutes        int    `json:"minutes"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// GetBalance returns the trainee's current quota. Trainees without any ledger
// history have an implicit zero balance, not a missing one.
func (s *Service) GetBalance(ctx context.Context, teamID, userID string) (Balance, error) {
	if teamID == "" || userID == "" {
		return Balance{}, ErrInvalidArgument
	}
	b, err := getBalance(ctx, s.db, teamID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Balance{TeamID: teamID, UserID: userID}, nil
		}
		return Balance{}, err
	}
	return b, nil
}

// Grant posts practice minutes to a trainee. Admin-only at the HTTP layer;
// grantedBy and a reason are required for the audit trail.
func (s *Service) Grant(ctx context.Context, teamID, userID, grantedBy string, req GrantRequest) (LedgerEntry, Balance, error) {
	if teamID == "" || userID == "" || grantedBy == "" {
		return LedgerEntry{}, Balance{}, ErrInvalidArgument
	}
	if req.Minutes <= 0 || req.Reason == "" || req.IdempotencyKey == "" {
		return LedgerEntry{}, Balance{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	entry := LedgerEntry{
		ID:             uuid.NewString(),
		TeamID:         teamID,
		UserID:         userID,
		Type:           EntryTypeGrant,
		Minutes:        req.Minutes,
		IdempotencyKey: req.IdempotencyKey,
		Note:           req.Reason,
		GrantedBy:      grantedBy,
		CreatedAt:      now,
	}

	var outEntry LedgerEntry
	var outBal Balance
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Idempotency: if an entry already exists for this trainee+key, return
		// it and the current balance.
		if existing, ok, err := findLedgerByIdempotency(ctx, tx, teamID, userID, req.IdempotencyKey); err != nil {
			return err
		} else if ok {
			outEntry = existing
			b, err := getBalanceTx(ctx, tx, teamID, userID)
			if err != nil {
				return err
			}
			outBal = b
			return nil
		}

		if err := insertLedger(ctx, tx, entry); err != nil {
			return err
		}
		b, err := applyMinutesDelta(ctx, tx, teamID, userID, entry.Minutes, now)
		if err != nil {
			return err
		}
		outEntry = entry
		outBal = b
		return nil
	})
	return outEntry, outBal, err
}

// DebitForCall posts the billable minutes for one completed practice call.
// The idempotency key is derived from the call id, so completion retries and
// replayed webhooks can never double-charge a call.
func (s *Service) DebitForCall(ctx context.Context, teamID, userID, callID string, durationSeconds int) (LedgerEntry, Balance, error) {
	if teamID == "" || userID == "" || callID == "" {
		return LedgerEntry{}, Balance{}, ErrInvalidArgument
	}
	if durationSeconds <= 0 {
		return LedgerEntry{}, Balance{}, ErrInvalidArgument
	}

	minutes := s.BillableMinutes(durationSeconds)
	now := s.clock().UTC()
	entry := LedgerEntry{
		ID:             uuid.NewString(),
		TeamID:         teamID,
		UserID:         userID,
		Type:           EntryTypeDebit,
		Minutes:        -minutes,
		CallID:         callID,
		IdempotencyKey: "call:" + callID,
		CreatedAt:      now,
	}

	var outEntry LedgerEntry
	var outBal Balance
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if existing, ok, err := findLedgerByIdempotency(ctx, tx, teamID, userID, entry.IdempotencyKey); err != nil {
			return err
		} else if ok {
			outEntry = existing
			b, err := getBalanceTx(ctx, tx, teamID, userID)
			if err != nil {
				return err
			}
			outBal = b
			return nil
		}

		if err := insertLedger(ctx, tx, entry); err != nil {
			// A concurrent completion may have won the insert race; re-read it.
			if utils.IsUniqueViolation(err) {
				existing, ok, lookupErr := findLedgerByIdempotency(ctx, tx, teamID, userID, entry.IdempotencyKey)
				if lookupErr != nil {
					return lookupErr
				}
				if ok {
					outEntry = existing
					b, berr := getBalanceTx(ctx, tx, teamID, userID)
					if berr != nil {
						return berr
					}
					outBal = b
					return nil
				}
			}
			return err
		}
		b, err := applyMinutesDelta(ctx, tx, teamID, userID, entry.Minutes, now)
		if err != nil {
			return err
		}
		outEntry = entry
		outBal = b
		return nil
	})
	return outEntry, outBal, err
}

// ListLedger returns a team's ledger entries created within [from, to),
// oldest first. An empty userID returns the whole team. Reporting reads only.
func (s *Service) ListLedger(ctx context.Context, teamID string, from, to time.Time, userID string) ([]LedgerEntry, error) {
	if teamID == "" || from.IsZero() || to.IsZero() {
		return nil, ErrInvalidArgument
	}
	return listLedger(ctx, s.db, teamID, from, to, userID)
}

// BillableMinutes converts a call duration to billable whole minutes:
// the duration is floored at minBillableSeconds, then rounded up to the
// next full minute. Any connected call bills at least one minute.
func (s *Service) BillableMinutes(durationSeconds int) int {
	if durationSeconds <= 0 {
		return 0
	}
	sec := durationSeconds
	if sec < s.minBillableSeconds {
		sec = s.minBillableSeconds
	}
	m := sec / 60
	if sec%60 != 0 {
		m++
	}
	return m
}

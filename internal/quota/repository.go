package quota

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - quota_ledger (immutable append-only)
// - quota_balances (projection)
//
// It also assumes an idempotency constraint:
// UNIQUE (team_id, user_id, idempotency_key)

func getBalance(ctx context.Context, db *sql.DB, teamID, userID string) (Balance, error) {
	const q = `
SELECT team_id, user_id, minutes, updated_at
FROM quota_balances
WHERE team_id = $1 AND user_id = $2
`
	var b Balance
	if err := db.QueryRowContext(ctx, q, teamID, userID).Scan(
		&b.TeamID,
		&b.UserID,
		&b.Minutes,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func getBalanceTx(ctx context.Context, tx *sql.Tx, teamID, userID string) (Balance, error) {
	const q = `
SELECT team_id, user_id, minutes, updated_at
FROM quota_balances
WHERE team_id = $1 AND user_id = $2
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, teamID, userID).Scan(
		&b.TeamID,
		&b.UserID,
		&b.Minutes,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{TeamID: teamID, UserID: userID}, nil
		}
		return Balance{}, err
	}
	return b, nil
}

func findLedgerByIdempotency(ctx context.Context, tx *sql.Tx, teamID, userID, key string) (LedgerEntry, bool, error) {
	const q = `
SELECT id, team_id, user_id, type, minutes, call_id, idempotency_key, note, granted_by, created_at
FROM quota_ledger
WHERE team_id = $1 AND user_id = $2 AND idempotency_key = $3
LIMIT 1
`
	var e LedgerEntry
	err := tx.QueryRowContext(ctx, q, teamID, userID, key).Scan(
		&e.ID,
		&e.TeamID,
		&e.UserID,
		&e.Type,
		&e.Minutes,
		&e.CallID,
		&e.IdempotencyKey,
		&e.Note,
		&e.GrantedBy,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LedgerEntry{}, false, nil
		}
		return LedgerEntry{}, false, err
	}
	return e, true, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, e LedgerEntry) error {
	const q = `
INSERT INTO quota_ledger (
  id, team_id, user_id, type, minutes, call_id, idempotency_key, note, granted_by, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.TeamID,
		e.UserID,
		e.Type,
		e.Minutes,
		e.CallID,
		e.IdempotencyKey,
		e.Note,
		e.GrantedBy,
		e.CreatedAt,
	)
	return err
}

func listLedger(ctx context.Context, db *sql.DB, teamID string, from, to time.Time, userID string) ([]LedgerEntry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID == "" {
		const q = `
SELECT id, team_id, user_id, type, minutes, call_id, idempotency_key, note, granted_by, created_at
FROM quota_ledger
WHERE team_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC
`
		rows, err = db.QueryContext(ctx, q, teamID, from.UTC(), to.UTC())
	} else {
		const q = `
SELECT id, team_id, user_id, type, minutes, call_id, idempotency_key, note, granted_by, created_at
FROM quota_ledger
WHERE team_id = $1 AND created_at >= $2 AND created_at < $3 AND user_id = $4
ORDER BY created_at ASC
`
		rows, err = db.QueryContext(ctx, q, teamID, from.UTC(), to.UTC(), userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(
			&e.ID,
			&e.TeamID,
			&e.UserID,
			&e.Type,
			&e.Minutes,
			&e.CallID,
			&e.IdempotencyKey,
			&e.Note,
			&e.GrantedBy,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func applyMinutesDelta(ctx context.Context, tx *sql.Tx, teamID, userID string, delta int, now time.Time) (Balance, error) {
	// Upsert the projection row. The ledger insert in the same transaction is
	// the source of truth; this row only exists to make balance reads cheap.
	const q = `
INSERT INTO quota_balances (team_id, user_id, minutes, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (team_id, user_id)
DO UPDATE SET minutes = quota_balances.minutes + EXCLUDED.minutes,
              updated_at = EXCLUDED.updated_at
RETURNING team_id, user_id, minutes, updated_at
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, teamID, userID, delta, now).Scan(
		&b.TeamID,
		&b.UserID,
		&b.Minutes,
		&b.UpdatedAt,
	); err != nil {
		return Balance{}, err
	}
	return b, nil
}

package reporting

import (
	"context"
	"time"

	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/quota"
)

// PostgresRepo serves reporting reads from the live stores. Each table's SQL
// stays in its owning package; this type only fans out.
type PostgresRepo struct {
	calls *practicecall.PostgresStore
	quota *quota.Service
}

func NewPostgresRepo(calls *practicecall.PostgresStore, quotaSvc *quota.Service) *PostgresRepo {
	return &PostgresRepo{calls: calls, quota: quotaSvc}
}

func (r *PostgresRepo) ListCalls(ctx context.Context, teamID string, from, to time.Time, userID string) ([]practicecall.PracticeCall, error) {
	return r.calls.ListByRange(ctx, teamID, from, to, userID)
}

func (r *PostgresRepo) ListQuotaLedger(ctx context.Context, teamID string, from, to time.Time, userID string) ([]quota.LedgerEntry, error) {
	return r.quota.ListLedger(ctx, teamID, from, to, userID)
}

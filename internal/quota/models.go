package quota

import "time"

// LedgerEntry is an immutable append-only record of practice minutes moving
// in or out of a trainee's quota.
//
// Multi-tenant invariant: team_id required.
// Quota invariant: any balance change MUST have a corresponding ledger entry.
type LedgerEntry struct {
	ID     string `json:"id" db:"id"`
	TeamID string `json:"team_id" db:"team_id"`
	UserID string `json:"user_id" db:"user_id"`

	// Type categorizes the ledger entry. Keep stable.
	Type EntryType `json:"type" db:"type"`

	// Minutes is the signed amount of practice minutes.
	// Grants are positive, debits are negative.
	Minutes int `json:"minutes" db:"minutes"`

	// CallID links call debits back to the practice call. Empty for grants.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// IdempotencyKey is required for safe retries of quota-posting operations.
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	// Note is a short human-readable reason (required on grants).
	Note string `json:"note,omitempty" db:"note"`

	// GrantedBy records the admin who posted a grant. Empty for call debits.
	GrantedBy string `json:"granted_by,omitempty" db:"granted_by"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryTypeGrant EntryType = "grant" // admin top-up
	EntryTypeDebit EntryType = "debit" // completed-call usage
)

// Balance is the per-trainee projection row, updated atomically alongside
// ledger inserts.
type Balance struct {
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Minutes   int       `json:"minutes"`
	UpdatedAt time.Time `json:"updated_at"`
}

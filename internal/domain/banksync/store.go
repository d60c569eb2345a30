package banksync

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"finch/internal/domain/account"
	"finch/internal/domain/transaction"
)

// ReconStore is the transactional port the reconciliation engine applies
// deltas through. Every method runs inside the single storage transaction
// opened by Store.Atomic, so a pass is applied all-or-nothing.
type ReconStore interface {
	// AccountsForItem returns the linked accounts under the item.
	AccountsForItem(ctx context.Context, itemID string) ([]*account.Account, error)
	// TombstonedIDs filters the given external ids down to those the user
	// has deleted, in one batch lookup.
	TombstonedIDs(ctx context.Context, userID int64, externalIDs []string) (map[string]struct{}, error)
	// ManualCandidates returns manual records (nil external id) on the
	// given accounts with dates inside [from, to], the bounded merge
	// candidate pool for one pass.
	ManualCandidates(ctx context.Context, accountIDs []string, from, to time.Time) ([]*transaction.Transaction, error)
	// MergeIntoManual adopts provider fields onto an existing manual
	// record, leaving notes, category and attachments untouched.
	MergeIntoManual(ctx context.Context, id string, params transaction.MergeParams) error
	// InsertSynced inserts a synced record, skipping silently when the
	// (account, external id) pair already exists. Returns the new id and
	// whether a row was actually inserted.
	InsertSynced(ctx context.Context, params transaction.SyncedInsertParams) (string, bool, error)
	// UpdateByExternalID refreshes a record by external id. A missing row
	// returns (false, nil): a no-op, not an error.
	UpdateByExternalID(ctx context.Context, userID int64, externalID string, params transaction.SyncedUpdateParams) (bool, error)
	// DeleteByExternalIDs removes records by external id, unconditionally.
	DeleteByExternalIDs(ctx context.Context, userID int64, externalIDs []string) (int64, error)
	// UpdateAccountBalance stores a normalized balance and sync stamp.
	UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal, syncedAt time.Time) error
}

// Store opens the atomic, time-bounded storage transaction a sync pass is
// applied within. If fn returns an error or the deadline passes, nothing
// is applied.
type Store interface {
	Atomic(ctx context.Context, timeout time.Duration, fn func(ReconStore) error) error
}

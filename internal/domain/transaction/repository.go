package transaction

import "context"

// Repository defines the interface for transaction data access used by the
// ledger service and the categorization engine. The reconciliation engine
// runs against its own transactional store port (see domain/banksync).
type Repository interface {
	Create(ctx context.Context, t *Transaction) (*Transaction, error)
	// GetByIDForUser returns (nil, nil) when no row matches the pair.
	GetByIDForUser(ctx context.Context, id string, userID int64) (*Transaction, error)
	ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, error)
	// Delete removes a record without writing a tombstone (manual entries).
	Delete(ctx context.Context, id string) error
	// DeleteWithTombstone atomically upserts the (user, external id)
	// tombstone with a payload snapshot and removes the record.
	DeleteWithTombstone(ctx context.Context, t *Transaction) error
	// GetTombstone returns (nil, nil) when the external id was never deleted.
	GetTombstone(ctx context.Context, userID int64, externalID string) (*Tombstone, error)
	// ListUncategorized returns still-uncategorized records for the user.
	// A nil ids slice means the full uncategorized set (rule backfill).
	ListUncategorized(ctx context.Context, userID int64, ids []string) ([]*Transaction, error)
	// AssignCategory bulk-sets the category on the given records, touching
	// only rows that are still uncategorized. Returns rows updated.
	AssignCategory(ctx context.Context, userID int64, categoryID int64, ids []string) (int64, error)
}

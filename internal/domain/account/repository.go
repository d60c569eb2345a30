package account

import "context"

// Repository defines the interface for account data access.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Account, error)
	// GetByID returns (nil, nil) when the account does not exist.
	GetByID(ctx context.Context, id string) (*Account, error)
	ListByUserID(ctx context.Context, userID int64) ([]*Account, error)
	ListByItemID(ctx context.Context, itemID string) ([]*Account, error)
}

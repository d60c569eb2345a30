package rules

import "context"

// Repository defines the interface for categorization-rule data access.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Rule, error)
	// ListByUser returns the user's rules in stored evaluation order.
	ListByUser(ctx context.Context, userID int64) ([]*Rule, error)
	Delete(ctx context.Context, id, userID int64) error
}

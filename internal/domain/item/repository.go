package item

import (
	"context"
	"time"
)

// Repository defines the interface for linked-item data access.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Item, error)
	// GetByIDForUser returns the item only when it belongs to the given user.
	// A missing row returns (nil, nil).
	GetByIDForUser(ctx context.Context, id string, userID int64) (*Item, error)
	// GetByExternalID resolves the aggregator-side item id carried by
	// webhook payloads. A missing row returns (nil, nil).
	GetByExternalID(ctx context.Context, externalID string) (*Item, error)
	// ListActive returns every ACTIVE item, for scheduled background syncs.
	ListActive(ctx context.Context) ([]*Item, error)
	// SetStatus records a degraded state and its provider message.
	SetStatus(ctx context.Context, id string, status string, message string) error
	// CompleteSync persists the new cursor, clears any stored error and
	// stamps the last successful sync. Called only after a fully applied pass.
	CompleteSync(ctx context.Context, id string, cursor string, syncedAt time.Time) error
}

package scheduler

import (
	"context"
	"errors"
	"fmt"

	"finch/internal/domain/banksync"
	"finch/internal/domain/item"
)

// ItemSyncJob runs one sync pass for a linked item through the orchestrator.
// A pass skipped by the single-flight lock is a success from the pool's
// point of view.
type ItemSyncJob struct {
	item *item.Item
	sync *banksync.Service
}

func NewItemSyncJob(it *item.Item, sync *banksync.Service) *ItemSyncJob {
	return &ItemSyncJob{item: it, sync: sync}
}

func (j *ItemSyncJob) Execute(ctx context.Context) error {
	_, err := j.sync.SyncItem(ctx, j.item.UserID, j.item.ID)
	if err != nil {
		// The item is already marked LOGIN_REQUIRED and will stay out of
		// the active set until relinked; not a pool-level failure.
		var loginErr *banksync.LoginRequiredError
		if errors.As(err, &loginErr) {
			return nil
		}
		return fmt.Errorf("scheduled sync for item %s: %w", j.item.ID, err)
	}
	return nil
}

func (j *ItemSyncJob) Key() string {
	return j.item.ID
}

func (j *ItemSyncJob) Description() string {
	return "item sync"
}

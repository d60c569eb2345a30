package banksync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"finch/internal/domain/item"
	"finch/internal/domain/rules"
	"finch/internal/infrastructure/aggregator"
	"finch/internal/shared/keylock"
)

const (
	// defaultApplyTimeout bounds the atomic storage transaction one pass
	// is applied within.
	defaultApplyTimeout = 15 * time.Second

	lockKeyPrefix = "item-sync:"
)

var (
	syncTracer          = otel.Tracer("finch/banksync")
	syncMeter           = otel.Meter("finch/banksync")
	syncDuration, _     = syncMeter.Float64Histogram("banksync.pass.duration", metric.WithDescription("Sync pass duration in seconds"), metric.WithUnit("s"))
	syncTotal, _        = syncMeter.Int64Counter("banksync.pass.total", metric.WithDescription("Sync passes by outcome"))
	syncRecordsTotal, _ = syncMeter.Int64Counter("banksync.records.total", metric.WithDescription("Records applied by kind"))
)

// Service drives one incremental sync pass per call: refresh request,
// paginated delta fetch, concurrent balance fetch, atomic reconciliation,
// cursor persistence, then categorization of fresh inserts. Passes for the
// same item are serialized by the keyed lock; a concurrent call returns a
// skipped result instead of queuing.
type Service struct {
	items        item.Repository
	store        Store
	client       aggregator.Client
	locker       keylock.Locker
	reconciler   *Reconciler
	categorizer  *rules.Engine
	applyTimeout time.Duration
	log          *logrus.Logger
}

// NewService creates a new sync orchestrator.
func NewService(items item.Repository, store Store, client aggregator.Client, locker keylock.Locker, reconciler *Reconciler, categorizer *rules.Engine, log *logrus.Logger) *Service {
	return &Service{
		items:        items,
		store:        store,
		client:       client,
		locker:       locker,
		reconciler:   reconciler,
		categorizer:  categorizer,
		applyTimeout: defaultApplyTimeout,
		log:          log,
	}
}

// SyncItem runs one sync pass for the item, scoped to the owning user.
func (s *Service) SyncItem(ctx context.Context, userID int64, itemID string) (*SyncResult, error) {
	ctx, span := syncTracer.Start(ctx, "banksync.pass", trace.WithAttributes(
		attribute.String("item.id", itemID),
	))
	defer span.End()
	start := time.Now()

	result, err := s.syncItem(ctx, userID, itemID)
	syncDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return nil, err
	}
	if result.Skipped {
		syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "skipped")))
		return result, nil
	}
	syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	syncRecordsTotal.Add(ctx, int64(result.Added), metric.WithAttributes(attribute.String("kind", "added")))
	syncRecordsTotal.Add(ctx, int64(result.Modified), metric.WithAttributes(attribute.String("kind", "modified")))
	syncRecordsTotal.Add(ctx, int64(result.Removed), metric.WithAttributes(attribute.String("kind", "removed")))
	syncRecordsTotal.Add(ctx, int64(result.Merged), metric.WithAttributes(attribute.String("kind", "merged")))
	return result, nil
}

func (s *Service) syncItem(ctx context.Context, userID int64, itemID string) (*SyncResult, error) {
	it, err := s.items.GetByIDForUser(ctx, itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item: %w", err)
	}
	if it == nil {
		return nil, item.ErrItemNotFound
	}

	release, acquired, err := s.locker.Acquire(ctx, lockKeyPrefix+it.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		s.log.WithFields(logrus.Fields{"item_id": it.ID}).Info("sync already in flight, skipping")
		return &SyncResult{ItemID: it.ID, Skipped: true}, nil
	}
	defer release()

	result := &SyncResult{ItemID: it.ID, HadCursor: it.Cursor != nil}

	// Best-effort refresh request. The pull below may be stale by one
	// cycle when this fails; never fatal.
	if err := s.client.RequestRefresh(ctx, it.AccessToken); err != nil {
		s.log.WithFields(logrus.Fields{
			"item_id": it.ID,
			"error":   err.Error(),
		}).Warn("refresh request failed")
	} else {
		result.RefreshRequested = true
	}

	// Balances fetch runs concurrently with the paginated delta pull.
	type balancesOut struct {
		balances []aggregator.AccountBalance
		err      error
	}
	balanceCh := make(chan balancesOut, 1)
	go func() {
		balances, err := s.client.FetchBalances(ctx, it.AccessToken)
		balanceCh <- balancesOut{balances: balances, err: err}
	}()

	deltas, nextCursor, err := s.fetchAllDeltas(ctx, it)
	if err != nil {
		return nil, s.fail(ctx, it, err)
	}
	bal := <-balanceCh
	if bal.err != nil {
		return nil, s.fail(ctx, it, bal.err)
	}

	result.RawAdded = len(deltas.Added)
	result.RawModified = len(deltas.Modified)
	result.RawRemoved = len(deltas.Removed)

	var applied *ApplyResult
	err = s.store.Atomic(ctx, s.applyTimeout, func(st ReconStore) error {
		var applyErr error
		applied, applyErr = s.reconciler.Apply(ctx, st, it, *deltas, bal.balances)
		return applyErr
	})
	if err != nil {
		// Includes the transaction deadline: nothing was applied, the
		// cursor stays put and the pass is retryable.
		return nil, s.fail(ctx, it, err)
	}

	if err := s.items.CompleteSync(ctx, it.ID, nextCursor, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to persist cursor: %w", err)
	}

	result.Added = applied.Added
	result.Modified = applied.Modified
	result.Removed = applied.Removed
	result.Merged = applied.Merged
	result.DroppedUnmapped = applied.DroppedUnmapped
	result.DroppedTombstoned = applied.DroppedTombstoned

	// Categorize fresh inserts only. The pass is already durable, so a
	// failure here is logged rather than surfaced.
	if len(applied.InsertedIDs) > 0 {
		catResult, err := s.categorizer.CategorizeNew(ctx, it.UserID, applied.InsertedIDs)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"item_id": it.ID,
				"error":   err.Error(),
			}).Warn("categorization of fresh inserts failed")
		} else {
			result.Categorized = catResult.Updated
		}
	}

	s.log.WithFields(logrus.Fields{
		"item_id":  it.ID,
		"added":    result.Added,
		"modified": result.Modified,
		"removed":  result.Removed,
		"merged":   result.Merged,
	}).Info("sync pass completed")

	return result, nil
}

// fetchAllDeltas accumulates every page of the delta feed from the item's
// stored cursor and returns the final page token as the candidate cursor.
func (s *Service) fetchAllDeltas(ctx context.Context, it *item.Item) (*Deltas, string, error) {
	cursor := ""
	if it.Cursor != nil {
		cursor = *it.Cursor
	}

	deltas := &Deltas{}
	next := cursor
	for {
		page, err := s.client.FetchDeltas(ctx, it.AccessToken, next)
		if err != nil {
			return nil, "", err
		}
		deltas.Added = append(deltas.Added, page.Added...)
		deltas.Modified = append(deltas.Modified, page.Modified...)
		deltas.Removed = append(deltas.Removed, page.Removed...)
		next = page.NextCursor
		if !page.HasMore {
			break
		}
	}
	return deltas, next, nil
}

// fail records the degraded item state and converts the error to its typed
// form. The status write uses a detached context so it still lands when
// the pass died to a timeout or cancellation.
func (s *Service) fail(ctx context.Context, it *item.Item, err error) error {
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var apiErr *aggregator.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == aggregator.ErrorCodeLoginRequired {
			if setErr := s.items.SetStatus(statusCtx, it.ID, item.StatusLoginRequired, apiErr.Message); setErr != nil {
				s.log.WithFields(logrus.Fields{"item_id": it.ID, "error": setErr.Error()}).Error("failed to persist LOGIN_REQUIRED status")
			}
			return &LoginRequiredError{Message: apiErr.Message}
		}
		if setErr := s.items.SetStatus(statusCtx, it.ID, item.StatusError, apiErr.Message); setErr != nil {
			s.log.WithFields(logrus.Fields{"item_id": it.ID, "error": setErr.Error()}).Error("failed to persist ERROR status")
		}
		return &AggregatorError{Message: apiErr.Message}
	}

	// Storage or local failure: mark the item retryable-degraded but keep
	// the original error for the caller.
	if setErr := s.items.SetStatus(statusCtx, it.ID, item.StatusError, err.Error()); setErr != nil {
		s.log.WithFields(logrus.Fields{"item_id": it.ID, "error": setErr.Error()}).Error("failed to persist ERROR status")
	}
	return err
}

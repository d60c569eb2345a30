package banksync

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"finch/internal/domain/account"
	"finch/internal/domain/item"
	"finch/internal/domain/transaction"
	"finch/internal/infrastructure/aggregator"
)

// mergeWindow is how far apart a manual record's date may be from an
// incoming record's date for the two to be considered the same movement.
const mergeWindow = 3 * 24 * time.Hour

// Deltas accumulates one full paginated pull from the aggregator.
type Deltas struct {
	Added    []aggregator.Transaction
	Modified []aggregator.Transaction
	Removed  []aggregator.RemovedTransaction
}

// Reconciler applies a pulled delta set against local storage. Every call
// to Apply runs inside the single atomic transaction opened by the
// orchestrator; the engine itself holds no state between passes.
type Reconciler struct {
	log *logrus.Logger
}

// NewReconciler creates a new reconciliation engine.
func NewReconciler(log *logrus.Logger) *Reconciler {
	return &Reconciler{log: log}
}

// mappedAdd is an added record resolved to a local account with its amount
// already normalized.
type mappedAdd struct {
	rec       aggregator.Transaction
	acct      *account.Account
	amount    decimal.Decimal
	date      time.Time
	direction string
}

// Apply reconciles deltas and balances for one item. Added records are
// account-mapped, tombstone-filtered, merge-matched against manual records
// and inserted idempotently; modified records update in place; removed
// records delete unconditionally; balances store normalized.
func (r *Reconciler) Apply(ctx context.Context, st ReconStore, it *item.Item, deltas Deltas, balances []aggregator.AccountBalance) (*ApplyResult, error) {
	out := &ApplyResult{}

	accounts, err := st.AccountsForItem(ctx, it.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item accounts: %w", err)
	}
	byExternal := make(map[string]*account.Account, len(accounts))
	for _, a := range accounts {
		if a.ExternalID != nil {
			byExternal[*a.ExternalID] = a
		}
	}

	adds, err := r.mapAdded(it, deltas.Added, byExternal, out)
	if err != nil {
		return nil, err
	}
	adds, err = r.filterTombstoned(ctx, st, it.UserID, adds, out)
	if err != nil {
		return nil, err
	}
	if err := r.applyAdded(ctx, st, it.UserID, adds, out); err != nil {
		return nil, err
	}
	if err := r.applyModified(ctx, st, it.UserID, deltas.Modified, out); err != nil {
		return nil, err
	}
	if err := r.applyRemoved(ctx, st, it.UserID, deltas.Removed, out); err != nil {
		return nil, err
	}
	if err := r.applyBalances(ctx, st, byExternal, balances); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *Reconciler) mapAdded(it *item.Item, added []aggregator.Transaction, byExternal map[string]*account.Account, out *ApplyResult) ([]mappedAdd, error) {
	adds := make([]mappedAdd, 0, len(added))
	for _, rec := range added {
		acct, ok := byExternal[rec.AccountID]
		if !ok {
			// Account never linked locally; dropping is safe because the
			// record will come back on the next full pull if it ever maps.
			out.DroppedUnmapped++
			r.log.WithFields(logrus.Fields{
				"item_id":             it.ID,
				"external_account_id": rec.AccountID,
			}).Warn("dropping transaction for unmapped account")
			continue
		}
		amount, direction, err := rec.AmountParts()
		if err != nil {
			return nil, fmt.Errorf("malformed added record %s: %w", rec.ID, err)
		}
		date, err := rec.GetDate()
		if err != nil {
			return nil, fmt.Errorf("malformed added record %s: %w", rec.ID, err)
		}
		adds = append(adds, mappedAdd{
			rec:       rec,
			acct:      acct,
			amount:    amount,
			date:      date,
			direction: direction,
		})
	}
	return adds, nil
}

func (r *Reconciler) filterTombstoned(ctx context.Context, st ReconStore, userID int64, adds []mappedAdd, out *ApplyResult) ([]mappedAdd, error) {
	if len(adds) == 0 {
		return adds, nil
	}
	ids := make([]string, 0, len(adds))
	for _, a := range adds {
		ids = append(ids, a.rec.ID)
	}
	tombstoned, err := st.TombstonedIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check tombstones: %w", err)
	}
	if len(tombstoned) == 0 {
		return adds, nil
	}
	kept := adds[:0]
	for _, a := range adds {
		if _, dead := tombstoned[a.rec.ID]; dead {
			out.DroppedTombstoned++
			continue
		}
		kept = append(kept, a)
	}
	return kept, nil
}

func (r *Reconciler) applyAdded(ctx context.Context, st ReconStore, userID int64, adds []mappedAdd, out *ApplyResult) error {
	if len(adds) == 0 {
		return nil
	}

	// One bounded candidate query covering every incoming date ±3 days.
	minDate, maxDate := adds[0].date, adds[0].date
	accountIDs := make([]string, 0, len(adds))
	seen := make(map[string]struct{})
	for _, a := range adds {
		if a.date.Before(minDate) {
			minDate = a.date
		}
		if a.date.After(maxDate) {
			maxDate = a.date
		}
		if _, ok := seen[a.acct.ID]; !ok {
			seen[a.acct.ID] = struct{}{}
			accountIDs = append(accountIDs, a.acct.ID)
		}
	}
	candidates, err := st.ManualCandidates(ctx, accountIDs, minDate.Add(-mergeWindow), maxDate.Add(mergeWindow))
	if err != nil {
		return fmt.Errorf("failed to load merge candidates: %w", err)
	}

	merged := make(map[string]struct{}) // manual ids already claimed this pass
	for _, a := range adds {
		best := r.bestCandidate(candidates, merged, a)
		if best != nil {
			err := st.MergeIntoManual(ctx, best.ID, transaction.MergeParams{
				ExternalID:   a.rec.ID,
				Date:         a.date,
				Description:  a.rec.Description,
				MerchantName: a.rec.MerchantName,
				Pending:      a.rec.Pending,
				RawPayload:   a.rec.Payload(),
			})
			if err != nil {
				return fmt.Errorf("failed to merge into manual record %s: %w", best.ID, err)
			}
			merged[best.ID] = struct{}{}
			out.Merged++
			continue
		}

		id, inserted, err := st.InsertSynced(ctx, transaction.SyncedInsertParams{
			UserID:       userID,
			AccountID:    a.acct.ID,
			ExternalID:   a.rec.ID,
			Date:         a.date,
			Description:  a.rec.Description,
			Amount:       a.amount,
			Direction:    a.direction,
			Pending:      a.rec.Pending,
			MerchantName: a.rec.MerchantName,
			RawPayload:   a.rec.Payload(),
		})
		if err != nil {
			return fmt.Errorf("failed to insert synced record %s: %w", a.rec.ID, err)
		}
		if inserted {
			out.Added++
			out.InsertedIDs = append(out.InsertedIDs, id)
		}
		// Not inserted means the (account, external id) pair already
		// exists: a replayed delta, skipped for idempotence.
	}
	return nil
}

// bestCandidate picks the manual record an incoming record merges into:
// same account, same amount magnitude and direction, date within ±3 days.
// Closest date wins; ties break on earliest creation time, then lowest id.
func (r *Reconciler) bestCandidate(candidates []*transaction.Transaction, claimed map[string]struct{}, a mappedAdd) *transaction.Transaction {
	var best *transaction.Transaction
	var bestDist time.Duration
	for _, c := range candidates {
		if _, used := claimed[c.ID]; used {
			continue
		}
		if c.AccountID != a.acct.ID || c.Direction != a.direction || !c.Amount.Equal(a.amount) {
			continue
		}
		dist := c.Date.Sub(a.date)
		if dist < 0 {
			dist = -dist
		}
		if dist > mergeWindow {
			continue
		}
		if best == nil || dist < bestDist {
			best, bestDist = c, dist
			continue
		}
		if dist == bestDist {
			if c.CreatedAt.Before(best.CreatedAt) ||
				(c.CreatedAt.Equal(best.CreatedAt) && c.ID < best.ID) {
				best, bestDist = c, dist
			}
		}
	}
	return best
}

func (r *Reconciler) applyModified(ctx context.Context, st ReconStore, userID int64, modified []aggregator.Transaction, out *ApplyResult) error {
	if len(modified) == 0 {
		return nil
	}
	ids := make([]string, 0, len(modified))
	for _, rec := range modified {
		ids = append(ids, rec.ID)
	}
	tombstoned, err := st.TombstonedIDs(ctx, userID, ids)
	if err != nil {
		return fmt.Errorf("failed to check tombstones: %w", err)
	}

	for _, rec := range modified {
		if _, dead := tombstoned[rec.ID]; dead {
			out.DroppedTombstoned++
			continue
		}
		amount, direction, err := rec.AmountParts()
		if err != nil {
			return fmt.Errorf("malformed modified record %s: %w", rec.ID, err)
		}
		date, err := rec.GetDate()
		if err != nil {
			return fmt.Errorf("malformed modified record %s: %w", rec.ID, err)
		}
		updated, err := st.UpdateByExternalID(ctx, userID, rec.ID, transaction.SyncedUpdateParams{
			Date:         date,
			Description:  rec.Description,
			Amount:       amount,
			Direction:    direction,
			Pending:      rec.Pending,
			MerchantName: rec.MerchantName,
			RawPayload:   rec.Payload(),
		})
		if err != nil {
			return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
		}
		if updated {
			out.Modified++
		}
		// No local match is a no-op: the record may predate the link or
		// have been dropped as unmapped on an earlier pass.
	}
	return nil
}

func (r *Reconciler) applyRemoved(ctx context.Context, st ReconStore, userID int64, removed []aggregator.RemovedTransaction, out *ApplyResult) error {
	if len(removed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(removed))
	for _, rec := range removed {
		ids = append(ids, rec.ID)
	}
	// Removal is authoritative: no tombstone check.
	n, err := st.DeleteByExternalIDs(ctx, userID, ids)
	if err != nil {
		return fmt.Errorf("failed to delete removed records: %w", err)
	}
	out.Removed = int(n)
	return nil
}

func (r *Reconciler) applyBalances(ctx context.Context, st ReconStore, byExternal map[string]*account.Account, balances []aggregator.AccountBalance) error {
	now := time.Now().UTC()
	for _, b := range balances {
		acct, ok := byExternal[b.AccountID]
		if !ok {
			continue
		}
		current, err := b.GetCurrent()
		if err != nil {
			return fmt.Errorf("malformed balance for account %s: %w", b.AccountID, err)
		}
		normalized := account.NormalizeBalance(acct.Type, current)
		if err := st.UpdateAccountBalance(ctx, acct.ID, normalized, now); err != nil {
			return fmt.Errorf("failed to store balance for account %s: %w", acct.ID, err)
		}
	}
	return nil
}

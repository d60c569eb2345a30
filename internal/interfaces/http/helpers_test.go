package http

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"finch/internal/domain/account"
	"finch/internal/domain/banksync"
	"finch/internal/domain/item"
	"finch/internal/domain/rules"
	"finch/internal/domain/transaction"
	"finch/internal/infrastructure/aggregator"
	"finch/internal/shared/keylock"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// stubItemRepo implements item.Repository with recorded calls.
type stubItemRepo struct {
	mu         sync.Mutex
	byID       map[string]*item.Item
	byExternal map[string]*item.Item

	statusCalls   []string
	syncCompleted []string
}

func (s *stubItemRepo) Create(ctx context.Context, params item.CreateParams) (*item.Item, error) {
	return nil, nil
}

func (s *stubItemRepo) GetByIDForUser(ctx context.Context, id string, userID int64) (*item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byID[id]
	if !ok || it.UserID != userID {
		return nil, nil
	}
	return it, nil
}

func (s *stubItemRepo) GetByExternalID(ctx context.Context, externalID string) (*item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byExternal[externalID], nil
}

func (s *stubItemRepo) ListActive(ctx context.Context) ([]*item.Item, error) {
	return nil, nil
}

func (s *stubItemRepo) SetStatus(ctx context.Context, id string, status string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCalls = append(s.statusCalls, status)
	return nil
}

func (s *stubItemRepo) CompleteSync(ctx context.Context, id string, cursor string, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncCompleted = append(s.syncCompleted, id)
	return nil
}

func (s *stubItemRepo) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statusCalls...)
}

func (s *stubItemRepo) completed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.syncCompleted...)
}

// stubAggClient implements aggregator.Client with canned responses.
type stubAggClient struct {
	page      *aggregator.DeltaPage
	deltasErr error
}

func (s *stubAggClient) RequestRefresh(ctx context.Context, accessToken string) error { return nil }

func (s *stubAggClient) FetchDeltas(ctx context.Context, accessToken, cursor string) (*aggregator.DeltaPage, error) {
	if s.deltasErr != nil {
		return nil, s.deltasErr
	}
	if s.page != nil {
		return s.page, nil
	}
	return &aggregator.DeltaPage{NextCursor: "cursor-1"}, nil
}

func (s *stubAggClient) FetchBalances(ctx context.Context, accessToken string) ([]aggregator.AccountBalance, error) {
	return nil, nil
}

// stubReconStore is a no-op banksync.ReconStore.
type stubReconStore struct{}

func (stubReconStore) AccountsForItem(ctx context.Context, itemID string) ([]*account.Account, error) {
	return nil, nil
}

func (stubReconStore) TombstonedIDs(ctx context.Context, userID int64, externalIDs []string) (map[string]struct{}, error) {
	return nil, nil
}

func (stubReconStore) ManualCandidates(ctx context.Context, accountIDs []string, from, to time.Time) ([]*transaction.Transaction, error) {
	return nil, nil
}

func (stubReconStore) MergeIntoManual(ctx context.Context, id string, params transaction.MergeParams) error {
	return nil
}

func (stubReconStore) InsertSynced(ctx context.Context, params transaction.SyncedInsertParams) (string, bool, error) {
	return "", false, nil
}

func (stubReconStore) UpdateByExternalID(ctx context.Context, userID int64, externalID string, params transaction.SyncedUpdateParams) (bool, error) {
	return false, nil
}

func (stubReconStore) DeleteByExternalIDs(ctx context.Context, userID int64, externalIDs []string) (int64, error) {
	return 0, nil
}

func (stubReconStore) UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal, syncedAt time.Time) error {
	return nil
}

type stubStore struct{}

func (stubStore) Atomic(ctx context.Context, timeout time.Duration, fn func(banksync.ReconStore) error) error {
	return fn(stubReconStore{})
}

// stubRuleRepo implements rules.Repository.
type stubRuleRepo struct{}

func (stubRuleRepo) Create(ctx context.Context, params rules.CreateParams) (*rules.Rule, error) {
	return nil, nil
}
func (stubRuleRepo) ListByUser(ctx context.Context, userID int64) ([]*rules.Rule, error) {
	return nil, nil
}
func (stubRuleRepo) Delete(ctx context.Context, id, userID int64) error { return nil }

// stubTxRepo implements transaction.Repository.
type stubTxRepo struct{}

func (stubTxRepo) Create(ctx context.Context, t *transaction.Transaction) (*transaction.Transaction, error) {
	return t, nil
}
func (stubTxRepo) GetByIDForUser(ctx context.Context, id string, userID int64) (*transaction.Transaction, error) {
	return nil, nil
}
func (stubTxRepo) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	return nil, nil
}
func (stubTxRepo) Delete(ctx context.Context, id string) error { return nil }
func (stubTxRepo) DeleteWithTombstone(ctx context.Context, t *transaction.Transaction) error {
	return nil
}
func (stubTxRepo) GetTombstone(ctx context.Context, userID int64, externalID string) (*transaction.Tombstone, error) {
	return nil, nil
}
func (stubTxRepo) ListUncategorized(ctx context.Context, userID int64, ids []string) ([]*transaction.Transaction, error) {
	return nil, nil
}
func (stubTxRepo) AssignCategory(ctx context.Context, userID int64, categoryID int64, ids []string) (int64, error) {
	return 0, nil
}

func newSyncService(items item.Repository, client aggregator.Client) *banksync.Service {
	log := testLogger()
	return banksync.NewService(
		items,
		stubStore{},
		client,
		keylock.NewMemoryLocker(),
		banksync.NewReconciler(log),
		rules.NewEngine(stubRuleRepo{}, stubTxRepo{}, log),
		log,
	)
}

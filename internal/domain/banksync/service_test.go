package banksync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finch/internal/domain/account"
	"finch/internal/domain/item"
	"finch/internal/domain/rules"
	"finch/internal/domain/transaction"
	"finch/internal/infrastructure/aggregator"
	"finch/internal/shared/keylock"
)

// mockItemRepo implements item.Repository for testing.
type mockItemRepo struct {
	mu sync.Mutex

	item *item.Item

	statusCalls []string
	lastMessage string

	completedCursor *string
}

func (m *mockItemRepo) Create(ctx context.Context, params item.CreateParams) (*item.Item, error) {
	return nil, nil
}

func (m *mockItemRepo) GetByIDForUser(ctx context.Context, id string, userID int64) (*item.Item, error) {
	if m.item != nil && m.item.ID == id && m.item.UserID == userID {
		return m.item, nil
	}
	return nil, nil
}

func (m *mockItemRepo) GetByExternalID(ctx context.Context, externalID string) (*item.Item, error) {
	return nil, nil
}

func (m *mockItemRepo) ListActive(ctx context.Context) ([]*item.Item, error) {
	return nil, nil
}

func (m *mockItemRepo) SetStatus(ctx context.Context, id string, status string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls = append(m.statusCalls, status)
	m.lastMessage = message
	return nil
}

func (m *mockItemRepo) CompleteSync(ctx context.Context, id string, cursor string, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedCursor = &cursor
	return nil
}

// mockAggClient implements aggregator.Client for testing.
type mockAggClient struct {
	mu sync.Mutex

	refreshErr    error
	refreshCalled bool

	pages    []*aggregator.DeltaPage
	pageIdx  int
	fetchErr error

	balances    []aggregator.AccountBalance
	balancesErr error
}

func (m *mockAggClient) RequestRefresh(ctx context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCalled = true
	return m.refreshErr
}

func (m *mockAggClient) FetchDeltas(ctx context.Context, accessToken, cursor string) (*aggregator.DeltaPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if m.pageIdx >= len(m.pages) {
		return &aggregator.DeltaPage{}, nil
	}
	page := m.pages[m.pageIdx]
	m.pageIdx++
	return page, nil
}

func (m *mockAggClient) FetchBalances(ctx context.Context, accessToken string) ([]aggregator.AccountBalance, error) {
	return m.balances, m.balancesErr
}

// mockStore hands Atomic callbacks the embedded recon store.
type mockStore struct {
	recon *mockReconStore
	err   error
}

func (s *mockStore) Atomic(ctx context.Context, timeout time.Duration, fn func(ReconStore) error) error {
	if s.err != nil {
		return s.err
	}
	if err := fn(s.recon); err != nil {
		return err
	}
	return nil
}

// Minimal rule and transaction repos so the categorizer resolves to a no-op.
type stubRuleRepo struct{}

func (stubRuleRepo) Create(ctx context.Context, params rules.CreateParams) (*rules.Rule, error) {
	return nil, nil
}
func (stubRuleRepo) ListByUser(ctx context.Context, userID int64) ([]*rules.Rule, error) {
	return nil, nil
}
func (stubRuleRepo) Delete(ctx context.Context, id, userID int64) error { return nil }

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
func (stubTxRepo) Delete(ctx context.Context, id string) error                       { return nil }
func (stubTxRepo) DeleteWithTombstone(ctx context.Context, t *transaction.Transaction) error { return nil }
func (stubTxRepo) GetTombstone(ctx context.Context, userID int64, externalID string) (*transaction.Tombstone, error) {
	return nil, nil
}
func (stubTxRepo) ListUncategorized(ctx context.Context, userID int64, ids []string) ([]*transaction.Transaction, error) {
	return nil, nil
}
func (stubTxRepo) AssignCategory(ctx context.Context, userID int64, categoryID int64, ids []string) (int64, error) {
	return 0, nil
}

func newTestService(items *mockItemRepo, store Store, client aggregator.Client, locker keylock.Locker) *Service {
	log := testLogger()
	categorizer := rules.NewEngine(stubRuleRepo{}, stubTxRepo{}, log)
	return NewService(items, store, client, locker, NewReconciler(log), categorizer, log)
}

func activeItem() *item.Item {
	return &item.Item{
		ID:          "item-1",
		UserID:      7,
		ExternalID:  "ext-item-1",
		AccessToken: "token",
		Status:      item.StatusActive,
	}
}

func TestSyncItem_SkippedWhenAlreadyInFlight(t *testing.T) {
	items := &mockItemRepo{item: activeItem()}
	client := &mockAggClient{}
	locker := keylock.NewMemoryLocker()

	// Hold the item's key as an in-flight pass would.
	_, ok, err := locker.Acquire(context.Background(), "item-sync:item-1")
	require.NoError(t, err)
	require.True(t, ok)

	svc := newTestService(items, &mockStore{recon: newMockReconStore()}, client, locker)

	result, err := svc.SyncItem(context.Background(), 7, "item-1")
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.False(t, client.refreshCalled)
	assert.Nil(t, items.completedCursor)
}

func TestSyncItem_FreshLinkPaginatesAndPersistsFinalCursor(t *testing.T) {
	items := &mockItemRepo{item: activeItem()}
	recon := newMockReconStore()
	recon.accounts = []*account.Account{checkingAccount()}
	client := &mockAggClient{
		pages: []*aggregator.DeltaPage{
			{
				Added: []aggregator.Transaction{
					added("ext-1", "10.00", "2026-03-01"),
					added("ext-2", "20.00", "2026-03-01"),
				},
				NextCursor: "cursor-1",
				HasMore:    true,
			},
			{
				Added:      []aggregator.Transaction{added("ext-3", "30.00", "2026-03-02")},
				NextCursor: "cursor-2",
				HasMore:    false,
			},
		},
	}

	svc := newTestService(items, &mockStore{recon: recon}, client, keylock.NewMemoryLocker())

	result, err := svc.SyncItem(context.Background(), 7, "item-1")
	require.NoError(t, err)

	assert.False(t, result.HadCursor)
	assert.Equal(t, 3, result.RawAdded)
	assert.Equal(t, 3, result.Added)
	assert.Equal(t, 0, result.Merged)
	require.NotNil(t, items.completedCursor)
	assert.Equal(t, "cursor-2", *items.completedCursor)
}

func TestSyncItem_LoginRequiredDegradesItem(t *testing.T) {
	items := &mockItemRepo{item: activeItem()}
	client := &mockAggClient{
		fetchErr: &aggregator.APIError{
			StatusCode: 400,
			Code:       aggregator.ErrorCodeLoginRequired,
			Message:    "user must re-authenticate",
		},
	}

	svc := newTestService(items, &mockStore{recon: newMockReconStore()}, client, keylock.NewMemoryLocker())

	_, err := svc.SyncItem(context.Background(), 7, "item-1")

	var loginErr *LoginRequiredError
	require.ErrorAs(t, err, &loginErr)
	assert.Equal(t, "user must re-authenticate", loginErr.Message)
	assert.Equal(t, []string{item.StatusLoginRequired}, items.statusCalls)
	assert.Nil(t, items.completedCursor)
}

func TestSyncItem_ApplyErrorLeavesCursorUntouched(t *testing.T) {
	items := &mockItemRepo{item: activeItem()}
	client := &mockAggClient{}
	store := &mockStore{recon: newMockReconStore(), err: errors.New("deadline exceeded")}

	svc := newTestService(items, store, client, keylock.NewMemoryLocker())

	_, err := svc.SyncItem(context.Background(), 7, "item-1")
	require.Error(t, err)

	assert.Equal(t, []string{item.StatusError}, items.statusCalls)
	assert.Nil(t, items.completedCursor)
}

func TestSyncItem_RefreshFailureIsNonFatal(t *testing.T) {
	items := &mockItemRepo{item: activeItem()}
	client := &mockAggClient{refreshErr: errors.New("refresh unavailable")}

	svc := newTestService(items, &mockStore{recon: newMockReconStore()}, client, keylock.NewMemoryLocker())

	result, err := svc.SyncItem(context.Background(), 7, "item-1")
	require.NoError(t, err)

	assert.False(t, result.RefreshRequested)
	assert.NotNil(t, items.completedCursor)
}

func TestSyncItem_UnknownItem(t *testing.T) {
	items := &mockItemRepo{item: activeItem()}
	svc := newTestService(items, &mockStore{recon: newMockReconStore()}, &mockAggClient{}, keylock.NewMemoryLocker())

	_, err := svc.SyncItem(context.Background(), 99, "item-1")
	assert.ErrorIs(t, err, item.ErrItemNotFound)
}

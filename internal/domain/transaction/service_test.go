package transaction

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finch/internal/domain/account"
)

// mockRepo implements Repository for testing.
type mockRepo struct {
	byID map[string]*Transaction

	deleted           []string
	tombstonedDeletes []*Transaction
}

func (m *mockRepo) Create(ctx context.Context, t *Transaction) (*Transaction, error) {
	return t, nil
}

func (m *mockRepo) GetByIDForUser(ctx context.Context, id string, userID int64) (*Transaction, error) {
	t, ok := m.byID[id]
	if !ok || t.UserID != userID {
		return nil, nil
	}
	return t, nil
}

func (m *mockRepo) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, error) {
	return nil, nil
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRepo) DeleteWithTombstone(ctx context.Context, t *Transaction) error {
	m.tombstonedDeletes = append(m.tombstonedDeletes, t)
	return nil
}

func (m *mockRepo) GetTombstone(ctx context.Context, userID int64, externalID string) (*Tombstone, error) {
	return nil, nil
}

func (m *mockRepo) ListUncategorized(ctx context.Context, userID int64, ids []string) ([]*Transaction, error) {
	return nil, nil
}

func (m *mockRepo) AssignCategory(ctx context.Context, userID int64, categoryID int64, ids []string) (int64, error) {
	return 0, nil
}

// mockAccountRepo implements account.Repository for testing.
type mockAccountRepo struct {
	accounts map[string]*account.Account
}

func (m *mockAccountRepo) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	return nil, nil
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id string) (*account.Account, error) {
	return m.accounts[id], nil
}

func (m *mockAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	return nil, nil
}

func (m *mockAccountRepo) ListByItemID(ctx context.Context, itemID string) ([]*account.Account, error) {
	return nil, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func strPtr(s string) *string { return &s }

func newTestService(repo *mockRepo, accounts *mockAccountRepo) *Service {
	return NewService(repo, accounts, testLogger())
}

func TestCreateManual(t *testing.T) {
	repo := &mockRepo{}
	accounts := &mockAccountRepo{accounts: map[string]*account.Account{
		"acct-1": {ID: "acct-1", UserID: 7},
	}}
	svc := newTestService(repo, accounts)

	created, err := svc.CreateManual(context.Background(), 7, CreateManualParams{
		AccountID:   "acct-1",
		Date:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "Farmers market",
		Amount:      decimal.RequireFromString("25.00"),
		Direction:   DirectionOutflow,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsManual())
	assert.Equal(t, int64(7), created.UserID)
}

func TestCreateManual_Validation(t *testing.T) {
	svc := newTestService(&mockRepo{}, &mockAccountRepo{})

	tests := []struct {
		name   string
		params CreateManualParams
		want   error
	}{
		{
			name: "negative amount",
			params: CreateManualParams{
				AccountID:   "acct-1",
				Date:        time.Now(),
				Description: "x",
				Amount:      decimal.RequireFromString("-1"),
				Direction:   DirectionOutflow,
			},
			want: ErrInvalidAmount,
		},
		{
			name: "bad direction",
			params: CreateManualParams{
				AccountID:   "acct-1",
				Date:        time.Now(),
				Description: "x",
				Amount:      decimal.RequireFromString("1"),
				Direction:   "SIDEWAYS",
			},
			want: ErrInvalidDirection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateManual(context.Background(), 7, tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateManual_ForeignAccount(t *testing.T) {
	accounts := &mockAccountRepo{accounts: map[string]*account.Account{
		"acct-1": {ID: "acct-1", UserID: 99},
	}}
	svc := newTestService(&mockRepo{}, accounts)

	_, err := svc.CreateManual(context.Background(), 7, CreateManualParams{
		AccountID:   "acct-1",
		Date:        time.Now(),
		Description: "x",
		Amount:      decimal.RequireFromString("1"),
		Direction:   DirectionInflow,
	})
	assert.ErrorIs(t, err, account.ErrForbidden)
}

func TestDelete_ManualLeavesNoTombstone(t *testing.T) {
	repo := &mockRepo{byID: map[string]*Transaction{
		"t1": {ID: "t1", UserID: 7, AccountID: "acct-1"},
	}}
	svc := newTestService(repo, &mockAccountRepo{})

	require.NoError(t, svc.Delete(context.Background(), 7, "t1"))

	assert.Equal(t, []string{"t1"}, repo.deleted)
	assert.Empty(t, repo.tombstonedDeletes)
}

func TestDelete_SyncedWritesTombstone(t *testing.T) {
	repo := &mockRepo{byID: map[string]*Transaction{
		"t1": {ID: "t1", UserID: 7, AccountID: "acct-1", ExternalID: strPtr("ext-1")},
	}}
	svc := newTestService(repo, &mockAccountRepo{})

	require.NoError(t, svc.Delete(context.Background(), 7, "t1"))

	assert.Empty(t, repo.deleted)
	require.Len(t, repo.tombstonedDeletes, 1)
	assert.Equal(t, "ext-1", *repo.tombstonedDeletes[0].ExternalID)
}

func TestDelete_NotFound(t *testing.T) {
	svc := newTestService(&mockRepo{}, &mockAccountRepo{})

	err := svc.Delete(context.Background(), 7, "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

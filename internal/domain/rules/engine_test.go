package rules

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finch/internal/domain/transaction"
)

// mockRuleRepo implements Repository for testing.
type mockRuleRepo struct {
	rules []*Rule
}

func (m *mockRuleRepo) Create(ctx context.Context, params CreateParams) (*Rule, error) {
	return nil, nil
}

func (m *mockRuleRepo) ListByUser(ctx context.Context, userID int64) ([]*Rule, error) {
	return m.rules, nil
}

func (m *mockRuleRepo) Delete(ctx context.Context, id, userID int64) error { return nil }

// mockTxRepo implements the slice of transaction.Repository the engine uses.
type mockTxRepo struct {
	uncategorized []*transaction.Transaction
	assigned      map[int64][]string
}

func (m *mockTxRepo) Create(ctx context.Context, t *transaction.Transaction) (*transaction.Transaction, error) {
	return t, nil
}
func (m *mockTxRepo) GetByIDForUser(ctx context.Context, id string, userID int64) (*transaction.Transaction, error) {
	return nil, nil
}
func (m *mockTxRepo) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	return nil, nil
}
func (m *mockTxRepo) Delete(ctx context.Context, id string) error { return nil }
func (m *mockTxRepo) DeleteWithTombstone(ctx context.Context, t *transaction.Transaction) error {
	return nil
}
func (m *mockTxRepo) GetTombstone(ctx context.Context, userID int64, externalID string) (*transaction.Tombstone, error) {
	return nil, nil
}

func (m *mockTxRepo) ListUncategorized(ctx context.Context, userID int64, ids []string) ([]*transaction.Transaction, error) {
	if ids == nil {
		return m.uncategorized, nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []*transaction.Transaction
	for _, t := range m.uncategorized {
		if _, ok := want[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTxRepo) AssignCategory(ctx context.Context, userID int64, categoryID int64, ids []string) (int64, error) {
	if m.assigned == nil {
		m.assigned = make(map[int64][]string)
	}
	m.assigned[categoryID] = append(m.assigned[categoryID], ids...)
	return int64(len(ids)), nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestBackfill_FirstMatchingRuleWins(t *testing.T) {
	repo := &mockRuleRepo{rules: []*Rule{
		{ID: 1, Pattern: "coffee", CategoryID: 10, Position: 0},
		{ID: 2, Pattern: "coffee shop", CategoryID: 20, Position: 1},
	}}
	txs := &mockTxRepo{uncategorized: []*transaction.Transaction{
		{ID: "t1", Description: "COFFEE SHOP DOWNTOWN"},
	}}

	engine := NewEngine(repo, txs, testLogger())

	result, err := engine.Backfill(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Evaluated)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, []string{"t1"}, txs.assigned[10])
	assert.Empty(t, txs.assigned[20])
}

func TestBackfill_CaseInsensitiveAndMerchantMatch(t *testing.T) {
	repo := &mockRuleRepo{rules: []*Rule{
		{ID: 1, Pattern: "starbucks", CategoryID: 10},
	}}
	txs := &mockTxRepo{uncategorized: []*transaction.Transaction{
		{ID: "t1", Description: "CARD PURCHASE 4421", MerchantName: "STARBUCKS #122"},
		{ID: "t2", Description: "grocery run"},
	}}

	engine := NewEngine(repo, txs, testLogger())

	result, err := engine.Backfill(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Evaluated)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, []string{"t1"}, txs.assigned[10])
}

func TestBackfill_InvalidStoredPatternSkipped(t *testing.T) {
	repo := &mockRuleRepo{rules: []*Rule{
		{ID: 1, Pattern: "([unclosed", CategoryID: 10},
		{ID: 2, Pattern: "rent", CategoryID: 20},
	}}
	txs := &mockTxRepo{uncategorized: []*transaction.Transaction{
		{ID: "t1", Description: "RENT MARCH"},
	}}

	engine := NewEngine(repo, txs, testLogger())

	result, err := engine.Backfill(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, []string{"t1"}, txs.assigned[20])
}

func TestCategorizeNew_EmptyInputIsNoop(t *testing.T) {
	engine := NewEngine(&mockRuleRepo{}, &mockTxRepo{}, testLogger())

	result, err := engine.CategorizeNew(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Evaluated)
}

func TestCategorizeNew_OnlyTouchesGivenIDs(t *testing.T) {
	repo := &mockRuleRepo{rules: []*Rule{{ID: 1, Pattern: "shop", CategoryID: 10}}}
	txs := &mockTxRepo{uncategorized: []*transaction.Transaction{
		{ID: "fresh", Description: "SHOP A"},
		{ID: "old", Description: "SHOP B"},
	}}

	engine := NewEngine(repo, txs, testLogger())

	result, err := engine.CategorizeNew(context.Background(), 7, []string{"fresh"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, []string{"fresh"}, txs.assigned[10])
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"finch/internal/domain/account"
	"finch/internal/domain/banksync"
	"finch/internal/domain/transaction"
)

// SyncStore applies reconciliation passes. Atomic opens one database
// transaction under a deadline and hands the engine a store bound to it, so
// a pass lands all-or-nothing.
type SyncStore struct {
	db *DB
}

func NewSyncStore(db *DB) *SyncStore {
	return &SyncStore{db: db}
}

func (s *SyncStore) Atomic(ctx context.Context, timeout time.Duration, fn func(banksync.ReconStore) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&reconTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync transaction: %w", err)
	}
	return nil
}

// reconTx implements banksync.ReconStore over one open transaction.
type reconTx struct {
	tx *sql.Tx
}

func (r *reconTx) AccountsForItem(ctx context.Context, itemID string) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE item_id = $1 ORDER BY created_at`

	rows, err := r.tx.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func (r *reconTx) TombstonedIDs(ctx context.Context, userID int64, externalIDs []string) (map[string]struct{}, error) {
	if len(externalIDs) == 0 {
		return map[string]struct{}{}, nil
	}

	query := `
		SELECT external_id
		FROM transaction_tombstones
		WHERE user_id = $1 AND external_id = ANY($2::text[])
	`

	rows, err := r.tx.QueryContext(ctx, query, userID, pq.Array(externalIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to look up tombstones: %w", err)
	}
	defer rows.Close()

	tombstoned := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone id: %w", err)
		}
		tombstoned[id] = struct{}{}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tombstones: %w", err)
	}
	return tombstoned, nil
}

func (r *reconTx) ManualCandidates(ctx context.Context, accountIDs []string, from, to time.Time) ([]*transaction.Transaction, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = ANY($1::text[])
		  AND external_id IS NULL
		  AND date BETWEEN $2 AND $3
		ORDER BY date, id
	`

	rows, err := r.tx.QueryContext(ctx, query, pq.Array(accountIDs), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge candidates: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *reconTx) MergeIntoManual(ctx context.Context, id string, params transaction.MergeParams) error {
	query := `
		UPDATE transactions
		SET external_id = $1, date = $2, description = $3, merchant_name = $4,
		    pending = $5, raw_payload = $6, updated_at = CURRENT_TIMESTAMP
		WHERE id = $7 AND external_id IS NULL
	`

	result, err := r.tx.ExecContext(
		ctx, query,
		params.ExternalID, params.Date, params.Description, params.MerchantName,
		params.Pending, params.RawPayload, id,
	)
	if err != nil {
		return fmt.Errorf("failed to merge into manual record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return transaction.ErrTransactionNotFound
	}
	return nil
}

func (r *reconTx) InsertSynced(ctx context.Context, params transaction.SyncedInsertParams) (string, bool, error) {
	query := `
		INSERT INTO transactions (id, user_id, account_id, external_id, date, description,
		                          amount, direction, pending, merchant_name, notes, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '', $11)
		ON CONFLICT (account_id, external_id) WHERE external_id IS NOT NULL DO NOTHING
		RETURNING id
	`

	var id string
	err := r.tx.QueryRowContext(
		ctx, query,
		uuid.NewString(), params.UserID, params.AccountID, params.ExternalID,
		params.Date, params.Description, params.Amount, params.Direction,
		params.Pending, params.MerchantName, params.RawPayload,
	).Scan(&id)
	if err == sql.ErrNoRows {
		// Conflict: the pair already exists, nothing inserted.
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to insert synced transaction: %w", err)
	}
	return id, true, nil
}

func (r *reconTx) UpdateByExternalID(ctx context.Context, userID int64, externalID string, params transaction.SyncedUpdateParams) (bool, error) {
	query := `
		UPDATE transactions
		SET date = $1, description = $2, amount = $3, direction = $4,
		    pending = $5, merchant_name = $6, raw_payload = $7,
		    updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $8 AND external_id = $9
	`

	result, err := r.tx.ExecContext(
		ctx, query,
		params.Date, params.Description, params.Amount, params.Direction,
		params.Pending, params.MerchantName, params.RawPayload,
		userID, externalID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update synced transaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

func (r *reconTx) DeleteByExternalIDs(ctx context.Context, userID int64, externalIDs []string) (int64, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}

	query := `DELETE FROM transactions WHERE user_id = $1 AND external_id = ANY($2::text[])`

	result, err := r.tx.ExecContext(ctx, query, userID, pq.Array(externalIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete removed transactions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

func (r *reconTx) UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal, syncedAt time.Time) error {
	query := `
		UPDATE accounts
		SET balance = $1, last_synced_at = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`

	if _, err := r.tx.ExecContext(ctx, query, balance, syncedAt, accountID); err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	return nil
}

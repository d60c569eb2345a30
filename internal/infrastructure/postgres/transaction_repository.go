package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"finch/internal/domain/transaction"
)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, user_id, account_id, external_id, date, description, amount,
       direction, pending, merchant_name, category_id, notes, raw_payload, created_at, updated_at`

func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) (*transaction.Transaction, error) {
	query := `
		INSERT INTO transactions (id, user_id, account_id, external_id, date, description,
		                          amount, direction, pending, merchant_name, category_id, notes, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + transactionColumns

	row := r.db.QueryRowContext(
		ctx, query,
		t.ID, t.UserID, t.AccountID, t.ExternalID, t.Date, t.Description,
		t.Amount, t.Direction, t.Pending, t.MerchantName, t.CategoryID, t.Notes, t.RawPayload,
	)
	created, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return created, nil
}

func (r *TransactionRepository) GetByIDForUser(ctx context.Context, id string, userID int64) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND user_id = $2`

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM transactions WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
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

// DeleteWithTombstone removes an aggregator-sourced record and records its
// external id so future sync passes never reintroduce it. Both writes land
// in one transaction.
func (r *TransactionRepository) DeleteWithTombstone(ctx context.Context, t *transaction.Transaction) error {
	if t.ExternalID == nil {
		return fmt.Errorf("transaction %s has no external id", t.ID)
	}

	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tombstoneQuery := `
		INSERT INTO transaction_tombstones (user_id, external_id, payload, deleted_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, external_id) DO UPDATE SET
		    payload = EXCLUDED.payload,
		    deleted_at = CURRENT_TIMESTAMP
	`
	if _, err := tx.ExecContext(ctx, tombstoneQuery, t.UserID, *t.ExternalID, t.RawPayload); err != nil {
		return fmt.Errorf("failed to write tombstone: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, t.ID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return transaction.ErrTransactionNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tombstoned delete: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetTombstone(ctx context.Context, userID int64, externalID string) (*transaction.Tombstone, error) {
	query := `
		SELECT user_id, external_id, payload, deleted_at
		FROM transaction_tombstones
		WHERE user_id = $1 AND external_id = $2
	`

	var ts transaction.Tombstone
	err := r.db.QueryRowContext(ctx, query, userID, externalID).Scan(
		&ts.UserID, &ts.ExternalID, &ts.Payload, &ts.DeletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tombstone: %w", err)
	}
	return &ts, nil
}

func (r *TransactionRepository) ListUncategorized(ctx context.Context, userID int64, ids []string) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND category_id IS NULL
		  AND ($2::text[] IS NULL OR id = ANY($2::text[]))
		ORDER BY date, id
	`

	rows, err := r.db.QueryContext(ctx, query, userID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list uncategorized transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *TransactionRepository) AssignCategory(ctx context.Context, userID int64, categoryID int64, ids []string) (int64, error) {
	query := `
		UPDATE transactions
		SET category_id = $1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $2 AND category_id IS NULL AND id = ANY($3::text[])
	`

	result, err := r.db.ExecContext(ctx, query, categoryID, userID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to assign category: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

func collectTransactions(rows *sql.Rows) ([]*transaction.Transaction, error) {
	var transactions []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

func scanTransaction(s scanner) (*transaction.Transaction, error) {
	var t transaction.Transaction
	var externalID sql.NullString
	var categoryID sql.NullInt64

	err := s.Scan(
		&t.ID, &t.UserID, &t.AccountID, &externalID, &t.Date, &t.Description,
		&t.Amount, &t.Direction, &t.Pending, &t.MerchantName,
		&categoryID, &t.Notes, &t.RawPayload, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if externalID.Valid {
		t.ExternalID = &externalID.String
	}
	if categoryID.Valid {
		t.CategoryID = &categoryID.Int64
	}
	return &t, nil
}

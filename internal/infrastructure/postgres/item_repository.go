package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finch/internal/domain/item"
)

type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, user_id, external_id, access_token, institution_id, institution_name,
       cursor, status, last_error, last_synced_at, created_at, updated_at`

func (r *ItemRepository) Create(ctx context.Context, params item.CreateParams) (*item.Item, error) {
	query := `
		INSERT INTO items (id, user_id, external_id, access_token, institution_id, institution_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + itemColumns

	row := r.db.QueryRowContext(
		ctx, query,
		uuid.NewString(), params.UserID, params.ExternalID, params.AccessToken,
		params.InstitutionID, params.InstitutionName, item.StatusActive,
	)
	it, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return it, nil
}

func (r *ItemRepository) GetByIDForUser(ctx context.Context, id string, userID int64) (*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1 AND user_id = $2`

	it, err := scanItem(r.db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return it, nil
}

func (r *ItemRepository) GetByExternalID(ctx context.Context, externalID string) (*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE external_id = $1`

	it, err := scanItem(r.db.QueryRowContext(ctx, query, externalID))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item by external id: %w", err)
	}
	return it, nil
}

func (r *ItemRepository) ListActive(ctx context.Context) ([]*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE status = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, item.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active items: %w", err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

func (r *ItemRepository) SetStatus(ctx context.Context, id string, status string, message string) error {
	query := `
		UPDATE items
		SET status = $1, last_error = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, status, message, id)
	if err != nil {
		return fmt.Errorf("failed to set item status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return item.ErrItemNotFound
	}
	return nil
}

func (r *ItemRepository) CompleteSync(ctx context.Context, id string, cursor string, syncedAt time.Time) error {
	query := `
		UPDATE items
		SET cursor = $1, status = $2, last_error = NULL, last_synced_at = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, cursor, item.StatusActive, syncedAt, id)
	if err != nil {
		return fmt.Errorf("failed to complete sync: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return item.ErrItemNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*item.Item, error) {
	var it item.Item
	var cursor, lastError sql.NullString
	var lastSyncedAt sql.NullTime

	err := s.Scan(
		&it.ID, &it.UserID, &it.ExternalID, &it.AccessToken,
		&it.InstitutionID, &it.InstitutionName,
		&cursor, &it.Status, &lastError, &lastSyncedAt,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cursor.Valid {
		it.Cursor = &cursor.String
	}
	if lastError.Valid {
		it.LastError = &lastError.String
	}
	if lastSyncedAt.Valid {
		it.LastSyncedAt = &lastSyncedAt.Time
	}
	return &it, nil
}

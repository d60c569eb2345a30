package postgres

import (
	"context"
	"fmt"

	"finch/internal/domain/rules"
)

type RuleRepository struct {
	db *DB
}

func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(ctx context.Context, params rules.CreateParams) (*rules.Rule, error) {
	query := `
		INSERT INTO categorization_rules (user_id, pattern, category_id, position)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, pattern, category_id, position, created_at, updated_at
	`

	var rule rules.Rule
	err := r.db.QueryRowContext(
		ctx, query,
		params.UserID, params.Pattern, params.CategoryID, params.Position,
	).Scan(
		&rule.ID, &rule.UserID, &rule.Pattern, &rule.CategoryID, &rule.Position,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return &rule, nil
}

func (r *RuleRepository) ListByUser(ctx context.Context, userID int64) ([]*rules.Rule, error) {
	query := `
		SELECT id, user_id, pattern, category_id, position, created_at, updated_at
		FROM categorization_rules
		WHERE user_id = $1
		ORDER BY position, id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []*rules.Rule
	for rows.Next() {
		var rule rules.Rule
		err := rows.Scan(
			&rule.ID, &rule.UserID, &rule.Pattern, &rule.CategoryID, &rule.Position,
			&rule.CreatedAt, &rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, &rule)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return out, nil
}

func (r *RuleRepository) Delete(ctx context.Context, id, userID int64) error {
	query := `DELETE FROM categorization_rules WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return rules.ErrRuleNotFound
	}
	return nil
}

package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"finch/internal/domain/account"
)

// Service handles the ledger surface exposed to the CRUD layer: manual
// entries, deletion with tombstone discipline, and read-only listing.
type Service struct {
	transactions Repository
	accounts     account.Repository
	log          *logrus.Logger
}

// NewService creates a new ledger service.
func NewService(transactions Repository, accounts account.Repository, log *logrus.Logger) *Service {
	return &Service{
		transactions: transactions,
		accounts:     accounts,
		log:          log,
	}
}

// CreateManual creates a hand-entered transaction on an account owned by
// the user. Manual records have no external id, so later sync passes may
// merge aggregator records into them.
func (s *Service) CreateManual(ctx context.Context, userID int64, params CreateManualParams) (*Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	acct, err := s.accounts.GetByID(ctx, params.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if acct == nil {
		return nil, account.ErrAccountNotFound
	}
	if acct.UserID != userID {
		return nil, account.ErrForbidden
	}

	now := time.Now().UTC()
	created, err := s.transactions.Create(ctx, &Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		AccountID:    params.AccountID,
		Date:         params.Date,
		Description:  params.Description,
		Amount:       params.Amount,
		Direction:    params.Direction,
		MerchantName: params.MerchantName,
		CategoryID:   params.CategoryID,
		Notes:        params.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return created, nil
}

// Delete removes a transaction owned by the user. When the record carries
// an external id a tombstone is written atomically with the delete, so a
// later sync pass can never reintroduce it. Manual records leave no
// tombstone.
func (s *Service) Delete(ctx context.Context, userID int64, id string) error {
	t, err := s.transactions.GetByIDForUser(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}
	if t == nil {
		return ErrTransactionNotFound
	}

	if t.IsManual() {
		if err := s.transactions.Delete(ctx, t.ID); err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}
		return nil
	}

	if err := s.transactions.DeleteWithTombstone(ctx, t); err != nil {
		return fmt.Errorf("failed to delete transaction with tombstone: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"external_id": *t.ExternalID,
	}).Info("tombstoned deleted synced transaction")
	return nil
}

// List returns transactions for an account owned by the user, newest first.
func (s *Service) List(ctx context.Context, userID int64, accountID string, limit, offset int) ([]*Transaction, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if acct == nil {
		return nil, account.ErrAccountNotFound
	}
	if acct.UserID != userID {
		return nil, account.ErrForbidden
	}

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.transactions.ListByAccountID(ctx, accountID, limit, offset)
}

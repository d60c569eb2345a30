package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Allowed account types. CREDIT balances are stored negative (debt as
// negative available balance), the other types verbatim.
const (
	TypeChecking = "CHECKING"
	TypeSavings  = "SAVINGS"
	TypeCredit   = "CREDIT"
)

// Domain errors
var (
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrAccountNotFound    = errors.New("account not found")
	ErrForbidden          = errors.New("access forbidden")
)

// Account represents a financial account. Accounts created by the sync
// engine carry the aggregator's account id in ExternalID; manually created
// accounts leave it nil and have no parent item.
type Account struct {
	ID           string          `json:"id"`
	UserID       int64           `json:"userId"`
	ItemID       *string         `json:"itemId,omitempty"`
	ExternalID   *string         `json:"externalId,omitempty"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Balance      decimal.Decimal `json:"balance"`
	LastSyncedAt *time.Time      `json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// CreateParams contains parameters for creating a new account.
type CreateParams struct {
	UserID     int64
	ItemID     *string
	ExternalID *string
	Name       string
	Type       string
	Balance    decimal.Decimal
}

func (p CreateParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.Name == "" {
		return errors.New("account name is required")
	}
	if !IsValidType(p.Type) {
		return ErrInvalidAccountType
	}
	return nil
}

// IsValidType checks if the provided account type is valid.
func IsValidType(t string) bool {
	switch t {
	case TypeChecking, TypeSavings, TypeCredit:
		return true
	}
	return false
}

// NormalizeBalance converts an aggregator-reported balance into the stored
// representation: CREDIT debt flips sign, everything else is kept verbatim.
func NormalizeBalance(accountType string, reported decimal.Decimal) decimal.Decimal {
	if accountType == TypeCredit {
		return reported.Neg()
	}
	return reported
}

package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction directions. Amounts are stored as a non-negative magnitude
// plus a direction, never as a signed value.
const (
	DirectionInflow  = "INFLOW"
	DirectionOutflow = "OUTFLOW"
)

// Domain errors
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrForbidden           = errors.New("access forbidden")
	ErrInvalidDirection    = errors.New("direction must be INFLOW or OUTFLOW")
	ErrInvalidAmount       = errors.New("amount must not be negative")
)

// Transaction represents one ledger record. Records pulled from the
// aggregator carry the provider's transaction id in ExternalID; manual
// entries leave it nil. At most one record may exist per
// (AccountID, non-nil ExternalID).
type Transaction struct {
	ID           string          `json:"id"`
	UserID       int64           `json:"userId"`
	AccountID    string          `json:"accountId"`
	ExternalID   *string         `json:"externalId,omitempty"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"` // non-negative magnitude
	Direction    string          `json:"direction"`
	Pending      bool            `json:"pending"`
	MerchantName string          `json:"merchantName"`
	CategoryID   *int64          `json:"categoryId,omitempty"`
	Notes        string          `json:"notes"`
	RawPayload   []byte          `json:"-"` // provider payload, stored and replayed only
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// IsManual reports whether the record was entered by hand rather than
// produced by a sync pass.
func (t *Transaction) IsManual() bool {
	return t.ExternalID == nil
}

// Tombstone records a user-initiated deletion of an aggregator-sourced
// transaction. While it exists, that external id is never reintroduced by
// a sync pass; tombstones do not expire.
type Tombstone struct {
	UserID     int64     `json:"userId"`
	ExternalID string    `json:"externalId"`
	Payload    []byte    `json:"-"` // snapshot of the deleted record
	DeletedAt  time.Time `json:"deletedAt"`
}

// CreateManualParams contains parameters for a manual ledger entry.
type CreateManualParams struct {
	AccountID    string
	Date         time.Time
	Description  string
	Amount       decimal.Decimal
	Direction    string
	MerchantName string
	CategoryID   *int64
	Notes        string
}

func (p CreateManualParams) Validate() error {
	if p.AccountID == "" {
		return errors.New("account ID is required")
	}
	if p.Date.IsZero() {
		return errors.New("transaction date is required")
	}
	if p.Description == "" {
		return errors.New("description is required")
	}
	if p.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if p.Direction != DirectionInflow && p.Direction != DirectionOutflow {
		return ErrInvalidDirection
	}
	return nil
}

// MergeParams carries the provider-side fields adopted when an incoming
// synced record merges into an existing manual one. Notes, category and
// user attachments are deliberately absent: merging never touches them.
type MergeParams struct {
	ExternalID   string
	Date         time.Time
	Description  string
	MerchantName string
	Pending      bool
	RawPayload   []byte
}

// SyncedInsertParams contains parameters for inserting a record produced by
// a sync pass.
type SyncedInsertParams struct {
	UserID       int64
	AccountID    string
	ExternalID   string
	Date         time.Time
	Description  string
	Amount       decimal.Decimal
	Direction    string
	Pending      bool
	MerchantName string
	RawPayload   []byte
}

// SyncedUpdateParams contains the fields refreshed when the aggregator
// reports a record as modified.
type SyncedUpdateParams struct {
	Date         time.Time
	Description  string
	Amount       decimal.Decimal
	Direction    string
	Pending      bool
	MerchantName string
	RawPayload   []byte
}

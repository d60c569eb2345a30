package item

import (
	"errors"
	"time"
)

// Item statuses. An item starts ACTIVE and is degraded by sync error
// handling; it only returns to ACTIVE after a fully applied pass.
const (
	StatusActive        = "ACTIVE"
	StatusLoginRequired = "LOGIN_REQUIRED"
	StatusError         = "ERROR"
)

var (
	ErrItemNotFound = errors.New("linked item not found")
)

// Item represents one bank/institution connection through the aggregator.
// It holds the access credential for that connection and owns the linked
// accounts created under it.
type Item struct {
	ID              string     `json:"id"`
	UserID          int64      `json:"userId"`
	ExternalID      string     `json:"externalId"`
	AccessToken     string     `json:"-"` // opaque aggregator credential, never serialized
	InstitutionID   string     `json:"institutionId"`
	InstitutionName string     `json:"institutionName"`
	Cursor          *string    `json:"-"` // nil until the first completed sync pass
	Status          string     `json:"status"`
	LastError       *string    `json:"lastError,omitempty"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// CreateParams contains parameters for registering a new item after an
// institution link completes.
type CreateParams struct {
	UserID          int64
	ExternalID      string
	AccessToken     string
	InstitutionID   string
	InstitutionName string
}

func (p CreateParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.ExternalID == "" {
		return errors.New("external item ID is required")
	}
	if p.AccessToken == "" {
		return errors.New("access token is required")
	}
	return nil
}

// IsValidStatus checks if the provided status is one of the known item states.
func IsValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusLoginRequired, StatusError:
		return true
	}
	return false
}

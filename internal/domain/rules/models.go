package rules

import (
	"errors"
	"regexp"
	"time"
)

var (
	ErrRuleNotFound   = errors.New("categorization rule not found")
	ErrInvalidPattern = errors.New("pattern is not a valid regular expression")
)

// Rule maps a description/merchant pattern to a category. Rules evaluate
// in stored order (Position ascending, ID as a stable tie-break) and the
// first match wins.
type Rule struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	Pattern    string    `json:"pattern"`
	CategoryID int64     `json:"categoryId"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CreateParams contains parameters for creating a rule.
type CreateParams struct {
	UserID     int64
	Pattern    string
	CategoryID int64
	Position   int
}

func (p CreateParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.Pattern == "" {
		return errors.New("pattern is required")
	}
	if _, err := regexp.Compile("(?i)" + p.Pattern); err != nil {
		return ErrInvalidPattern
	}
	if p.CategoryID <= 0 {
		return errors.New("valid category ID is required")
	}
	return nil
}

package rules

import (
	"context"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"

	"finch/internal/domain/transaction"
)

// Result contains the results of a categorization pass.
type Result struct {
	Evaluated int // transactions inspected
	Matched   int // transactions that matched some rule
	Updated   int // rows actually updated in storage
}

// Engine applies a user's ordered pattern rules to uncategorized
// transactions. Patterns test against description and merchant name,
// case-insensitively; the first matching rule wins and a transaction
// receives at most one category per pass.
type Engine struct {
	rules        Repository
	transactions transaction.Repository
	log          *logrus.Logger
}

// NewEngine creates a new categorization engine.
func NewEngine(rules Repository, transactions transaction.Repository, log *logrus.Logger) *Engine {
	return &Engine{
		rules:        rules,
		transactions: transactions,
		log:          log,
	}
}

type compiledRule struct {
	re         *regexp.Regexp
	categoryID int64
}

// CategorizeNew tags freshly inserted, still-uncategorized transactions.
// Called by the sync orchestrator with the ids produced by one pass.
func (e *Engine) CategorizeNew(ctx context.Context, userID int64, ids []string) (*Result, error) {
	if len(ids) == 0 {
		return &Result{}, nil
	}
	return e.run(ctx, userID, ids)
}

// Backfill retags the user's entire uncategorized set, used when a rule is
// newly created.
func (e *Engine) Backfill(ctx context.Context, userID int64) (*Result, error) {
	return e.run(ctx, userID, nil)
}

func (e *Engine) run(ctx context.Context, userID int64, ids []string) (*Result, error) {
	result := &Result{}

	stored, err := e.rules.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	if len(stored) == 0 {
		return result, nil
	}

	compiled := make([]compiledRule, 0, len(stored))
	for _, r := range stored {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			// Validated on create, but stored data wins over assumptions.
			e.log.WithFields(logrus.Fields{
				"rule_id": r.ID,
				"user_id": userID,
			}).Warn("skipping rule with invalid pattern")
			continue
		}
		compiled = append(compiled, compiledRule{re: re, categoryID: r.CategoryID})
	}
	if len(compiled) == 0 {
		return result, nil
	}

	txs, err := e.transactions.ListUncategorized(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load uncategorized transactions: %w", err)
	}
	result.Evaluated = len(txs)

	byCategory := make(map[int64][]string)
	for _, t := range txs {
		for _, cr := range compiled {
			if cr.re.MatchString(t.Description) || cr.re.MatchString(t.MerchantName) {
				byCategory[cr.categoryID] = append(byCategory[cr.categoryID], t.ID)
				result.Matched++
				break
			}
		}
	}

	for categoryID, txIDs := range byCategory {
		n, err := e.transactions.AssignCategory(ctx, userID, categoryID, txIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to assign category %d: %w", categoryID, err)
		}
		result.Updated += int(n)
	}

	return result, nil
}

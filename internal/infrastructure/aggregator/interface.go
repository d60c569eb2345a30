package aggregator

import "context"

// Client defines the aggregator operations the sync engine consumes.
// This interface allows mocking the aggregator in tests.
type Client interface {
	// RequestRefresh asks the aggregator to pull fresh data from the
	// institution. Fire-and-forget: the caller treats failure as non-fatal.
	RequestRefresh(ctx context.Context, accessToken string) error
	// FetchDeltas returns one page of added/modified/removed records since
	// the cursor. An empty cursor means a full initial pull.
	FetchDeltas(ctx context.Context, accessToken, cursor string) (*DeltaPage, error)
	// FetchBalances returns current balances for every account under the
	// item identified by the access token.
	FetchBalances(ctx context.Context, accessToken string) ([]AccountBalance, error)
}

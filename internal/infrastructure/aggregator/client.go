package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"finch/internal/domain/transaction"
)

const (
	defaultTimeout = 60 * time.Second

	refreshPath  = "/items/refresh"
	deltasPath   = "/transactions/deltas"
	balancesPath = "/accounts/balances"
	jwksPath     = "/webhooks/keys"
)

// Aggregator error codes the sync engine reacts to.
const (
	ErrorCodeLoginRequired = "ITEM_LOGIN_REQUIRED"
)

// APIError represents a non-2xx response from the aggregator.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error_code"`
	Message    string `json:"error_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator error %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// HTTPClient handles communication with the bank-data aggregation service.
type HTTPClient struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
}

// Ensure HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new aggregator API client.
func NewHTTPClient(baseURL, clientID, clientSecret string) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// JWKSURL returns the key-distribution endpoint used to verify webhook
// signatures.
func (c *HTTPClient) JWKSURL() string {
	return c.baseURL + jwksPath
}

// DeltaPage is one page of the incremental transaction feed.
type DeltaPage struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

// Transaction represents a transaction record from the aggregator feed.
type Transaction struct {
	ID           string  `json:"id"`
	AccountID    string  `json:"account_id"` // aggregator-side account id
	AmountString string  `json:"amount"`     // signed decimal string; positive = money out
	DateString   string  `json:"date"`
	Description  string  `json:"description"`
	MerchantName string  `json:"merchant_name"`
	Pending      bool    `json:"pending"`
	Category     *string `json:"category,omitempty"`
}

// AmountParts splits the signed provider amount into the stored
// representation: a non-negative magnitude plus a direction. The provider
// reports money leaving the account as positive.
func (t *Transaction) AmountParts() (decimal.Decimal, string, error) {
	if t.AmountString == "" {
		return decimal.Zero, "", fmt.Errorf("transaction %s has no amount", t.ID)
	}
	amount, err := decimal.NewFromString(t.AmountString)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to parse amount '%s': %w", t.AmountString, err)
	}
	if amount.IsNegative() {
		return amount.Neg(), transaction.DirectionInflow, nil
	}
	return amount, transaction.DirectionOutflow, nil
}

// GetDate parses the transaction date. The feed normally sends plain dates
// but some institutions include a time component.
func (t *Transaction) GetDate() (time.Time, error) {
	if t.DateString == "" {
		return time.Time{}, fmt.Errorf("transaction %s has no date", t.ID)
	}
	parsed, err := time.Parse("2006-01-02", t.DateString)
	if err != nil {
		parsed, err = time.Parse("2006-01-02 15:04:05", t.DateString)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse date '%s': %w", t.DateString, err)
		}
	}
	return parsed, nil
}

// Payload returns the record serialized for storage as the raw provider
// payload. It is stored and replayed, never queried structurally.
func (t *Transaction) Payload() []byte {
	b, err := json.Marshal(t)
	if err != nil {
		return nil
	}
	return b
}

// RemovedTransaction identifies a record the aggregator has deleted.
type RemovedTransaction struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
}

// AccountBalance is a current balance as reported by the aggregator.
type AccountBalance struct {
	AccountID     string `json:"account_id"` // aggregator-side account id
	CurrentString string `json:"current"`
}

// GetCurrent returns the reported balance as a decimal.
func (b *AccountBalance) GetCurrent() (decimal.Decimal, error) {
	if b.CurrentString == "" {
		return decimal.Zero, fmt.Errorf("account %s has no balance", b.AccountID)
	}
	current, err := decimal.NewFromString(b.CurrentString)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance '%s': %w", b.CurrentString, err)
	}
	return current, nil
}

type refreshRequest struct {
	AccessToken string `json:"access_token"`
}

type deltasRequest struct {
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
}

type balancesRequest struct {
	AccessToken string `json:"access_token"`
}

type balancesResponse struct {
	Accounts []AccountBalance `json:"accounts"`
}

// RequestRefresh asks the aggregator to fetch fresh institution data.
func (c *HTTPClient) RequestRefresh(ctx context.Context, accessToken string) error {
	return c.post(ctx, refreshPath, refreshRequest{AccessToken: accessToken}, nil)
}

// FetchDeltas returns one page of the delta feed starting at cursor.
func (c *HTTPClient) FetchDeltas(ctx context.Context, accessToken, cursor string) (*DeltaPage, error) {
	var page DeltaPage
	if err := c.post(ctx, deltasPath, deltasRequest{AccessToken: accessToken, Cursor: cursor}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchBalances returns current balances for the item's accounts.
func (c *HTTPClient) FetchBalances(ctx context.Context, accessToken string) ([]AccountBalance, error) {
	var resp balancesResponse
	if err := c.post(ctx, balancesPath, balancesRequest{AccessToken: accessToken}, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Client-Secret", c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("aggregator request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "PROVIDER_ERROR"
			apiErr.Message = string(data)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

package openfinance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL   = "https://api.pluggy.ai"
	defaultTimeout   = 30 * time.Second
	apiKeyLifetime   = 110 * time.Minute // keys are valid for 2h
	transactionsPage = 500
	authPath         = "/auth"
	itemsPath        = "/items/"
	accountsPath     = "/accounts"
	transactionsPath = "/transactions"
)

// Config holds the credentials and endpoint of the aggregator API.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client handles communication with the Pluggy API
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string

	mu        sync.Mutex
	apiKey    string
	expiresAt time.Time
	now       func() time.Time
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new Pluggy API client
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:      baseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		now:          time.Now,
	}
}

// ItemError is the last execution error reported for an item.
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Item represents one linked bank login at the aggregator
type Item struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	ExecutionStatus string     `json:"executionStatus"`
	Error           *ItemError `json:"error,omitempty"`
	LastUpdatedAt   *time.Time `json:"lastUpdatedAt,omitempty"`
	Connector       *Connector `json:"connector,omitempty"`
}

// Connector identifies the institution behind an item.
type Connector struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Account represents an account from the Pluggy API
type Account struct {
	ID            string          `json:"id"`
	ItemID        string          `json:"itemId"`
	Name          string          `json:"name"`
	MarketingName string          `json:"marketingName"`
	Number        string          `json:"number"`
	Balance       decimal.Decimal `json:"balance"`
	CurrencyCode  string          `json:"currencyCode"`
	Type          string          `json:"type"`
	Subtype       string          `json:"subtype"`
}

// DisplayName prefers the marketing name when the bank provides one.
func (a Account) DisplayName() string {
	if a.MarketingName != "" {
		return a.MarketingName
	}
	return a.Name
}

// Transaction represents a transaction from the Pluggy API
type Transaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
	Date         time.Time       `json:"date"`
	Type         string          `json:"type"`   // DEBIT or CREDIT
	Status       string          `json:"status"` // PENDING or POSTED
	Category     *string         `json:"category"`
}

type pageResponse[T any] struct {
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
	Page       int `json:"page"`
	Results    []T `json:"results"`
}

// errorResponse represents an error response from the API
type errorResponse struct {
	Message         string `json:"message"`
	CodeDescription string `json:"codeDescription"`
}

// FetchItem returns the current state of an item.
func (c *Client) FetchItem(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	if err := c.do(ctx, "fetch item", http.MethodGet, itemsPath+url.PathEscape(itemID), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// RequestRefresh asks the aggregator to re-collect data for an item.
func (c *Client) RequestRefresh(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	if err := c.do(ctx, "refresh item", http.MethodPatch, itemsPath+url.PathEscape(itemID), struct{}{}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// FetchAccounts returns every account of an item.
func (c *Client) FetchAccounts(ctx context.Context, itemID string) ([]Account, error) {
	q := url.Values{}
	q.Set("itemId", itemID)

	var resp pageResponse[Account]
	if err := c.do(ctx, "fetch accounts", http.MethodGet, accountsPath+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// FetchTransactions returns the transactions of an account dated on or after
// from, following pagination until the last page.
func (c *Client) FetchTransactions(ctx context.Context, accountID string, from time.Time) ([]Transaction, error) {
	var all []Transaction
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("accountId", accountID)
		q.Set("from", from.Format("2006-01-02"))
		q.Set("pageSize", strconv.Itoa(transactionsPage))
		q.Set("page", strconv.Itoa(page))

		var resp pageResponse[Transaction]
		if err := c.do(ctx, "fetch transactions", http.MethodGet, transactionsPath+"?"+q.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Results...)

		if page >= resp.TotalPages || len(resp.Results) == 0 {
			return all, nil
		}
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	apiKey, err := c.getAPIKey(ctx)
	if err != nil {
		return err
	}

	status, respBody, err := c.send(ctx, method, path, apiKey, body)
	if err != nil {
		return &ProviderError{Kind: KindUnknown, Op: op, Err: err}
	}

	if status == http.StatusUnauthorized {
		// Key may have been revoked early; re-authenticate once.
		c.invalidateAPIKey()
		if apiKey, err = c.getAPIKey(ctx); err != nil {
			return err
		}
		status, respBody, err = c.send(ctx, method, path, apiKey, body)
		if err != nil {
			return &ProviderError{Kind: KindUnknown, Op: op, Err: err}
		}
	}

	if status < 200 || status >= 300 {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil || errResp.Message == "" {
			return newProviderError(op, status, "", string(respBody), nil)
		}
		return newProviderError(op, status, errResp.CodeDescription, errResp.Message, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &ProviderError{Kind: KindUnknown, Op: op, StatusCode: status, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, apiKey string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-KEY", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) getAPIKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.apiKey != "" && c.now().Before(c.expiresAt) {
		return c.apiKey, nil
	}

	payload := map[string]string{"clientId": c.clientID, "clientSecret": c.clientSecret}
	status, body, err := c.send(ctx, http.MethodPost, authPath, "", payload)
	if err != nil {
		return "", &ProviderError{Kind: KindUnknown, Op: "authenticate", Err: err}
	}
	if status < 200 || status >= 300 {
		// Our own credentials were rejected; never a user login problem.
		return "", &ProviderError{Kind: KindUnknown, Op: "authenticate", StatusCode: status, Message: string(body)}
	}

	var authResp struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(body, &authResp); err != nil || authResp.APIKey == "" {
		return "", &ProviderError{Kind: KindUnknown, Op: "authenticate", StatusCode: status, Message: "missing apiKey in auth response"}
	}

	c.apiKey = authResp.APIKey
	c.expiresAt = c.now().Add(apiKeyLifetime)
	return c.apiKey, nil
}

func (c *Client) invalidateAPIKey() {
	c.mu.Lock()
	c.apiKey = ""
	c.mu.Unlock()
}

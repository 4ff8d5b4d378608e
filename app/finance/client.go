// Package finance is the HTTP client for the backend personal-finance API.
// Handlers call it to fetch and mutate accounts, categories, transactions,
// and stats; natural-language transaction parsing also lives behind it.
package finance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/finbot/core/logger"
	"github.com/m3rciful/finbot/core/telegram/netutil"
)

// Config holds finance API connection settings.
type Config struct {
	BaseURL string `yaml:"base_url" envconfig:"FINANCE_BASE_URL"`
	Token   string `yaml:"token" envconfig:"FINANCE_API_TOKEN"`
	// TimeoutSeconds bounds a single API call; 0 -> 10s default.
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"FINANCE_TIMEOUT_SECONDS"`
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("finance api: %d %s", e.Status, e.Message)
}

// Client talks to the finance backend over HTTP.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient validates the configuration and builds a client with the shared
// retrying transport.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("finance: invalid base url %q", cfg.BaseURL)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:  base,
		token: cfg.Token,
		http: &http.Client{
			Timeout: timeout,
			Transport: &netutil.RetryTransport{
				MaxRetries: 2,
				Backoff:    time.Second,
			},
		},
	}, nil
}

// GetUserByTelegramID resolves a Telegram user ID to a backend user.
func (c *Client) GetUserByTelegramID(ctx context.Context, tgID int64) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/users/by-telegram/%d", tgID), nil, nil, &u)
	return u, err
}

// CreateUser registers a new backend user for a Telegram ID.
func (c *Client) CreateUser(ctx context.Context, tgID int64, language string) (User, error) {
	var u User
	body := map[string]any{"telegram_id": tgID, "language": language}
	err := c.do(ctx, http.MethodPost, "/v1/users", nil, body, &u)
	return u, err
}

// UpdateUser patches mutable user fields. Nil pointers are left untouched.
func (c *Client) UpdateUser(ctx context.Context, tgID int64, language, currency *string, onboarded *bool) (User, error) {
	body := map[string]any{}
	if language != nil {
		body["language"] = *language
	}
	if currency != nil {
		body["currency"] = *currency
	}
	if onboarded != nil {
		body["onboarded"] = *onboarded
	}
	var u User
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/v1/users/by-telegram/%d", tgID), nil, body, &u)
	return u, err
}

// Accounts lists the user's accounts.
func (c *Client) Accounts(ctx context.Context, tgID int64) ([]Account, error) {
	var out []Account
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/users/by-telegram/%d/accounts", tgID), nil, nil, &out)
	return out, err
}

// CreateAccount creates an account with a starting balance.
func (c *Client) CreateAccount(ctx context.Context, tgID int64, name, currency string, balance float64) (Account, error) {
	var out Account
	body := map[string]any{"name": name, "currency": currency, "balance": balance}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/users/by-telegram/%d/accounts", tgID), nil, body, &out)
	return out, err
}

// Categories lists the user's categories.
func (c *Client) Categories(ctx context.Context, tgID int64) ([]Category, error) {
	var out []Category
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/users/by-telegram/%d/categories", tgID), nil, nil, &out)
	return out, err
}

// ParseTransaction asks the backend to parse free-form text into a draft
// transaction. The draft is not persisted until CreateTransaction.
func (c *Client) ParseTransaction(ctx context.Context, tgID int64, text string) (Transaction, error) {
	var out Transaction
	body := map[string]any{"text": text}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/users/by-telegram/%d/transactions/parse", tgID), nil, body, &out)
	return out, err
}

// Transcribe converts a voice note (by Telegram file reference) into text.
func (c *Client) Transcribe(ctx context.Context, tgID int64, fileID string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	body := map[string]any{"file_id": fileID}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/users/by-telegram/%d/transcribe", tgID), nil, body, &out)
	return out.Text, err
}

// CreateTransaction persists a confirmed draft.
func (c *Client) CreateTransaction(ctx context.Context, tgID int64, draft Transaction) (Transaction, error) {
	var out Transaction
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/users/by-telegram/%d/transactions", tgID), nil, draft, &out)
	return out, err
}

// DeleteTransaction removes a persisted transaction.
func (c *Client) DeleteTransaction(ctx context.Context, tgID int64, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/users/by-telegram/%d/transactions/%s", tgID, id), nil, nil, nil)
}

// Transactions returns one page of history.
func (c *Client) Transactions(ctx context.Context, tgID int64, q TransactionsQuery) (TransactionPage, error) {
	query := url.Values{}
	if q.AccountID != "" {
		query.Set("account_id", q.AccountID)
	}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(q.PerPage))
	}
	var out TransactionPage
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/users/by-telegram/%d/transactions", tgID), query, nil, &out)
	return out, err
}

// Stats returns a spending summary for the selected period.
func (c *Client) Stats(ctx context.Context, tgID int64, q StatsQuery) (Stats, error) {
	query := url.Values{}
	if q.AccountID != "" {
		query.Set("account_id", q.AccountID)
	}
	if q.Period != "" {
		query.Set("period", q.Period)
	}
	if q.Anchor != "" {
		query.Set("anchor", q.Anchor)
	}
	var out Stats
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/users/by-telegram/%d/stats", tgID), query, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("finance: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("finance: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error(ctx, "finance", "api.call",
			slog.String("method", method),
			slog.String("path", path),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("finance: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	logger.Debug(ctx, "finance", "api.call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", logger.Took(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("finance: decode response: %w", err)
	}
	return nil
}

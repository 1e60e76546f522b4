// Package aggregator pulls card transactions from a bank-aggregation
// sandbox (Plaid-compatible /transactions/get).
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/models"
)

// ExternalIDPrefix namespaces aggregator transaction ids in storage.
const ExternalIDPrefix = "aggregator:"

// ErrNotConfigured is returned when the client has no credentials.
var ErrNotConfigured = errors.New("aggregator: not configured")

// Config holds the aggregator connection settings.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	ClientID     string        `yaml:"client_id"`
	Secret       string        `yaml:"secret"`
	AccessToken  string        `yaml:"access_token"`
	LookbackDays int           `yaml:"lookback_days"`
	Count        int           `yaml:"count"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Validate validates the aggregator configuration. Credentials are only
// required when the client is enabled.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.When(c.Enabled, validation.Required, is.URL)),
		validation.Field(&c.ClientID, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Secret, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.AccessToken, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.LookbackDays, validation.Min(1), validation.Max(730)),
		validation.Field(&c.Count, validation.Min(1), validation.Max(500)),
	)
}

// DefaultConfig returns the sandbox defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://sandbox.plaid.com",
		LookbackDays: 120,
		Count:        50,
		Timeout:      15 * time.Second,
	}
}

// Client talks to the aggregator HTTP API.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock overrides the time source used for the lookback window.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

type getRequest struct {
	ClientID    string         `json:"client_id"`
	Secret      string         `json:"secret"`
	AccessToken string         `json:"access_token"`
	StartDate   string         `json:"start_date"`
	EndDate     string         `json:"end_date"`
	Options     requestOptions `json:"options"`
}

type requestOptions struct {
	Count int `json:"count"`
}

type getResponse struct {
	Transactions      []remoteTransaction `json:"transactions"`
	TotalTransactions int                 `json:"total_transactions"`
}

type remoteTransaction struct {
	TransactionID   string          `json:"transaction_id"`
	MerchantName    string          `json:"merchant_name"`
	Name            string          `json:"name"`
	Amount          decimal.Decimal `json:"amount"`
	Date            string          `json:"date"`
	ISOCurrencyCode string          `json:"iso_currency_code"`
}

type errorResponse struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Transactions fetches the lookback window and maps it to transactions.
// Rows without an id, a name or a valid date are dropped.
func (c *Client) Transactions(ctx context.Context) ([]models.Transaction, error) {
	if c.cfg.ClientID == "" || c.cfg.Secret == "" || c.cfg.AccessToken == "" {
		return nil, ErrNotConfigured
	}

	end := models.Day(c.now())
	body, err := json.Marshal(getRequest{
		ClientID:    c.cfg.ClientID,
		Secret:      c.cfg.Secret,
		AccessToken: c.cfg.AccessToken,
		StartDate:   end.AddDate(0, 0, -c.cfg.LookbackDays).Format(models.DateLayout),
		EndDate:     end.Format(models.DateLayout),
		Options:     requestOptions{Count: c.cfg.Count},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregator: encode request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/transactions/get"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("aggregator: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aggregator: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("aggregator: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.ErrorCode != "" {
			return nil, fmt.Errorf("aggregator: %s: %s (status %d)", e.ErrorCode, e.ErrorMessage, resp.StatusCode)
		}
		return nil, fmt.Errorf("aggregator: unexpected status %d", resp.StatusCode)
	}

	var out getResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("aggregator: decode response: %w", err)
	}

	txns := make([]models.Transaction, 0, len(out.Transactions))
	for _, rt := range out.Transactions {
		t, ok := rt.toTransaction()
		if !ok {
			continue
		}
		txns = append(txns, t)
	}
	return txns, nil
}

func (rt remoteTransaction) toTransaction() (models.Transaction, bool) {
	name := strings.TrimSpace(rt.MerchantName)
	if name == "" {
		name = strings.TrimSpace(rt.Name)
	}
	// Zero amounts are card-verification holds, not charges.
	if rt.TransactionID == "" || name == "" || rt.Amount.IsZero() {
		return models.Transaction{}, false
	}
	date, err := models.ParseDate(rt.Date)
	if err != nil {
		return models.Transaction{}, false
	}
	return models.Transaction{
		RawVendorName: name,
		Amount:        rt.Amount,
		Currency:      rt.ISOCurrencyCode,
		Date:          date,
		Source:        models.SourceAggregator,
		ExternalID:    ExternalIDPrefix + rt.TransactionID,
	}, true
}

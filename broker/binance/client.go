// Package binance implements the exchange gateway against the Binance
// USDⓈ-M futures REST API.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/atrbot/broker"
	"github.com/rustyeddy/atrbot/errs"
)

const (
	// TestnetURL is the futures testnet base URL
	TestnetURL = "https://testnet.binancefuture.com"
	// LiveURL is the production futures base URL
	LiveURL = "https://fapi.binance.com"

	defaultRecvWindow = 5 * time.Second
	maxKlines         = 1500
)

// Config carries the credentials and endpoint for one client. There is no
// package-level client; build one per account.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	BaseURL    string        // overrides Testnet when set
	RecvWindow time.Duration // signed request validity window
	Timeout    time.Duration // HTTP client timeout
}

// Client represents a Binance futures API client
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow time.Duration
	httpClient *http.Client
	now        func() time.Time
	log        zerolog.Logger

	mu      sync.Mutex
	filters map[string]symbolInfo
}

var _ broker.Gateway = (*Client)(nil)

// NewClient creates a new futures API client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = LiveURL
		if cfg.Testnet {
			baseURL = TestnetURL
		}
	}
	recv := cfg.RecvWindow
	if recv <= 0 {
		recv = defaultRecvWindow
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		recvWindow: recv,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		log:        log.With().Str("component", "binance").Logger(),
		filters:    make(map[string]symbolInfo),
	}
}

// APIError is the error body the venue returns on failure.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error (status %d, code %d): %s", e.Status, e.Code, e.Msg)
}

// Unwrap marks client-side rejections so the gateway guard does not retry
// them. Rate limits and server errors stay retryable.
func (e *APIError) Unwrap() error {
	if e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests && e.Status != http.StatusTeapot {
		return broker.ErrRejected
	}
	return nil
}

// do executes a request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if params == nil {
		params = url.Values{}
	}
	query := params.Encode()
	if signed {
		if c.apiKey == "" || c.apiSecret == "" {
			return errs.E(errs.KindConfig, "binance"+path, "api key and secret are required for signed endpoints")
		}
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		query = params.Encode()
		// signature must be the last parameter
		query += "&signature=" + c.sign(query)
	}

	apiURL := c.baseURL + path
	if query != "" {
		apiURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if jerr := json.Unmarshal(body, apiErr); jerr != nil || apiErr.Msg == "" {
			apiErr.Msg = string(body)
		}
		c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Int("code", apiErr.Code).Msg(apiErr.Msg)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sign returns the hex HMAC-SHA256 of payload keyed by the API secret.
func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

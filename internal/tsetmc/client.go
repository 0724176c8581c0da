// Package tsetmc is an HTTP client for the TSETMC market data provider.
package tsetmc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tse-market-sync/internal/ingestion"
	"tse-market-sync/internal/logging"
	"tse-market-sync/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://cdn.tsetmc.com"
	DefaultTimeout     = 10 * time.Second
	DefaultRateLimit   = 5 // requests per second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// Client implements ingestion.Fetcher over HTTP.
type Client struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	logger      *logging.Logger
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL sets the provider base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithRateLimit sets the request rate limit. Zero or less disables limiting.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new provider client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:      logging.NewSilent(),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrSilent(c.logger)
	return c
}

var _ ingestion.Fetcher = (*Client)(nil)

// APIError is returned when the provider answers with a non-200 status.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Transient reports that status failures are per-call failures.
func (e *APIError) Transient() bool { return true }

// ScrapeError is returned when a provider body cannot be parsed.
type ScrapeError struct {
	Operation string
	Err       error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Operation, ingestion.ErrMalformedResponse, e.Err)
}

// Unwrap exposes both the cause and ingestion.ErrMalformedResponse.
func (e *ScrapeError) Unwrap() []error {
	return []error{ingestion.ErrMalformedResponse, e.Err}
}

// Transient reports that malformed bodies are per-call failures.
func (e *ScrapeError) Transient() bool { return true }

// IsTransient reports whether err should be counted and skipped by a batch.
func IsTransient(err error) bool {
	return ingestion.IsTransient(err)
}

// get fetches path with retries and exponential backoff.
func (c *Client) get(ctx context.Context, operation, path string) ([]byte, error) {
	start := time.Now()
	body, err := c.doWithRetry(ctx, operation, path)
	observability.RecordProviderRequest(operation, time.Since(start).Seconds(), err)
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", operation).Str("path", path).Msg("provider request failed")
		return nil, err
	}
	c.logger.Debug().Str("operation", operation).Str("path", path).Int("bytes", len(body)).Dur("elapsed", time.Since(start)).Msg("provider request")
	return body, nil
}

func (c *Client) doWithRetry(ctx context.Context, operation, path string) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limit wait: %w", operation, err)
		}

		body, err := c.do(ctx, operation, path)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) do(ctx context.Context, operation, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json, text/plain")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) tse-market-sync")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", operation, err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// retryable reports whether another attempt may succeed. Client errors other
// than rate limiting are final.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

// getJSON fetches path and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, operation, path string, out any) error {
	body, err := c.get(ctx, operation, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ScrapeError{Operation: operation, Err: err}
	}
	return nil
}

func escape(segment string) string {
	return url.PathEscape(segment)
}

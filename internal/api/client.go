package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"

	"github.com/rickgao/netpulse/internal/version"
)

// maxBodyBytes bounds how much of any response is read.
const maxBodyBytes = 8 << 20

// Client talks to the ISP backend REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger

	retries    int
	retryMin   time.Duration
	retryLimit time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a client rooted at baseURL. A trailing slash on baseURL
// is ignored.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		userAgent:  "netpulse/" + version.Version,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		retries:    3,
		retryMin:   time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryLimit < c.retryMin {
		c.retryLimit = 16 * c.retryMin
	}
	return c
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetries sets how many times a retryable failure is retried and the
// first delay. Delays double up to sixteen times the first.
func WithRetries(n int, first time.Duration) ClientOption {
	return func(c *Client) {
		c.retries = n
		c.retryMin = first
		c.retryLimit = 0
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// newAPIError builds an APIError, preferring the backend's own message
// ({"detail": ...} or {"error": ...}) over the status text.
func newAPIError(resp *http.Response, body []byte) *APIError {
	e := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Detail != "":
			e.Message = payload.Detail
		case payload.Error != "":
			e.Message = payload.Error
		}
	}

	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

// do sends one request and decodes a successful body into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(body)
		return newAPIError(resp, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// call runs do, retrying retryable API errors with jittered exponential
// backoff. A server Retry-After stretches the wait, up to the retry limit.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, out any) error {
	b := &backoff.Backoff{
		Min:    c.retryMin,
		Max:    c.retryLimit,
		Factor: 2,
		Jitter: true,
	}

	for {
		err := c.do(ctx, method, path, query, out)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return err
		}
		if int(b.Attempt()) >= c.retries {
			if c.retries == 0 {
				return err
			}
			return fmt.Errorf("giving up after %d retries: %w", c.retries, err)
		}

		wait := b.Duration()
		if apiErr.RetryAfter > wait {
			wait = min(apiErr.RetryAfter, c.retryLimit)
		}
		c.logger.Debug("retrying request",
			"path", path,
			"status", apiErr.StatusCode,
			"attempt", int(b.Attempt()),
			"wait", wait,
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		case <-t.C:
		}
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.call(ctx, http.MethodGet, path, query, out)
}

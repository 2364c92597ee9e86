// Package fetch is the HTTP transport shared by the capture, pipe and llm
// clients. Every non-2xx response becomes a *FetchError so callers can tell
// rate limiting apart from other failures after cache fallback is exhausted.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRateLimited matches any *FetchError whose RateLimited flag is set.
var ErrRateLimited = errors.New("rate limit exceeded")

// maxErrorBody bounds how much of an error response is kept in the error.
const maxErrorBody = 512

// FetchError describes a failed request.
type FetchError struct {
	Method      string
	URL         string
	StatusCode  int // 0 when the request never produced a response
	RateLimited bool
	Body        string
	Err         error
}

func (e *FetchError) Error() string {
	switch {
	case e.RateLimited:
		return fmt.Sprintf("%s %s: rate limit exceeded (HTTP %d)", e.Method, e.URL, e.StatusCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRateLimited) see through wrapping.
func (e *FetchError) Is(target error) bool {
	return target == ErrRateLimited && e.RateLimited
}

// IsRateLimited reports whether err carries a rate-limited FetchError.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Config configures a Client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// Token is sent as a bearer token when non-empty.
	Token string
	// Header is added to every request.
	Header http.Header
}

// Client issues requests and classifies failures.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a Client. A zero Timeout means 30 seconds.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// WithHTTPClient replaces the underlying http.Client; tests use it to route
// requests to an httptest server.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	clone := *c
	clone.httpClient = hc
	return &clone
}

// Get performs a GET and returns the response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// GetJSON performs a GET and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// PostJSON encodes payload as JSON and returns the open response on success.
// The caller must close the body; it is left open so streamed responses can
// be consumed incrementally.
func (c *Client) PostJSON(ctx context.Context, url string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, bytes.NewReader(data), "application/json")
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &FetchError{Method: method, URL: url, Err: err}
	}
	for k, vs := range c.config.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Method: method, URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &FetchError{
			Method:      method,
			URL:         url,
			StatusCode:  resp.StatusCode,
			RateLimited: isRateLimitStatus(resp),
			Body:        string(bytes.TrimSpace(data)),
			Err:         fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}
	return resp, nil
}

// isRateLimitStatus reports 403 and 429 as rate limiting; GitHub uses both.
func isRateLimitStatus(resp *http.Response) bool {
	return resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests
}

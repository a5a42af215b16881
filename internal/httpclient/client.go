// Package httpclient provides the HTTP transport used to talk to the upstream catalog.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is used when no timeout is supplied.
	DefaultTimeout = 15 * time.Second

	// DefaultUserAgent identifies the mirror to the upstream API.
	DefaultUserAgent = "catalog-mirror/1.0"

	// DefaultMaxResponseSize bounds the size of a single response body.
	DefaultMaxResponseSize int64 = 32 * 1024 * 1024
)

// Client performs GET requests and returns the response body.
type Client interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// DefaultClient is the net/http backed Client.
type DefaultClient struct {
	httpClient      *http.Client
	userAgent       string
	accessToken     string
	maxResponseSize int64
}

// Option configures a DefaultClient.
type Option func(*DefaultClient)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *DefaultClient) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithAccessToken sends the token as a bearer Authorization header.
func WithAccessToken(token string) Option {
	return func(c *DefaultClient) {
		c.accessToken = token
	}
}

// WithMaxResponseSize overrides the response body limit.
func WithMaxResponseSize(size int64) Option {
	return func(c *DefaultClient) {
		if size > 0 {
			c.maxResponseSize = size
		}
	}
}

// NewDefaultClient creates a new DefaultClient with the given timeout.
func NewDefaultClient(timeout time.Duration, opts ...Option) *DefaultClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &DefaultClient{
		httpClient:      &http.Client{Timeout: timeout},
		userAgent:       DefaultUserAgent,
		maxResponseSize: DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request and returns the body. Non-2xx responses are
// returned as *HTTPError.
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		message := string(body)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, NewHTTPError(resp.StatusCode, url, message)
	}

	if resp.ContentLength > c.maxResponseSize {
		return nil, fmt.Errorf("response size %d exceeds maximum allowed size of %s",
			resp.ContentLength, formatSize(c.maxResponseSize))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > c.maxResponseSize {
		return nil, fmt.Errorf("response body exceeds maximum allowed size of %s", formatSize(c.maxResponseSize))
	}

	return data, nil
}

// PostJSON sends body as a JSON POST and returns the first kilobyte of the
// response. Non-2xx responses are returned as *HTTPError.
func (c *DefaultClient) PostJSON(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewHTTPError(resp.StatusCode, url, string(respBody))
	}
	return respBody, nil
}

func formatSize(size int64) string {
	return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
}

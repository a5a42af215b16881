package httpclient_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-mirror/internal/httpclient"
)

// newTestServer creates a new test server with keep-alives disabled.
// This prevents flaky tests when running in parallel, as closing a server
// with keep-alives enabled can affect other tests sharing the HTTP transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestNewDefaultClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{
			name:    "create client with custom timeout",
			timeout: 5 * time.Second,
		},
		{
			name:    "create client with zero timeout uses default",
			timeout: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := httpclient.NewDefaultClient(tt.timeout)

			require.NotNil(t, client, "client should not be nil")
		})
	}
}

func TestDefaultClient_Get_Headers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		opts              []httpclient.Option
		wantUserAgent     string
		wantAuthorization string
	}{
		{
			name:          "defaults",
			wantUserAgent: httpclient.DefaultUserAgent,
		},
		{
			name:          "custom user agent",
			opts:          []httpclient.Option{httpclient.WithUserAgent("panda1234/search")},
			wantUserAgent: "panda1234/search",
		},
		{
			name:              "access token",
			opts:              []httpclient.Option{httpclient.WithAccessToken("secret")},
			wantUserAgent:     httpclient.DefaultUserAgent,
			wantAuthorization: "Bearer secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var receivedUserAgent, receivedAccept, receivedAuthorization string
			mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				receivedUserAgent = r.Header.Get("User-Agent")
				receivedAccept = r.Header.Get("Accept")
				receivedAuthorization = r.Header.Get("Authorization")

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"total": 0}`))
			}))
			defer mockServer.Close()

			client := httpclient.NewDefaultClient(30*time.Second, tt.opts...)
			data, err := client.Get(context.Background(), mockServer.URL)

			require.NoError(t, err)
			assert.Equal(t, []byte(`{"total": 0}`), data)
			assert.Equal(t, tt.wantUserAgent, receivedUserAgent)
			assert.Equal(t, "application/json", receivedAccept)
			assert.Equal(t, tt.wantAuthorization, receivedAuthorization)
		})
	}
}

func TestDefaultClient_Get_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		responseBody  string
		errorContains string
	}{
		{
			name:          "404 Not Found",
			statusCode:    http.StatusNotFound,
			responseBody:  "Not Found",
			errorContains: "HTTP 404",
		},
		{
			name:          "500 Internal Server Error",
			statusCode:    http.StatusInternalServerError,
			responseBody:  "Internal Server Error",
			errorContains: "HTTP 500",
		},
		{
			name:          "429 Too Many Requests",
			statusCode:    http.StatusTooManyRequests,
			responseBody:  "Too Many Requests",
			errorContains: "HTTP 429",
		},
		{
			name:          "503 without body uses status text",
			statusCode:    http.StatusServiceUnavailable,
			errorContains: "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer mockServer.Close()

			client := httpclient.NewDefaultClient(30 * time.Second)
			_, err := client.Get(context.Background(), mockServer.URL)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)

			var httpErr *httpclient.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
		})
	}
}

func TestDefaultClient_Get_NetworkErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		url           string
		errorContains string
	}{
		{
			name:          "invalid URL scheme",
			url:           "://invalid-url",
			errorContains: "failed to create request",
		},
		{
			name:          "unreachable host",
			url:           "http://invalid-host-does-not-exist.local:9999",
			errorContains: "failed to execute request",
		},
		{
			name:          "empty URL",
			url:           "",
			errorContains: "failed to execute request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := httpclient.NewDefaultClient(30 * time.Second)
			_, err := client.Get(context.Background(), tt.url)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestDefaultClient_Get_ContextTimeout(t *testing.T) {
	t.Parallel()

	mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	client := httpclient.NewDefaultClient(30 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, mockServer.URL)
	require.Error(t, err)
}

func TestDefaultClient_Get_SizeLimitExceeded(t *testing.T) {
	t.Parallel()

	const limit = 1024

	tests := []struct {
		name          string
		handler       http.HandlerFunc
		errorContains string
	}{
		{
			name: "reject via Content-Length",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Length", fmt.Sprintf("%d", limit+1))
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(make([]byte, limit+1))
			},
			errorContains: "exceeds maximum allowed size",
		},
		{
			name: "reject by actual content",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				for i := 0; i < 4; i++ {
					_, _ = w.Write(make([]byte, limit/2))
					if f, ok := w.(http.Flusher); ok {
						f.Flush()
					}
				}
			},
			errorContains: "exceeds maximum allowed size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mockServer := newTestServer(tt.handler)
			defer mockServer.Close()

			client := httpclient.NewDefaultClient(30*time.Second, httpclient.WithMaxResponseSize(limit))
			_, err := client.Get(context.Background(), mockServer.URL)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestDefaultClient_Get_AtSizeLimit(t *testing.T) {
	t.Parallel()

	mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer mockServer.Close()

	client := httpclient.NewDefaultClient(30*time.Second, httpclient.WithMaxResponseSize(1024))
	data, err := client.Get(context.Background(), mockServer.URL)

	require.NoError(t, err)
	assert.Len(t, data, 1024)
}

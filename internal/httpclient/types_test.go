package httpclient_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-mirror/internal/httpclient"
)

func TestHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		url           string
		message       string
		expectedError string
	}{
		{
			name:          "all fields",
			statusCode:    404,
			url:           "https://api.bgm.tv/v0/subjects/1",
			message:       "Not Found",
			expectedError: "HTTP 404 for URL https://api.bgm.tv/v0/subjects/1: Not Found",
		},
		{
			name:          "empty message",
			statusCode:    500,
			url:           "http://example.com",
			message:       "",
			expectedError: "HTTP 500 for URL http://example.com: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := httpclient.NewHTTPError(tt.statusCode, tt.url, tt.message)

			require.Error(t, err)
			assert.Equal(t, tt.expectedError, err.Error())
		})
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "404", err: httpclient.NewHTTPError(404, "u", "m"), expected: true},
		{name: "wrapped 404", err: fmt.Errorf("get subject: %w", httpclient.NewHTTPError(404, "u", "m")), expected: true},
		{name: "500", err: httpclient.NewHTTPError(500, "u", "m"), expected: false},
		{name: "plain error", err: errors.New("boom"), expected: false},
		{name: "nil", err: nil, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, httpclient.IsNotFound(tt.err))
		})
	}
}

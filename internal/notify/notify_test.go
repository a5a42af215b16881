package notify_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/catalog-mirror/internal/httpclient"
	"github.com/stacklok/catalog-mirror/internal/notify"
	"github.com/stacklok/catalog-mirror/internal/notify/mocks"
)

func TestWebhookNotifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		response      string
		errorContains string
	}{
		{name: "accepted", status: http.StatusOK, response: `{"code":0,"msg":"success"}`},
		{name: "empty response", status: http.StatusOK, response: ``},
		{name: "rejected in body", status: http.StatusOK, response: `{"code":19001,"msg":"param invalid"}`, errorContains: "param invalid"},
		{name: "http failure", status: http.StatusInternalServerError, response: "oops", errorContains: "HTTP 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var received []byte
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				received, _ = io.ReadAll(r.Body)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			n := notify.NewWebhookNotifier(server.URL, httpclient.NewDefaultClient(5*time.Second))
			err := n.Notify(context.Background(), "oc_ops", "full backfill aborted at offset 4/10")

			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, "text", gjson.GetBytes(received, "msg_type").String())
			assert.Equal(t, "oc_ops", gjson.GetBytes(received, "chat_id").String())
			assert.Equal(t, "full backfill aborted at offset 4/10", gjson.GetBytes(received, "content.text").String())
		})
	}
}

func TestSend_SwallowsErrors(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	n := mocks.NewMockNotifier(ctrl)
	n.EXPECT().Notify(gomock.Any(), "ops", "hello").Return(errors.New("chat down")).Times(1)

	assert.NotPanics(t, func() {
		notify.Send(context.Background(), n, "ops", "hello")
	})
	notify.Send(context.Background(), nil, "ops", "ignored")
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()
	assert.NoError(t, notify.NewLogNotifier().Notify(context.Background(), "ops", "hello"))
}

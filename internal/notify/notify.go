// Package notify delivers operator alerts.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/stacklok/catalog-mirror/internal/httpclient"
)

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks github.com/stacklok/catalog-mirror/internal/notify Notifier

// Notifier sends a text message to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, channel, message string) error
}

// Send delivers message and logs delivery failures instead of returning them.
func Send(ctx context.Context, n Notifier, channel, message string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, channel, message); err != nil {
		slog.Error("Failed to send operator notification", "channel", channel, "error", err)
	}
}

type logNotifier struct{}

// NewLogNotifier creates a Notifier that writes alerts to the log.
func NewLogNotifier() Notifier {
	return logNotifier{}
}

func (logNotifier) Notify(_ context.Context, channel, message string) error {
	slog.Warn("Operator notification", "channel", channel, "message", message)
	return nil
}

type webhookPoster interface {
	PostJSON(ctx context.Context, url string, body []byte) ([]byte, error)
}

type webhookNotifier struct {
	url    string
	client webhookPoster
}

// NewWebhookNotifier creates a Notifier posting chat-bot text messages to url.
func NewWebhookNotifier(url string, client *httpclient.DefaultClient) Notifier {
	return &webhookNotifier{url: url, client: client}
}

type webhookMessage struct {
	ChatID  string         `json:"chat_id,omitempty"`
	MsgType string         `json:"msg_type"`
	Content webhookContent `json:"content"`
}

type webhookContent struct {
	Text string `json:"text"`
}

func (w *webhookNotifier) Notify(ctx context.Context, channel, message string) error {
	body, err := json.Marshal(webhookMessage{
		ChatID:  channel,
		MsgType: "text",
		Content: webhookContent{Text: message},
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	resp, err := w.client.PostJSON(ctx, w.url, body)
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}

	// Chat webhooks report failures in the body with a 200 status.
	if code := gjson.GetBytes(resp, "code"); code.Exists() && code.Int() != 0 {
		return fmt.Errorf("notification rejected with code %d: %s", code.Int(), gjson.GetBytes(resp, "msg").String())
	}
	return nil
}

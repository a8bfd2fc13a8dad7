package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/google/uuid"
)

// WebhookChannel delivers alerts as a JSON POST
type WebhookChannel struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookChannel creates a webhook channel from its stored config.
// The config must carry a "url" key; any other keys are sent as extra
// request headers.
func NewWebhookChannel(ch models.AlertChannel) (*WebhookChannel, error) {
	url := ch.Config["url"]
	if url == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}

	headers := make(map[string]string)
	for key, value := range ch.Config {
		if key != "url" {
			headers[key] = value
		}
	}

	return &WebhookChannel{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Send posts the alert payload. One attempt only; a non-2xx response is
// an error.
func (wc *WebhookChannel) Send(ctx context.Context, n Notification) error {
	payload := map[string]interface{}{
		"event_id":     uuid.NewString(),
		"alert_type":   n.AlertType,
		"message":      n.Message,
		"container_id": n.ContainerID,
		"timestamp":    time.Now().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", wc.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "FleetWatch-Alerter/1.0")
	for key, value := range wc.headers {
		req.Header.Set(key, value)
	}

	resp, err := wc.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Type returns the channel type
func (wc *WebhookChannel) Type() string {
	return models.ChannelTypeWebhook
}

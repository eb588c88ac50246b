package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"companion-bot/backend/pkg/logger"
)

// MessageDelivery pushes an outbound message to a user over an external
// channel (SMS gateway, chat webhook). Used for scheduler-initiated sends
// and for the urgent out-of-band push of crisis replies.
type MessageDelivery interface {
	Send(ctx context.Context, externalUserID, text string) error
}

// WebhookDelivery posts outbound messages to a configured HTTP endpoint,
// typically an SMS gateway bridge.
type WebhookDelivery struct {
	url        string
	httpClient *http.Client
}

func NewWebhookDelivery(url string, timeout time.Duration) *WebhookDelivery {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookDelivery{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (d *WebhookDelivery) Send(ctx context.Context, externalUserID, text string) error {
	payload, err := json.Marshal(map[string]string{
		"to":   externalUserID,
		"body": text,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// LogDelivery writes outbound messages to the log instead of a gateway.
// Default in demo mode.
type LogDelivery struct {
	log *logger.Logger
}

func NewLogDelivery(log *logger.Logger) *LogDelivery {
	return &LogDelivery{log: log}
}

func (d *LogDelivery) Send(_ context.Context, externalUserID, text string) error {
	d.log.Info("Outbound message (log delivery)",
		"to", externalUserID,
		"body", text,
	)
	return nil
}

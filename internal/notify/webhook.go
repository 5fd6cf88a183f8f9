package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/oszuidwest/zwfm-videoencoder/internal/util"
)

// webhookTimeout bounds a single webhook delivery.
const webhookTimeout = 10 * time.Second

// SendExitWebhook sends a POST request to the webhook URL when the encoder exits unexpectedly.
func SendExitWebhook(webhookURL string, event types.ExitEvent) error {
	payload := map[string]any{
		"event":     EventEncoderExited,
		"exit_code": event.Exit.Code,
		"input":     util.RedactURL(event.Input),
		"output":    util.RedactURL(event.Output),
		"uptime":    event.Uptime,
		"timestamp": util.RFC3339Now(),
	}
	if event.Exit.Signal != "" {
		payload["signal"] = event.Exit.Signal
	}
	if event.LastError != "" {
		payload["last_error"] = event.LastError
	}
	return sendWebhook(webhookURL, payload)
}

// SendTestWebhook sends a test POST request to verify webhook configuration.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, map[string]any{
		"event":     EventTest,
		"message":   "This is a test notification from ZuidWest Video Encoder",
		"timestamp": util.RFC3339Now(),
	})
}

// sendWebhook sends a POST request with JSON payload to the webhook URL.
func sendWebhook(webhookURL string, payload map[string]any) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

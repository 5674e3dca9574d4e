package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"idx-flow/batch"
	"idx-flow/tracker"
)

// Webhook is one delivery target.
type Webhook struct {
	URL        string
	Method     string
	AuthHeader string // header name; empty with a non-empty AuthValue means bearer
	AuthValue  string
	Retries    int
	RetryDelay time.Duration
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	Event      string       `json:"event"`
	RunID      string       `json:"run_id"`
	Feature    string       `json:"feature,omitempty"`
	Stats      *batch.Stats `json:"stats,omitempty"`
	Error      string       `json:"error,omitempty"`
	FinishedAt time.Time    `json:"finished_at"`
	Message    string       `json:"message"`
}

// WebhookManager posts terminal run events to configured webhooks.
type WebhookManager struct {
	hooks  []Webhook
	client *http.Client
}

// NewWebhookManager creates a new webhook manager. It returns nil when there
// is nothing to deliver to.
func NewWebhookManager(hooks []Webhook) *WebhookManager {
	if len(hooks) == 0 {
		return nil
	}
	return &WebhookManager{
		hooks: hooks,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify implements tracker.Notifier. Only completed and failed events are
// delivered, each hook in its own goroutine.
func (wm *WebhookManager) Notify(_ context.Context, ev tracker.Event) {
	if ev.Type != tracker.EventCompleted && ev.Type != tracker.EventFailed {
		return
	}

	payloadBytes, err := json.Marshal(CreatePayload(ev))
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to marshal webhook payload")
		return
	}
	for _, hook := range wm.hooks {
		go wm.deliverWebhook(hook, ev.RunID, payloadBytes)
	}
}

// CreatePayload generates the webhook payload from a terminal event
func CreatePayload(ev tracker.Event) WebhookPayload {
	// Example: "✅ ingest run 1f0c... completed | ok: 1200 | skipped: 30 | failed: 2"
	var message string
	if ev.Type == tracker.EventFailed {
		message = fmt.Sprintf("❌ %s run %s failed: %s", ev.Feature, ev.RunID, ev.Message)
	} else {
		var ok, skipped, failed int
		if ev.Stats != nil {
			ok, skipped, failed = ev.Stats.Success, ev.Stats.Skipped, ev.Stats.Failed
		}
		message = fmt.Sprintf("✅ %s run %s completed | ok: %d | skipped: %d | failed: %d",
			ev.Feature, ev.RunID, ok, skipped, failed)
	}

	return WebhookPayload{
		Event:      ev.Type,
		RunID:      ev.RunID,
		Feature:    ev.Feature,
		Stats:      ev.Stats,
		Error:      ev.Message,
		FinishedAt: ev.At,
		Message:    message,
	}
}

func (wm *WebhookManager) deliverWebhook(hook Webhook, runID string, payload []byte) {
	maxRetries := hook.Retries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}

	var (
		statusCode int
		err        error
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		statusCode, err = wm.send(method, hook, payload)
		if err == nil && statusCode >= 200 && statusCode < 300 {
			log.Debug().Msgf("🔹 Webhook %s delivered for run %s (attempt %d/%d)", hook.URL, runID, attempt, maxRetries)
			return
		}

		// Wait before retry
		if attempt < maxRetries {
			time.Sleep(hook.RetryDelay)
		}
	}

	if err != nil {
		log.Warn().Err(err).Msgf("⚠️  Webhook %s failed for run %s", hook.URL, runID)
		return
	}
	log.Warn().Msgf("⚠️  Webhook %s answered %d for run %s", hook.URL, statusCode, runID)
}

func (wm *WebhookManager) send(method string, hook Webhook, payload []byte) (int, error) {
	req, err := http.NewRequest(method, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "idx-flow/1.0")

	// Auth headers
	if hook.AuthHeader != "" {
		req.Header.Set(hook.AuthHeader, hook.AuthValue)
	} else if hook.AuthValue != "" {
		req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
	}

	resp, err := wm.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier posts lifecycle events to an automation endpoint (n8n or similar).
// Delivery is best effort: failures are logged and never surfaced to the
// operation that triggered them.
type Notifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewNotifier builds a notifier. An empty url yields a no-op notifier, so
// callers never need to nil-check.
func NewNotifier(url string, logger *zap.Logger) *Notifier {
	if logger == nil {
		panic("webhook notifier requires a logger")
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool { return n.url != "" }

// Notify fires the event in a background goroutine and returns immediately.
func (n *Notifier) Notify(event string, payload map[string]interface{}) {
	if !n.Enabled() {
		return
	}

	body := map[string]interface{}{
		"event":       event,
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range payload {
		body[k] = v
	}

	go n.deliver(event, body)
}

func (n *Notifier) deliver(event string, body map[string]interface{}) {
	raw, err := json.Marshal(body)
	if err != nil {
		n.logger.Warn("webhook payload not serializable",
			zap.String("event", event), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(raw))
	if err != nil {
		n.logger.Warn("webhook request build failed",
			zap.String("event", event), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("event", event), zap.Error(err))
		return
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook endpoint rejected event",
			zap.String("event", event), zap.Int("status", resp.StatusCode))
		return
	}

	n.logger.Debug("webhook delivered", zap.String("event", event))
}

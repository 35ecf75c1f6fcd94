package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tetsy-ai/negotiation-platform/internal/model"
	"github.com/tetsy-ai/negotiation-platform/pkg/metrics"
)

// WebhookDispatcher POSTs negotiation events to the automated seller
// responder. The responder replies asynchronously through the regular API,
// never through this call.
type WebhookDispatcher struct {
	url    string
	client *http.Client
}

// NewWebhookDispatcher creates a webhook dispatcher with a bounded request
// timeout.
func NewWebhookDispatcher(url string, timeout time.Duration) *WebhookDispatcher {
	return &WebhookDispatcher{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Notify implements Dispatcher.
func (d *WebhookDispatcher) Notify(ctx context.Context, event *model.NegotiationEvent) (err error) {
	defer func() { metrics.RecordDispatch("webhook", err) }()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/marketsim/internal/domain"
)

// WebhookPublisher POSTs each tick report as JSON to a fixed URL.
type WebhookPublisher struct {
	url    string
	client *http.Client
}

// NewWebhookPublisher creates a publisher whose requests are bounded by
// timeout.
func NewWebhookPublisher(url string, timeout time.Duration) *WebhookPublisher {
	return &WebhookPublisher{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// PublishTick POSTs the tick event to the configured URL. Any status
// outside 2xx is an error.
func (p *WebhookPublisher) PublishTick(ctx context.Context, report *domain.TickReport) error {
	body, err := json.Marshal(NewTickEvent(report))
	if err != nil {
		return fmt.Errorf("marshal tick %s: %w", report.TickID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Event-Type", EventTickCompleted)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver tick %s: %w", report.TickID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deliver tick %s: unexpected status %d", report.TickID, resp.StatusCode)
	}
	return nil
}

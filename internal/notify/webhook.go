package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"jam3a/internal/metrics"

	"go.uber.org/zap"
)

// WebhookConfig configures a WebhookDispatcher
type WebhookConfig struct {
	URLs      []string
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// WebhookDispatcher posts events as JSON to every configured URL from a
// fixed pool of workers reading a bounded queue
type WebhookDispatcher struct {
	urls    []string
	client  *http.Client
	queue   *eventQueue
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewWebhookDispatcher starts the worker pool. Close stops it after the
// queued events are delivered.
func NewWebhookDispatcher(cfg WebhookConfig, logger *zap.Logger, m *metrics.Metrics) *WebhookDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	d := &WebhookDispatcher{
		urls:    cfg.URLs,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		metrics: m,
	}
	d.queue = newEventQueue(cfg.Workers, cfg.QueueSize, d.deliver, logger, m)

	return d
}

// Dispatch queues the event without blocking
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event Event) error {
	return d.queue.enqueue(ctx, event)
}

// Close stops accepting events and waits for the workers to drain the queue
// or for ctx to end
func (d *WebhookDispatcher) Close(ctx context.Context) error {
	return d.queue.close(ctx)
}

func (d *WebhookDispatcher) deliver(worker int, event Event) {
	for _, url := range d.urls {
		if err := d.post(url, event); err != nil {
			d.metrics.NotificationFailures.WithLabelValues("webhook").Inc()
			d.logger.Error("Webhook delivery failed",
				zap.Int("worker", worker),
				zap.String("url", url),
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
			continue
		}
		d.metrics.NotificationsSent.WithLabelValues("webhook").Inc()
	}
}

func (d *WebhookDispatcher) post(url string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Jam3a-Event", string(event.Type))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}

	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jam3a/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures a RedisPublisher
type RedisConfig struct {
	Channel   string
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// RedisPublisher publishes events on a pub/sub channel for other services.
// Events are queued and published by background workers, so a slow Redis
// never holds up the caller.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	queue   *eventQueue
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRedisPublisher starts the publishing workers for cfg.Channel
func NewRedisPublisher(client *redis.Client, cfg RedisConfig, logger *zap.Logger, m *metrics.Metrics) *RedisPublisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	p := &RedisPublisher{
		client:  client,
		channel: cfg.Channel,
		timeout: cfg.Timeout,
		logger:  logger,
		metrics: m,
	}
	p.queue = newEventQueue(cfg.Workers, cfg.QueueSize, p.deliver, logger, m)

	return p
}

// Dispatch queues the event without blocking
func (p *RedisPublisher) Dispatch(ctx context.Context, event Event) error {
	return p.queue.enqueue(ctx, event)
}

// Close stops accepting events and waits for the queued ones to be published
func (p *RedisPublisher) Close(ctx context.Context) error {
	return p.queue.close(ctx)
}

func (p *RedisPublisher) deliver(worker int, event Event) {
	if err := p.publish(event); err != nil {
		p.metrics.NotificationFailures.WithLabelValues("redis").Inc()
		p.logger.Error("Redis publish failed",
			zap.Int("worker", worker),
			zap.String("channel", p.channel),
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		return
	}

	p.metrics.NotificationsSent.WithLabelValues("redis").Inc()
	p.logger.Debug("Published event",
		zap.String("channel", p.channel),
		zap.String("event_type", string(event.Type)),
	)
}

func (p *RedisPublisher) publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

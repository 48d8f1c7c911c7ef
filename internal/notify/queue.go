package notify

import (
	"context"
	"errors"
	"sync"

	"jam3a/internal/metrics"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when an event cannot be queued without blocking
var ErrQueueFull = errors.New("notification queue is full")

// ErrDispatcherClosed is returned after Close
var ErrDispatcherClosed = errors.New("notification dispatcher is closed")

// eventQueue is a bounded channel drained by a fixed pool of workers, each
// handing events to deliver
type eventQueue struct {
	queue   chan Event
	deliver func(worker int, event Event)
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newEventQueue(workers, size int, deliver func(worker int, event Event), logger *zap.Logger, m *metrics.Metrics) *eventQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}

	q := &eventQueue{
		queue:   make(chan Event, size),
		deliver: deliver,
		logger:  logger,
		metrics: m,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	return q
}

func (q *eventQueue) enqueue(ctx context.Context, event Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrDispatcherClosed
	}

	select {
	case q.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		q.metrics.NotificationsDropped.Inc()
		q.logger.Warn("Dropping notification, queue is full",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", string(event.Type)),
		)
		return ErrQueueFull
	}
}

// close stops accepting events and waits for the workers to drain the queue
// or for ctx to end
func (q *eventQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *eventQueue) worker(id int) {
	defer q.wg.Done()

	for event := range q.queue {
		q.deliver(id, event)
	}
}

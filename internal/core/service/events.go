package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/market-core/internal/metrics"
	"github.com/rl1809/market-core/internal/port"
)

// EventDispatcher hands committed events to the publisher from a pool of
// workers so that a slow broker never holds a transaction or a caller.
// A nil dispatcher drops events.
type EventDispatcher struct {
	publisher port.EventPublisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan port.Event
	wg     sync.WaitGroup
}

func NewEventDispatcher(publisher port.EventPublisher, queueSize int, m *metrics.Metrics, log zerolog.Logger) *EventDispatcher {
	if publisher == nil {
		publisher = port.NopPublisher{}
	}
	return &EventDispatcher{
		publisher: publisher,
		metrics:   m,
		log:       log,
		timeout:   5 * time.Second,
		queue:     make(chan port.Event, queueSize),
	}
}

// Start launches the workers. Close drains the queue and waits for them.
func (d *EventDispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
}

func (d *EventDispatcher) workerLoop(id int) {
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.publisher.Publish(ctx, ev)
		cancel()

		d.metrics.EventPublished(ev.Type, err == nil)
		if err != nil {
			d.log.Error().Err(err).Int("worker", id).Str("type", ev.Type).Str("key", ev.Key).Msg("publish event")
		}
	}
}

// Dispatch enqueues events without blocking; events that do not fit are
// dropped and logged.
func (d *EventDispatcher) Dispatch(ctx context.Context, events ...port.Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, ev := range events {
		select {
		case d.queue <- ev:
		default:
			d.metrics.EventPublished(ev.Type, false)
			zerolog.Ctx(ctx).Warn().Str("type", ev.Type).Str("key", ev.Key).Msg("event queue full, dropping event")
		}
	}
}

func (d *EventDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func keyOf(id int64) string {
	return strconv.FormatInt(id, 10)
}

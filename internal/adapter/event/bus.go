package event

import (
	"context"
	"sync"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
	"github.com/rl1809/order-engine/pkg/logging"
)

// Subscriber receives lifecycle events. Subscribers must be idempotent;
// delivery is at-least-once from the caller's perspective.
type Subscriber func(ctx context.Context, event domain.Event)

// Bus is the in-process event publisher. Dispatch is synchronous, which
// keeps emission order per order id, and subscriber panics/errors never
// reach the originating request. An optional downstream sink (Kafka)
// mirrors every event out of process.
type Bus struct {
	mu   sync.RWMutex
	subs []Subscriber
	sink port.EventPublisher
}

func NewBus(sink port.EventPublisher) *Bus {
	return &Bus{sink: sink}
}

func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ctx, event)
	}

	if b.sink != nil {
		if err := b.sink.Publish(ctx, event); err != nil {
			logging.Log(logging.Fields{
				Component: "event-bus",
				OrderID:   event.OrderID,
				Event:     event.Type,
				Status:    "sink_failed",
				Error:     err.Error(),
			})
		}
	}
	return nil
}

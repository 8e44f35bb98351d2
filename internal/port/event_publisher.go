package port

import (
	"context"

	"github.com/rl1809/order-engine/internal/core/domain"
)

type EventPublisher interface {
	// Publish delivers a lifecycle event. Must be called only after the
	// originating transaction has committed. At-least-once; subscribers
	// are expected to be idempotent.
	Publish(ctx context.Context, event domain.Event) error
}

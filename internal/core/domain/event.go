package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
)

// Event is a lifecycle notification emitted after the originating
// transaction commits. Durability is the sink's concern.
type Event struct {
	ID         string         `json:"event_id"`
	Type       string         `json:"type"`
	OrderID    string         `json:"order_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewEvent(eventType, orderID string, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OrderID:    orderID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

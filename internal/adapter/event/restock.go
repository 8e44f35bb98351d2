package event

import (
	"context"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
	"github.com/rl1809/order-engine/pkg/logging"
)

// NewRestockSubscriber returns a subscriber that restores stock when an
// order is cancelled. Restocking lives here, outside the state machine,
// so the transition itself stays pure with respect to inventory;
// whether to enable it is a product decision (off by default).
func NewRestockSubscriber(orders port.OrderRepository) Subscriber {
	return func(ctx context.Context, event domain.Event) {
		if event.Type != domain.EventOrderStatusChanged {
			return
		}
		if event.Payload["to"] != string(domain.OrderStatusCancelled) {
			return
		}

		order, err := orders.GetOrder(ctx, event.OrderID)
		if err != nil {
			logging.Log(logging.Fields{Component: "restock", OrderID: event.OrderID, Status: "load_failed", Error: err.Error()})
			return
		}

		reservations := make([]domain.Reservation, 0, len(order.Items))
		for _, item := range order.Items {
			reservations = append(reservations, domain.Reservation{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		if err := orders.RestoreStock(ctx, reservations); err != nil {
			logging.Log(logging.Fields{Component: "restock", OrderID: event.OrderID, Status: "restore_failed", Error: err.Error()})
			return
		}
		logging.Log(logging.Fields{Component: "restock", OrderID: event.OrderID, Status: "restored"})
	}
}

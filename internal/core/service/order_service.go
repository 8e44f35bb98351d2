package service

import (
	"context"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
	"github.com/rl1809/order-engine/pkg/logging"
)

// OrderService orchestrates order creation and lifecycle transitions.
// All stock accounting happens inside the repository's transaction; the
// service validates input, loads collaborators and publishes events
// after commit.
type OrderService struct {
	orders    port.OrderRepository
	customers port.CustomerRepository
	publisher port.EventPublisher
}

func NewOrderService(orders port.OrderRepository, customers port.CustomerRepository, publisher port.EventPublisher) *OrderService {
	return &OrderService{
		orders:    orders,
		customers: customers,
		publisher: publisher,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, customerID string, reservations []domain.Reservation) (*domain.Order, error) {
	if customerID == "" {
		return nil, domain.NewValidationError("customer id is required")
	}
	if len(reservations) == 0 {
		return nil, domain.NewValidationError("order must have at least one item")
	}
	seen := make(map[string]struct{}, len(reservations))
	for _, r := range reservations {
		if r.ProductID == "" {
			return nil, domain.NewValidationError("each item must have a product id")
		}
		if r.Quantity <= 0 {
			return nil, domain.NewValidationError("quantity for product %q must be positive", r.ProductID)
		}
		// Duplicates are rejected rather than merged to keep snapshot
		// semantics unambiguous.
		if _, dup := seen[r.ProductID]; dup {
			return nil, domain.NewValidationError("duplicate product %q in order", r.ProductID)
		}
		seen[r.ProductID] = struct{}{}
	}

	customer, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !customer.Active() {
		return nil, domain.NewValidationError("customer %q is inactive", customerID)
	}

	order, err := s.orders.CreateOrder(ctx, customerID, reservations)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.NewEvent(domain.EventOrderCreated, order.ID, map[string]any{
		"customer_id": order.CustomerID,
		"total":       order.Total.String(),
		"items":       len(order.Items),
	}))

	return order, nil
}

func (s *OrderService) TransitionStatus(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (*domain.StatusChange, error) {
	if orderID == "" {
		return nil, domain.NewValidationError("order id is required")
	}

	change, err := s.orders.TransitionStatus(ctx, orderID, to, reason)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.NewEvent(domain.EventOrderStatusChanged, orderID, map[string]any{
		"from":   string(change.From),
		"to":     string(change.To),
		"reason": change.Reason,
	}))

	return change, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *OrderService) History(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	return s.orders.History(ctx, orderID)
}

// publish is fire-and-forget: the order is already committed, so a sink
// failure is logged and never surfaced to the caller.
func (s *OrderService) publish(ctx context.Context, event domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logging.Log(logging.Fields{
			Component: "order-service",
			OrderID:   event.OrderID,
			Event:     event.Type,
			Status:    "publish_failed",
			Error:     err.Error(),
		})
	}
}

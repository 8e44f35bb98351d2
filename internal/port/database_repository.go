package port

import (
	"context"

	"github.com/rl1809/order-engine/internal/core/domain"
)

type CustomerRepository interface {
	// GetCustomer returns the customer including its soft-delete marker.
	// Returns *domain.NotFoundError when no row exists.
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
}

type OrderRepository interface {
	// CreateOrder reserves stock for every line and persists the order,
	// its items and the initial history row in one transaction. Product
	// rows are locked in ascending id order; any failure rolls the whole
	// reservation back.
	CreateOrder(ctx context.Context, customerID string, reservations []domain.Reservation) (*domain.Order, error)

	// GetOrder returns the order with its items.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// TransitionStatus moves the order to a new status under a row lock,
	// validating the transition table, and appends a history row.
	TransitionStatus(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (*domain.StatusChange, error)

	// History returns status changes in chronological order, oldest first.
	History(ctx context.Context, orderID string) ([]domain.StatusChange, error)

	// RestoreStock adds reserved quantities back to products. Used only by
	// side-effect subscribers, never by the state machine itself.
	RestoreStock(ctx context.Context, reservations []domain.Reservation) error
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// statusTransitions is the full transition table. Delivered and
// cancelled are terminal.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// ParseStatus converts caller input into a known status.
func ParseStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	if _, ok := statusTransitions[s]; !ok {
		return "", NewValidationError("unknown order status %q", raw)
	}
	return s, nil
}

// OrderItem keeps a snapshot of the product as it was at order creation.
// The snapshot fields are immutable once written.
type OrderItem struct {
	ProductID   string
	ProductSKU  string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID         string
	CustomerID string
	Status     OrderStatus
	Items      []OrderItem
	Total      decimal.Decimal
	CreatedAt  time.Time
}

// NewOrder builds a pending order from reservation snapshots. The total
// is computed here once and never recomputed.
func NewOrder(customerID string, snapshots []ProductSnapshot) *Order {
	items := make([]OrderItem, 0, len(snapshots))
	total := decimal.Zero
	for _, snap := range snapshots {
		item := OrderItem{
			ProductID:   snap.ProductID,
			ProductSKU:  snap.SKU,
			ProductName: snap.Name,
			UnitPrice:   snap.UnitPrice,
			Quantity:    snap.Quantity,
		}
		items = append(items, item)
		total = total.Add(item.Subtotal())
	}
	return &Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Status:     OrderStatusPending,
		Items:      items,
		Total:      total,
		CreatedAt:  time.Now().UTC(),
	}
}

// StatusChange is one append-only history row. From is empty for the
// initial row written at creation.
type StatusChange struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
	Reason  string
	At      time.Time
}

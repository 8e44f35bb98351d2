package event

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-engine/internal/adapter/storage"
	"github.com/rl1809/order-engine/internal/core/domain"
)

func TestRestockSubscriber_RestoresStockOnCancel(t *testing.T) {
	store := storage.NewMemoryStore()
	store.AddCustomer(domain.Customer{ID: "cust-1", TaxID: "1"})
	store.AddProduct(domain.Product{ID: "prod-1", SKU: "SKU-1", Name: "Widget", UnitPrice: decimal.New(5, 0), Stock: 10})

	ctx := context.Background()
	order, err := store.CreateOrder(ctx, "cust-1", []domain.Reservation{{ProductID: "prod-1", Quantity: 4}})
	require.NoError(t, err)

	p, _ := store.Product("prod-1")
	require.Equal(t, 6, p.Stock)

	bus := NewBus(nil)
	bus.Subscribe(NewRestockSubscriber(store))

	// Unrelated transition: nothing restocked.
	bus.Publish(ctx, domain.NewEvent(domain.EventOrderStatusChanged, order.ID, map[string]any{
		"from": "pending", "to": "confirmed",
	}))
	p, _ = store.Product("prod-1")
	assert.Equal(t, 6, p.Stock)

	bus.Publish(ctx, domain.NewEvent(domain.EventOrderStatusChanged, order.ID, map[string]any{
		"from": "confirmed", "to": "cancelled", "reason": "customer request",
	}))
	p, _ = store.Product("prod-1")
	assert.Equal(t, 10, p.Stock)
}

func TestBus_DispatchPreservesOrder(t *testing.T) {
	bus := NewBus(nil)
	var seen []string
	bus.Subscribe(func(ctx context.Context, ev domain.Event) {
		seen = append(seen, ev.Type)
	})

	ctx := context.Background()
	bus.Publish(ctx, domain.NewEvent(domain.EventOrderCreated, "o1", nil))
	bus.Publish(ctx, domain.NewEvent(domain.EventOrderStatusChanged, "o1", nil))

	require.Equal(t, []string{domain.EventOrderCreated, domain.EventOrderStatusChanged}, seen)
}

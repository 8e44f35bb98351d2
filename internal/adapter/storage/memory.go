package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/order-engine/internal/core/domain"
)

// MemoryStore is an in-memory implementation of the customer and order
// repositories with the same atomicity contract as MySQLStore: a failed
// reservation leaves no partial deduction behind. Used by tests and
// local runs without a database.
type MemoryStore struct {
	mu        sync.Mutex
	products  map[string]*domain.Product
	customers map[string]*domain.Customer
	orders    map[string]*domain.Order
	history   map[string][]domain.StatusChange
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[string]*domain.Product),
		customers: make(map[string]*domain.Customer),
		orders:    make(map[string]*domain.Order),
		history:   make(map[string][]domain.StatusChange),
	}
}

func (m *MemoryStore) AddProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.products[p.ID] = &cp
}

func (m *MemoryStore) AddCustomer(c domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := c
	m.customers[c.ID] = &cp
}

// Product returns a copy of the stored product, for assertions.
func (m *MemoryStore) Product(id string) (domain.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, false
	}
	return *p, true
}

func (m *MemoryStore) SetUnitPrice(id string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[id]; ok {
		p.UnitPrice = price
	}
}

func (m *MemoryStore) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "customer", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, customerID string, reservations []domain.Reservation) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(reservations))
	wanted := make(map[string]int, len(reservations))
	for _, r := range reservations {
		ids = append(ids, r.ProductID)
		wanted[r.ProductID] = r.Quantity
	}
	sort.Strings(ids)

	// Check the whole set before touching any counter.
	var shortages []domain.StockShortage
	for _, id := range ids {
		p, ok := m.products[id]
		if !ok || p.DeletedAt != nil {
			return nil, &domain.NotFoundError{Entity: "product", ID: id}
		}
		if p.Stock < wanted[id] {
			shortages = append(shortages, domain.StockShortage{
				ProductID: id,
				SKU:       p.SKU,
				Requested: wanted[id],
				Available: p.Stock,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &domain.InsufficientStockError{Shortages: shortages}
	}

	snapshots := make([]domain.ProductSnapshot, 0, len(reservations))
	for _, r := range reservations {
		p := m.products[r.ProductID]
		p.Stock -= r.Quantity
		snapshots = append(snapshots, domain.ProductSnapshot{
			ProductID: p.ID,
			SKU:       p.SKU,
			Name:      p.Name,
			UnitPrice: p.UnitPrice,
			Quantity:  r.Quantity,
		})
	}

	order := domain.NewOrder(customerID, snapshots)
	m.orders[order.ID] = order
	m.history[order.ID] = []domain.StatusChange{{
		OrderID: order.ID,
		To:      order.Status,
		At:      order.CreatedAt,
	}}
	return copyOrder(order), nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "order", ID: orderID}
	}
	return copyOrder(order), nil
}

func (m *MemoryStore) TransitionStatus(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (*domain.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "order", ID: orderID}
	}
	if !order.Status.CanTransitionTo(to) {
		return nil, &domain.InvalidTransitionError{From: order.Status, To: to}
	}

	change := domain.StatusChange{
		OrderID: orderID,
		From:    order.Status,
		To:      to,
		Reason:  reason,
		At:      time.Now().UTC(),
	}
	order.Status = to
	m.history[orderID] = append(m.history[orderID], change)
	return &change, nil
}

func (m *MemoryStore) History(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return nil, &domain.NotFoundError{Entity: "order", ID: orderID}
	}
	history := make([]domain.StatusChange, len(m.history[orderID]))
	copy(history, m.history[orderID])
	return history, nil
}

func (m *MemoryStore) RestoreStock(ctx context.Context, reservations []domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range reservations {
		if p, ok := m.products[r.ProductID]; ok {
			p.Stock += r.Quantity
		}
	}
	return nil
}

func copyOrder(order *domain.Order) *domain.Order {
	cp := *order
	cp.Items = make([]domain.OrderItem, len(order.Items))
	copy(cp.Items, order.Items)
	return &cp
}

// MemoryIdempotencyStore mirrors the Redis store's claim semantics with
// a mutex standing in for the Lua scripts' atomicity.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]memoryIdempotencyEntry
}

type memoryIdempotencyEntry struct {
	rec       domain.IdempotencyRecord
	expiresAt time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{records: make(map[string]memoryIdempotencyEntry)}
}

func (m *MemoryIdempotencyStore) Claim(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, *domain.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.records[key]; ok && time.Now().Before(entry.expiresAt) {
		rec := entry.rec
		return false, &rec, nil
	}
	m.records[key] = memoryIdempotencyEntry{
		rec:       domain.IdempotencyRecord{Fingerprint: fingerprint, InFlight: true},
		expiresAt: time.Now().Add(ttl),
	}
	return true, nil, nil
}

func (m *MemoryIdempotencyStore) Complete(ctx context.Context, key string, rec domain.IdempotencyRecord, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.records[key]
	if !ok || !entry.rec.InFlight || entry.rec.Fingerprint != rec.Fingerprint {
		return nil
	}
	rec.InFlight = false
	m.records[key] = memoryIdempotencyEntry{rec: rec, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryIdempotencyStore) Release(ctx context.Context, key, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.records[key]
	if ok && entry.rec.InFlight && entry.rec.Fingerprint == fingerprint {
		delete(m.records, key)
	}
	return nil
}

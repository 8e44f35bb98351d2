package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/order-engine/internal/core/domain"
)

const mysqlErrLockWaitTimeout = 1205

// MySQLStore implements the customer and order repositories on top of a
// transactional store with SELECT ... FOR UPDATE row locking.
type MySQLStore struct {
	db       *sql.DB
	lockWait time.Duration
}

func NewMySQLStore(db *sql.DB, lockWait time.Duration) *MySQLStore {
	return &MySQLStore{db: db, lockWait: lockWait}
}

func (s *MySQLStore) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	var deletedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tax_id, name, created_at, deleted_at
		FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.TaxID, &c.Name, &c.CreatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "customer", ID: id}
	}
	if err != nil {
		return nil, translate("query customer", err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		c.DeletedAt = &t
	}
	return &c, nil
}

func (s *MySQLStore) CreateOrder(ctx context.Context, customerID string, reservations []domain.Reservation) (*domain.Order, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	snapshots, err := s.reserveStock(ctx, tx, reservations)
	if err != nil {
		return nil, err
	}

	order := domain.NewOrder(customerID, snapshots)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, status, total_amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.CustomerID, order.Status, order.Total, order.CreatedAt,
	)
	if err != nil {
		return nil, translate("insert order", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_sku, product_name, unit_price, quantity)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, item.ProductID, item.ProductSKU, item.ProductName, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return nil, translate("insert order item", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, reason, created_at)
		VALUES (?, NULL, ?, '', ?)`,
		order.ID, order.Status, order.CreatedAt,
	)
	if err != nil {
		return nil, translate("insert status history", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translate("commit order", err)
	}
	return order, nil
}

// reserveStock is the inventory ledger: it locks every product row in
// ascending id order (total order across concurrent reservations, so
// overlapping product sets cannot deadlock), verifies stock for the
// whole set and applies the deduction. Runs inside the caller's
// transaction so any later failure rolls it back.
func (s *MySQLStore) reserveStock(ctx context.Context, tx *sql.Tx, reservations []domain.Reservation) ([]domain.ProductSnapshot, error) {
	wanted := make(map[string]int, len(reservations))
	ids := make([]string, 0, len(reservations))
	for _, r := range reservations {
		wanted[r.ProductID] = r.Quantity
		ids = append(ids, r.ProductID)
	}
	sort.Strings(ids)

	query := fmt.Sprintf(`
		SELECT id, sku, name, unit_price, stock_quantity
		FROM products
		WHERE id IN (%s) AND deleted_at IS NULL
		ORDER BY id
		FOR UPDATE`, placeholders(len(ids)))

	rows, err := tx.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, translate("lock products", err)
	}
	defer rows.Close()

	type locked struct {
		sku   string
		name  string
		price decimal.Decimal
		stock int
	}
	found := make(map[string]locked, len(ids))
	for rows.Next() {
		var id string
		var l locked
		if err := rows.Scan(&id, &l.sku, &l.name, &l.price, &l.stock); err != nil {
			return nil, translate("scan product", err)
		}
		found[id] = l
	}
	if err := rows.Err(); err != nil {
		return nil, translate("lock products", err)
	}

	var shortages []domain.StockShortage
	for _, id := range ids {
		l, ok := found[id]
		if !ok {
			return nil, &domain.NotFoundError{Entity: "product", ID: id}
		}
		if l.stock < wanted[id] {
			shortages = append(shortages, domain.StockShortage{
				ProductID: id,
				SKU:       l.sku,
				Requested: wanted[id],
				Available: l.stock,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &domain.InsufficientStockError{Shortages: shortages}
	}

	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - ?, updated_at = NOW()
			WHERE id = ?`,
			wanted[id], id,
		)
		if err != nil {
			return nil, translate("deduct stock", err)
		}
	}

	// Snapshots follow the caller's item order, not lock order.
	snapshots := make([]domain.ProductSnapshot, 0, len(reservations))
	for _, r := range reservations {
		l := found[r.ProductID]
		snapshots = append(snapshots, domain.ProductSnapshot{
			ProductID: r.ProductID,
			SKU:       l.sku,
			Name:      l.name,
			UnitPrice: l.price,
			Quantity:  r.Quantity,
		})
	}
	return snapshots, nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, status, total_amount, created_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&order.ID, &order.CustomerID, &order.Status, &order.Total, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "order", ID: orderID}
	}
	if err != nil {
		return nil, translate("query order", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_sku, product_name, unit_price, quantity
		FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, translate("query order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductSKU, &item.ProductName, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, translate("scan order item", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("query order items", err)
	}
	return &order, nil
}

func (s *MySQLStore) TransitionStatus(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (*domain.StatusChange, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Row lock serializes concurrent transitions on the same order.
	var from domain.OrderStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ? FOR UPDATE`, orderID).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "order", ID: orderID}
	}
	if err != nil {
		return nil, translate("lock order", err)
	}

	if !from.CanTransitionTo(to) {
		return nil, &domain.InvalidTransitionError{From: from, To: to}
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, to, orderID); err != nil {
		return nil, translate("update order status", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		orderID, from, to, reason, now,
	); err != nil {
		return nil, translate("insert status history", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translate("commit transition", err)
	}
	return &domain.StatusChange{OrderID: orderID, From: from, To: to, Reason: reason, At: now}, nil
}

func (s *MySQLStore) History(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_status, to_status, reason, created_at
		FROM order_status_history WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, translate("query history", err)
	}
	defer rows.Close()

	var history []domain.StatusChange
	for rows.Next() {
		var change domain.StatusChange
		var from sql.NullString
		if err := rows.Scan(&from, &change.To, &change.Reason, &change.At); err != nil {
			return nil, translate("scan history", err)
		}
		change.OrderID = orderID
		change.From = domain.OrderStatus(from.String)
		history = append(history, change)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("query history", err)
	}
	if len(history) == 0 {
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return nil, err
		}
	}
	return history, nil
}

func (s *MySQLStore) RestoreStock(ctx context.Context, reservations []domain.Reservation) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sorted := make([]domain.Reservation, len(reservations))
	copy(sorted, reservations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, r := range sorted {
		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity + ?, updated_at = NOW()
			WHERE id = ?`,
			r.Quantity, r.ProductID,
		)
		if err != nil {
			return translate("restore stock", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return translate("commit restock", err)
	}
	return nil
}

func (s *MySQLStore) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translate("begin tx", err)
	}
	if s.lockWait > 0 {
		secs := int(s.lockWait.Seconds())
		if secs < 1 {
			secs = 1
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET innodb_lock_wait_timeout = %d", secs)); err != nil {
			tx.Rollback()
			return nil, translate("set lock wait", err)
		}
	}
	return tx, nil
}

// translate maps driver failures into the error taxonomy. Lock wait
// timeouts are surfaced as retryable ErrLockTimeout.
func translate(op string, err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrLockWaitTimeout {
		return fmt.Errorf("%s: %w", op, domain.ErrLockTimeout)
	}
	return &domain.PersistenceError{Op: op, Err: err}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/order-engine/internal/core/domain"
)

func getMySQL(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/orders?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	applySchema(t, db)
	t.Cleanup(func() { db.Close() })
	return db
}

func applySchema(t *testing.T, db *sql.DB) {
	t.Helper()
	raw, err := os.ReadFile("../../../schema.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
}

func seedProduct(t *testing.T, db *sql.DB, price string, stock int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO products (id, sku, name, unit_price, stock_quantity)
		VALUES (?, ?, 'Test Product', ?, ?)`,
		id, "TST-"+id[:8], price, stock,
	)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}

func seedCustomer(t *testing.T, db *sql.DB) string {
	t.Helper()
	id := uuid.NewString()
	if _, err := db.Exec(`INSERT INTO customers (id, tax_id, name) VALUES (?, '00000000000', 'Test Customer')`, id); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return id
}

func stockOf(t *testing.T, db *sql.DB, productID string) int {
	t.Helper()
	var stock int
	if err := db.QueryRow(`SELECT stock_quantity FROM products WHERE id = ?`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	return stock
}

func TestMySQLCreateOrder_Success(t *testing.T) {
	db := getMySQL(t)
	store := NewMySQLStore(db, 5*time.Second)
	ctx := context.Background()

	customerID := seedCustomer(t, db)
	productID := seedProduct(t, db, "10.00", 5)

	order, err := store.CreateOrder(ctx, customerID, []domain.Reservation{{ProductID: productID, Quantity: 2}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if got := stockOf(t, db, productID); got != 3 {
		t.Errorf("expected stock 3, got %d", got)
	}
	if want := decimal.RequireFromString("20.00"); !order.Total.Equal(want) {
		t.Errorf("expected total %s, got %s", want, order.Total)
	}

	reloaded, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(reloaded.Items) != 1 || reloaded.Items[0].ProductName != "Test Product" {
		t.Errorf("bad items: %+v", reloaded.Items)
	}

	history, err := store.History(ctx, order.ID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 || history[0].From != "" || history[0].To != domain.OrderStatusPending {
		t.Errorf("expected single initial history row, got %+v", history)
	}
}

func TestMySQLCreateOrder_AtomicPartialFailure(t *testing.T) {
	db := getMySQL(t)
	store := NewMySQLStore(db, 5*time.Second)
	ctx := context.Background()

	customerID := seedCustomer(t, db)
	plenty := seedProduct(t, db, "5.00", 100)
	scarce := seedProduct(t, db, "5.00", 1)

	_, err := store.CreateOrder(ctx, customerID, []domain.Reservation{
		{ProductID: plenty, Quantity: 10},
		{ProductID: scarce, Quantity: 5},
	})

	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if got := stockOf(t, db, plenty); got != 100 {
		t.Errorf("plenty stock changed: %d", got)
	}
	if got := stockOf(t, db, scarce); got != 1 {
		t.Errorf("scarce stock changed: %d", got)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM orders WHERE customer_id = ?`, customerID).Scan(&count)
	if count != 0 {
		t.Errorf("order row survived failed reservation: %d", count)
	}
}

func TestMySQLCreateOrder_MissingProduct(t *testing.T) {
	db := getMySQL(t)
	store := NewMySQLStore(db, 5*time.Second)

	customerID := seedCustomer(t, db)
	_, err := store.CreateOrder(context.Background(), customerID, []domain.Reservation{
		{ProductID: uuid.NewString(), Quantity: 1},
	})

	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestMySQLCreateOrder_ConcurrentNoOversell(t *testing.T) {
	db := getMySQL(t)
	store := NewMySQLStore(db, 10*time.Second)
	ctx := context.Background()

	initialStock := 5
	totalRequests := 20
	customerID := seedCustomer(t, db)
	productID := seedProduct(t, db, "1.00", initialStock)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.CreateOrder(ctx, customerID, []domain.Reservation{{ProductID: productID, Quantity: 1}}); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if got := stockOf(t, db, productID); got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}

func TestMySQLCreateOrder_LastUnitRace(t *testing.T) {
	db := getMySQL(t)
	store := NewMySQLStore(db, 10*time.Second)
	ctx := context.Background()

	customerID := seedCustomer(t, db)
	productID := seedProduct(t, db, "1.00", 1)

	var successCount, stockFailCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateOrder(ctx, customerID, []domain.Reservation{{ProductID: productID, Quantity: 1}})
			var insufficient *domain.InsufficientStockError
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.As(err, &insufficient):
				stockFailCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 || stockFailCount.Load() != 1 {
		t.Errorf("expected exactly one winner and one InsufficientStock, got %d/%d",
			successCount.Load(), stockFailCount.Load())
	}
	if got := stockOf(t, db, productID); got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}

func TestMySQLTransitionStatus(t *testing.T) {
	db := getMySQL(t)
	store := NewMySQLStore(db, 5*time.Second)
	ctx := context.Background()

	customerID := seedCustomer(t, db)
	productID := seedProduct(t, db, "2.00", 10)
	order, err := store.CreateOrder(ctx, customerID, []domain.Reservation{{ProductID: productID, Quantity: 1}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	change, err := store.TransitionStatus(ctx, order.ID, domain.OrderStatusConfirmed, "payment pending")
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if change.From != domain.OrderStatusPending || change.To != domain.OrderStatusConfirmed {
		t.Errorf("bad change: %+v", change)
	}

	// confirmed -> delivered is not reachable.
	_, err = store.TransitionStatus(ctx, order.ID, domain.OrderStatusDelivered, "")
	var invalid *domain.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	history, err := store.History(ctx, order.ID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if !history[0].At.Before(history[1].At) && !history[0].At.Equal(history[1].At) {
		t.Errorf("history not chronological: %v then %v", history[0].At, history[1].At)
	}

	_, err = store.TransitionStatus(ctx, uuid.NewString(), domain.OrderStatusConfirmed, "")
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError for unknown order, got %v", err)
	}
}

func TestMySQLGetCustomer(t *testing.T) {
	db := getMySQL(t)
	store := NewMySQLStore(db, 5*time.Second)
	ctx := context.Background()

	customerID := seedCustomer(t, db)
	customer, err := store.GetCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !customer.Active() {
		t.Error("fresh customer should be active")
	}

	if _, err := db.Exec(`UPDATE customers SET deleted_at = NOW(6) WHERE id = ?`, customerID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	customer, err = store.GetCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("get soft-deleted failed: %v", err)
	}
	if customer.Active() {
		t.Error("soft-deleted customer should be inactive")
	}

	_, err = store.GetCustomer(ctx, uuid.NewString())
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestMySQLRestoreStock(t *testing.T) {
	db := getMySQL(t)
	store := NewMySQLStore(db, 5*time.Second)
	ctx := context.Background()

	productID := seedProduct(t, db, "1.00", 2)
	if err := store.RestoreStock(ctx, []domain.Reservation{{ProductID: productID, Quantity: 3}}); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if got := stockOf(t, db, productID); got != 5 {
		t.Errorf("expected stock 5, got %d", got)
	}
}

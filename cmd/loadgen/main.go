package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rl1809/order-engine/internal/adapter/event"
	"github.com/rl1809/order-engine/internal/adapter/storage"
	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/core/service"
)

func main() {
	var (
		mysqlDSN      = flag.String("mysql", "root:root@tcp(localhost:3306)/orders?parseTime=true", "mysql dsn")
		initialStock  = flag.Int("stock", 20, "initial stock of the test product")
		totalRequests = flag.Int("requests", 50, "number of concurrent create requests")
	)
	flag.Parse()

	ctx := context.Background()

	db, err := sql.Open("mysql", *mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	productID := uuid.NewString()
	customerID := uuid.NewString()
	seed(ctx, db, productID, customerID, *initialStock)

	store := storage.NewMySQLStore(db, 5*time.Second)
	orderService := service.NewOrderService(store, store, event.NewBus(nil))

	var successCount, stockFailCount, otherFailCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orderService.CreateOrder(ctx, customerID, []domain.Reservation{
				{ProductID: productID, Quantity: 1},
			})
			var insufficient *domain.InsufficientStockError
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.As(err, &insufficient):
				stockFailCount.Add(1)
			default:
				otherFailCount.Add(1)
				log.Printf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	var finalStock int
	db.QueryRowContext(ctx, `SELECT stock_quantity FROM products WHERE id = ?`, productID).Scan(&finalStock)

	fmt.Println("========== LOAD GENERATOR RESULTS ==========")
	fmt.Printf("Initial Stock:      %d\n", *initialStock)
	fmt.Printf("Total Requests:     %d\n", *totalRequests)
	fmt.Printf("Successful:         %d\n", successCount.Load())
	fmt.Printf("Out Of Stock:       %d\n", stockFailCount.Load())
	fmt.Printf("Other Failures:     %d\n", otherFailCount.Load())
	fmt.Printf("Duration:           %v\n", elapsed)
	fmt.Printf("Final Stock:        %d\n", finalStock)
	fmt.Println("============================================")

	if int(successCount.Load()) == *initialStock && finalStock == 0 {
		fmt.Println("PASS: every unit sold exactly once, no oversell")
	} else {
		fmt.Printf("FAIL: expected %d successes and stock 0, got %d and %d\n",
			*initialStock, successCount.Load(), finalStock)
	}
}

func seed(ctx context.Context, db *sql.DB, productID, customerID string, stock int) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, unit_price, stock_quantity)
		VALUES (?, ?, 'Load Test Product', 19.90, ?)`,
		productID, "LOAD-"+productID[:8], stock,
	)
	if err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO customers (id, tax_id, name)
		VALUES (?, '00000000000', 'Load Test Customer')`,
		customerID,
	)
	if err != nil {
		log.Fatalf("failed to seed customer: %v", err)
	}
}

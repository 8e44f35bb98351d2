package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/order-engine/internal/adapter/event"
	"github.com/rl1809/order-engine/internal/adapter/handler"
	"github.com/rl1809/order-engine/internal/adapter/storage"
	"github.com/rl1809/order-engine/internal/core/idempotency"
	"github.com/rl1809/order-engine/internal/core/service"
	"github.com/rl1809/order-engine/internal/port"
	"github.com/rl1809/order-engine/pkg/metrics"
)

type config struct {
	HTTPPort        string
	MySQLDSN        string
	RedisAddr       string
	KafkaBrokers    []string
	KafkaTopic      string
	IdempotencyTTL  time.Duration
	LockWaitTimeout time.Duration
	RestockOnCancel bool
}

func readConfig() config {
	ttlHours, _ := strconv.Atoi(getenv("IDEMPOTENCY_TTL_HOURS", "24"))
	lockWaitSecs, _ := strconv.Atoi(getenv("LOCK_WAIT_TIMEOUT_SECONDS", "5"))
	restock := strings.ToLower(getenv("RESTOCK_ON_CANCEL", "false"))

	var brokers []string
	for _, b := range strings.Split(getenv("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return config{
		HTTPPort:        getenv("HTTP_PORT", "8080"),
		MySQLDSN:        getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/orders?parseTime=true"),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:    brokers,
		KafkaTopic:      getenv("KAFKA_TOPIC", "order-events"),
		IdempotencyTTL:  time.Duration(ttlHours) * time.Hour,
		LockWaitTimeout: time.Duration(lockWaitSecs) * time.Second,
		RestockOnCancel: restock == "1" || restock == "true" || restock == "yes",
	}
}

func main() {
	cfg := readConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")

	// Event publishing: optional Kafka sink behind the in-process bus.
	var sink port.EventPublisher
	var kafkaPub *event.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub = event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sink = kafkaPub
		log.Printf("kafka sink enabled: topic %s", cfg.KafkaTopic)
	}
	bus := event.NewBus(sink)

	store := storage.NewMySQLStore(db, cfg.LockWaitTimeout)
	if cfg.RestockOnCancel {
		bus.Subscribe(event.NewRestockSubscriber(store))
		log.Println("restock-on-cancel subscriber enabled")
	}

	orderService := service.NewOrderService(store, store, bus)
	coordinator := idempotency.NewCoordinator(storage.NewRedisIdempotencyStore(rdb), cfg.IdempotencyTTL)
	m := metrics.New("order_engine")

	httpHandler := handler.NewHTTPHandler(orderService, coordinator, m)
	mux := http.NewServeMux()
	httpHandler.Register(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on :%s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	if kafkaPub != nil {
		kafkaPub.Close()
	}
	rdb.Close()
	db.Close()
	log.Println("connections closed")
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

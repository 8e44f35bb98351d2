package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OrdersCreated        prometheus.Counter
	OrderFailures        *prometheus.CounterVec
	StatusTransitions    *prometheus.CounterVec
	IdempotencyReplays   prometheus.Counter
	IdempotencyConflicts prometheus.Counter
}

func New(namespace string) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Total number of orders created.",
		}),
		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_failures_total",
			Help:      "Order creation failures by reason.",
		}, []string{"reason"}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Successful status transitions by target status.",
		}, []string{"to"}),
		IdempotencyReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_replays_total",
			Help:      "Requests answered from the idempotency cache.",
		}),
		IdempotencyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_conflicts_total",
			Help:      "Idempotency keys reused with a different payload.",
		}),
	}
	prometheus.MustRegister(
		m.OrdersCreated,
		m.OrderFailures,
		m.StatusTransitions,
		m.IdempotencyReplays,
		m.IdempotencyConflicts,
	)
	return m
}

func Handler() http.Handler {
	return promhttp.Handler()
}

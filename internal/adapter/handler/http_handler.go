package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/core/idempotency"
	"github.com/rl1809/order-engine/internal/core/service"
	"github.com/rl1809/order-engine/pkg/metrics"
)

const maxBodyBytes = 1 << 20

type HTTPHandler struct {
	orders      *service.OrderService
	coordinator *idempotency.Coordinator
	metrics     *metrics.Metrics
}

func NewHTTPHandler(orders *service.OrderService, coordinator *idempotency.Coordinator, m *metrics.Metrics) *HTTPHandler {
	return &HTTPHandler{orders: orders, coordinator: coordinator, metrics: m}
}

// Register wires all routes onto the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/status", h.TransitionStatus)
	mux.HandleFunc("GET /api/orders/{id}/history", h.GetHistory)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

type createOrderRequest struct {
	CustomerID string `json:"customer_id"`
	Items      []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

type orderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductSKU  string `json:"product_sku"`
	ProductName string `json:"product_name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

type orderResponse struct {
	ID         string              `json:"id"`
	CustomerID string              `json:"customer_id"`
	Status     string              `json:"status"`
	Total      string              `json:"total"`
	CreatedAt  time.Time           `json:"created_at"`
	Items      []orderItemResponse `json:"items"`
}

type statusChangeResponse struct {
	OrderID string    `json:"order_id"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, domain.NewValidationError("unreadable request body"))
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, domain.NewValidationError("invalid request body"))
		return
	}

	reservations := make([]domain.Reservation, 0, len(req.Items))
	for _, item := range req.Items {
		reservations = append(reservations, domain.Reservation{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	key := r.Header.Get("Idempotency-Key")
	fingerprint := idempotency.Fingerprint(r.Method, r.URL.Path, body)

	resp, replayed, err := h.coordinator.Execute(r.Context(), key, fingerprint, func(ctx context.Context) (idempotency.Response, error) {
		order, err := h.orders.CreateOrder(ctx, req.CustomerID, reservations)
		if err != nil {
			return idempotency.Response{}, err
		}
		data, err := json.Marshal(toOrderResponse(order))
		if err != nil {
			return idempotency.Response{}, err
		}
		return idempotency.Response{Status: http.StatusCreated, Body: data}, nil
	})
	if err != nil {
		h.countFailure(err)
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		if replayed {
			h.metrics.IdempotencyReplays.Inc()
		} else {
			h.metrics.OrdersCreated.Inc()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *HTTPHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, domain.NewValidationError("invalid request body"))
		return
	}

	to, err := domain.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}

	change, err := h.orders.TransitionStatus(r.Context(), r.PathValue("id"), to, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.StatusTransitions.WithLabelValues(string(change.To)).Inc()
	}
	writeJSON(w, http.StatusOK, toStatusChangeResponse(*change))
}

func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.orders.History(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]statusChangeResponse, 0, len(history))
	for _, change := range history {
		out = append(out, toStatusChangeResponse(change))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps the error taxonomy onto HTTP status codes. Business
// failures are 4xx; infrastructure failures are 5xx and retryable.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	var (
		validation   *domain.ValidationError
		notFound     *domain.NotFoundError
		insufficient *domain.InsufficientStockError
		transition   *domain.InvalidTransitionError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation_error"})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "insufficient_stock"})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "invalid_state_transition"})
	case errors.Is(err, domain.ErrIdempotencyConflict):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "idempotency_key_conflict"})
	case errors.Is(err, domain.ErrRequestInProgress):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "request_in_progress"})
	case errors.Is(err, domain.ErrLockTimeout):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Code: "lock_timeout"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "internal error", Code: "persistence_error"})
	}
}

func (h *HTTPHandler) countFailure(err error) {
	if h.metrics == nil {
		return
	}
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		h.metrics.OrderFailures.WithLabelValues("insufficient_stock").Inc()
	case errors.Is(err, domain.ErrIdempotencyConflict):
		h.metrics.IdempotencyConflicts.Inc()
	case errors.Is(err, domain.ErrRequestInProgress):
		h.metrics.OrderFailures.WithLabelValues("in_progress").Inc()
	default:
		h.metrics.OrderFailures.WithLabelValues("other").Inc()
	}
}

func toOrderResponse(order *domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:   item.ProductID,
			ProductSKU:  item.ProductSKU,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Quantity:    item.Quantity,
		})
	}
	return orderResponse{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Total:      order.Total.StringFixed(2),
		CreatedAt:  order.CreatedAt,
		Items:      items,
	}
}

func toStatusChangeResponse(change domain.StatusChange) statusChangeResponse {
	return statusChangeResponse{
		OrderID: change.OrderID,
		From:    string(change.From),
		To:      string(change.To),
		Reason:  change.Reason,
		At:      change.At,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

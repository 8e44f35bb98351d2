package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRequestInProgress means a duplicate of an in-flight request
	// arrived before the first one finished. Safe to retry after backoff.
	ErrRequestInProgress = errors.New("request in progress")

	// ErrIdempotencyConflict means an idempotency key was reused with a
	// different request payload.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")

	// ErrLockTimeout means a row lock could not be acquired within the
	// configured wait. Retryable.
	ErrLockTimeout = errors.New("lock wait timeout")
)

type ValidationError struct {
	Msg string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Msg }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

type StockShortage struct {
	ProductID string
	SKU       string
	Requested int
	Available int
}

// InsufficientStockError lists every under-stocked product in the
// reservation, not just the first one.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s requested %d available %d", s.SKU, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// PersistenceError wraps infrastructure failures from the storage layer.
// Callers may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
	"github.com/rl1809/order-engine/pkg/logging"
)

// Response is the cached outcome of a create-type request.
type Response struct {
	Status int
	Body   []byte
}

func (r Response) success() bool {
	return r.Status >= 200 && r.Status < 300
}

// Handler runs the actual request once the coordinator has decided it
// is not a duplicate.
type Handler func(ctx context.Context) (Response, error)

// Fingerprint hashes the normalized request so key reuse with a
// different payload can be detected.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", method, path)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Coordinator deduplicates creation requests by a client-supplied key.
// The claim is a single atomic set-if-absent against the key-value
// store; its TTL bounds how long a crashed worker can hold a key.
type Coordinator struct {
	store port.IdempotencyStore
	ttl   time.Duration
}

func NewCoordinator(store port.IdempotencyStore, ttl time.Duration) *Coordinator {
	return &Coordinator{store: store, ttl: ttl}
}

// Execute wraps handler with key-based deduplication. An empty key
// disables deduplication entirely. The second return value reports
// whether the response was replayed from the store.
func (c *Coordinator) Execute(ctx context.Context, key, fingerprint string, handler Handler) (Response, bool, error) {
	if key == "" {
		resp, err := handler(ctx)
		return resp, false, err
	}

	claimed, existing, err := c.store.Claim(ctx, key, fingerprint, c.ttl)
	if err != nil {
		return Response{}, false, &domain.PersistenceError{Op: "idempotency claim", Err: err}
	}

	if !claimed {
		if existing.Fingerprint != fingerprint {
			return Response{}, false, domain.ErrIdempotencyConflict
		}
		if existing.InFlight {
			return Response{}, false, domain.ErrRequestInProgress
		}
		return Response{Status: existing.Status, Body: existing.Body}, true, nil
	}

	resp, err := handler(ctx)
	if err != nil || !resp.success() {
		// A failed attempt must be retryable under the same key. If the
		// release itself fails the claim expires with its TTL.
		if relErr := c.store.Release(ctx, key, fingerprint); relErr != nil {
			logging.Log(logging.Fields{Component: "idempotency", Key: key, Status: "release_failed", Error: relErr.Error()})
		}
		return resp, false, err
	}

	rec := domain.IdempotencyRecord{
		Fingerprint: fingerprint,
		Status:      resp.Status,
		Body:        resp.Body,
	}
	// The handler already committed; a store failure here only costs the
	// replay, so it must not fail the request.
	if err := c.store.Complete(ctx, key, rec, c.ttl); err != nil {
		logging.Log(logging.Fields{Component: "idempotency", Key: key, Status: "complete_failed", Error: err.Error()})
	}
	return resp, false, nil
}

package port

import (
	"context"
	"time"

	"github.com/rl1809/order-engine/internal/core/domain"
)

type IdempotencyStore interface {
	// Claim atomically stores an in-flight record if the key is absent.
	// Returns claimed=true when this caller now owns the key; otherwise
	// the existing record is returned. Must be a single atomic primitive
	// so two concurrent requests cannot both observe "key absent".
	Claim(ctx context.Context, key, fingerprint string, ttl time.Duration) (claimed bool, existing *domain.IdempotencyRecord, err error)

	// Complete overwrites an in-flight record owned by this caller with
	// the final response. A record that lapsed or changed hands is left
	// untouched.
	Complete(ctx context.Context, key string, rec domain.IdempotencyRecord, ttl time.Duration) error

	// Release deletes an in-flight record owned by this caller so a
	// failed attempt can be retried under the same key.
	Release(ctx context.Context, key, fingerprint string) error
}

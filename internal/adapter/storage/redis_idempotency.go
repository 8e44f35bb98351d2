package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/order-engine/internal/core/domain"
)

const idempotencyKeyPrefix = "idempotency:"

// claimScript is the atomic set-if-absent: either this caller stores an
// in-flight record, or the existing record comes back. A plain
// SetNX+Get pair would race with expiry between the two calls.
var claimScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
	return existing
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return ''
`)

// completeScript overwrites the record only while it is still the
// in-flight claim of the caller identified by its fingerprint.
var completeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local rec = cjson.decode(raw)
if rec.fingerprint ~= ARGV[1] or not rec.in_flight then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// releaseScript is compare-and-delete on the caller's in-flight claim.
var releaseScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local rec = cjson.decode(raw)
if rec.fingerprint ~= ARGV[1] or not rec.in_flight then
	return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (r *RedisIdempotencyStore) Claim(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, *domain.IdempotencyRecord, error) {
	payload, err := json.Marshal(domain.IdempotencyRecord{Fingerprint: fingerprint, InFlight: true})
	if err != nil {
		return false, nil, err
	}

	raw, err := claimScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, payload, ttl.Milliseconds()).Text()
	if err != nil {
		return false, nil, fmt.Errorf("idempotency claim: %w", err)
	}
	if raw == "" {
		return true, nil, nil
	}

	var existing domain.IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return false, nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return false, &existing, nil
}

func (r *RedisIdempotencyStore) Complete(ctx context.Context, key string, rec domain.IdempotencyRecord, ttl time.Duration) error {
	rec.InFlight = false
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// A claim that lapsed before completion is left alone: the key is
	// either gone or owned by a newer attempt.
	return completeScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, rec.Fingerprint, payload, ttl.Milliseconds()).Err()
}

func (r *RedisIdempotencyStore) Release(ctx context.Context, key, fingerprint string) error {
	return releaseScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, fingerprint).Err()
}

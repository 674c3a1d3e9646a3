package shared

import (
	"context"
	"time"
)

// DefaultIdempotencyTTL is how long a claimed request key is held.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore holds request keys so that a retried command is applied
// once. It is a fast first line; the payments table's unique idempotency
// key stays authoritative.
type IdempotencyStore interface {
	// Claim takes key for ttl. It reports false when the key is already
	// held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees key after the command it guarded was rolled back.
	// Releasing a key that is not held is not an error.
	Release(ctx context.Context, key string) error
	Close() error
}

package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ErrRedisUnavailable is returned when Redis is required but cannot be
// reached.
var ErrRedisUnavailable = errors.New("redis required for idempotency but unavailable")

// NewIdempotencyStore picks the payment idempotency store. Without a Redis
// host it is the in-memory store. An unreachable Redis fails when
// requireRedis is set and otherwise degrades to the in-memory store.
func NewIdempotencyStore(ctx context.Context, cfg config.RedisConfig, requireRedis bool, log *zap.Logger) (shared.IdempotencyStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Addr() == "" {
		log.Info("Redis not configured, using in-memory idempotency store")
		return NewMemoryStore(), nil
	}

	store, err := NewRedisStore(ctx, cfg)
	switch {
	case err == nil:
		log.Info("Using Redis idempotency store", zap.String("addr", cfg.Addr()))
		return store, nil
	case requireRedis:
		return nil, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}

	// Other instances will not see keys held here. Replays still collide on
	// the payment ID derived from the key.
	log.Warn("Redis unavailable, using in-memory idempotency store",
		zap.String("addr", cfg.Addr()),
		zap.Error(err),
	)
	return NewMemoryStore(), nil
}

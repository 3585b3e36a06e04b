package database

import (
	"context"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/config"
)

// OpenRedis returns nil when Redis is disabled or unreachable; the ledger
// then runs without a balance cache.
func OpenRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if !cfg.Enabled {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis connection failed, continuing without balance cache", zap.Error(err))
		_ = rdb.Close()
		return nil
	}

	logger.Info("redis connection established", zap.String("addr", cfg.Addr()))
	return rdb
}

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/logging"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/ruralpay/ledger/internal/store/memory"
	"github.com/ruralpay/ledger/internal/store/postgres"
)

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  store.Store
	redis  *redis.Client
	ledger *services.LedgerService
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, logger)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	switch cfg.Ledger.Store {
	case config.StoreMemory:
		a.store = memory.New(memory.WithLockWait(cfg.Ledger.LockTimeout))
	default:
		db, err := database.OpenPostgres(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.store = postgres.New(db,
			postgres.WithLockTimeout(cfg.Ledger.LockTimeout),
			postgres.WithLogger(logger),
		)
	}

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithCurrencies(cfg.Ledger.Currencies),
	}
	if a.redis = database.OpenRedis(ctx, cfg.Redis, logger); a.redis != nil {
		opts = append(opts, services.WithBalanceCache(
			services.NewRedisBalanceCache(a.redis, cfg.Redis.Prefix, cfg.Redis.CacheTTL),
		))
	}
	a.ledger = services.NewLedgerService(a.store, opts...)

	logger.Info("ledger initialised",
		zap.String("store", cfg.Ledger.Store),
		zap.Bool("balance_cache", a.redis != nil),
		zap.Strings("currencies", cfg.Ledger.Currencies),
	)
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

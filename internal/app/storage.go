package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"laundry-dispatch/internal/config"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/ports/store"
	"laundry-dispatch/internal/repository"
	"laundry-dispatch/internal/repository/memory"
	"laundry-dispatch/internal/repository/redisgeo"
)

// Storage is the selected store plus the optional courier geo index.
type Storage struct {
	Store   store.Store
	Index   CourierIndex
	closers []func()
}

// Close releases connections in reverse order of opening.
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

var pingRedis = func(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}

func openStorage(ctx context.Context, cfg *config.Config, logger logx.Logger, dbConnect dbConnectFunc) (*Storage, error) {
	s := &Storage{}

	switch cfg.Storage {
	case config.StorageMemory:
		s.Store = memory.New()
		logger.Info("storage selected", logx.String("backend", config.StorageMemory))
	default:
		pool, err := dbConnect(ctx, logger, cfg.DB.DSN(), 10, time.Second)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		if err := repository.Migrate(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		s.Store = repository.NewStore(pool)
		logger.Info("storage selected", logx.String("backend", config.StoragePostgres))
	}

	if cfg.Redis.Addr == "" {
		return s, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pingRedis(pingCtx, rdb); err != nil {
		// индекс только ускоряет выбор курьера, без него работаем полным сканом
		logger.Warn("redis unavailable, courier geo index disabled", logx.String("addr", cfg.Redis.Addr), logx.Err(err))
		_ = rdb.Close()
		return s, nil
	}
	s.Index = redisgeo.New(rdb, cfg.Redis.Key)
	s.closers = append(s.closers, func() { _ = rdb.Close() })
	return s, nil
}

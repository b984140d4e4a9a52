package main

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Cheertaboi/qris-discount-service/internal/cache"
	"github.com/Cheertaboi/qris-discount-service/internal/config"
	"github.com/Cheertaboi/qris-discount-service/internal/repository"
	"github.com/Cheertaboi/qris-discount-service/pkg/db"
)

// openStore opens the configured backing. The returned close func is never
// nil.
func openStore(ctx context.Context, log *zap.Logger, cfg config.Config) (repository.Store, func() error, error) {
	noop := func() error { return nil }

	var (
		store   repository.Store
		closeFn = noop
	)
	switch strings.ToLower(cfg.Store) {
	case config.StoreMemory:
		log.Warn("using the in-memory store; state is lost on restart and not shared between instances")
		store = cache.NewMemoryStore()

	case config.StorePostgres:
		pgConfig, err := db.LoadPostgresConfig()
		if err != nil {
			return nil, noop, err
		}
		conn, err := db.NewPostgresConnection(ctx, pgConfig)
		if err != nil {
			return nil, noop, err
		}
		pg := repository.NewPostgresStore(conn, repository.DefaultDocumentID)
		if err := pg.Migrate(ctx); err != nil {
			_ = conn.Close()
			return nil, noop, err
		}
		store, closeFn = pg, conn.Close

	case config.StoreContent:
		content, err := repository.NewContentStore(repository.ContentConfig{
			BaseURL: cfg.ContentBaseURL,
			Token:   cfg.ContentToken,
			Path:    cfg.ContentPath,
			Branch:  cfg.ContentBranch,
		}, nil)
		if err != nil {
			return nil, noop, err
		}
		store = content

	case config.StoreRedis:
		log.Warn("using the redis store; concurrent writers are last-writer-wins")
		redisStore, err := cache.OpenRedisStore(ctx, cfg.RedisURL, cache.DefaultRedisKey)
		if err != nil {
			return nil, noop, err
		}
		store, closeFn = redisStore, redisStore.Close

	default:
		return nil, noop, config.Error.New("unknown store %q", cfg.Store)
	}

	return repository.NewLoggedStore(log, store), closeFn, nil
}

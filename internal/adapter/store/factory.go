package store

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/infrastructure/config"
	"github.com/eslsoft/dictsync/internal/repository"
)

// NewStore selects the store backend from config. `auto` picks Redis when a
// client is available and the in-process map otherwise. The result is
// wrapped in a CachedStore when the local cache is enabled.
func NewStore(cfg *config.Config, rdb redis.UniversalClient, fallback repository.Fallback, logger *logrus.Logger) (repository.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if backend == "" || backend == config.StoreAuto {
		backend = config.StoreMemory
		if rdb != nil {
			backend = config.StoreRedis
		}
	}

	var s repository.Store
	switch backend {
	case config.StoreMemory:
		s = NewMemoryStore(fallback, logger)
	case config.StoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis store selected but redis.addr is empty")
		}
		s = NewRedisStore(rdb, logger,
			WithKeyLayout(NewKeyLayout(cfg)),
			WithBatchSize(cfg.Store.BatchSize),
			WithFallback(fallback),
		)
	default:
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownStoreBackend, cfg.Store.Backend)
	}
	logger.WithField("backend", backend).Info("dictionary store selected")

	if cfg.Cache.Enabled {
		s = NewCachedStore(s, cfg.Cache.Size, cfg.Cache.TTL, cfg.Cache.MaxMisses)
	}
	return s, nil
}

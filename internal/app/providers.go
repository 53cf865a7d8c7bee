package app

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/adapter/source"
	"github.com/eslsoft/dictsync/internal/infrastructure/config"
	"github.com/eslsoft/dictsync/internal/infrastructure/database"
	"github.com/eslsoft/dictsync/internal/repository"
	"github.com/eslsoft/dictsync/internal/usecase"
)

// Source names used in refresh filters.
const (
	StaticSourceName = "static"
	TableSourceName  = "table"
	StreamSourceName = "stream"
)

// NewSources opens the sources enabled under `sources.*`, in pass order:
// static system types first, then the table, then the stream.
func NewSources(cfg *config.Config, logger *logrus.Logger) ([]repository.Source, func(), error) {
	var (
		sources  []repository.Source
		cleanups []func()
	)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if path := strings.TrimSpace(cfg.Sources.Static); path != "" {
		src, err := source.LoadStaticFile(StaticSourceName, path)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, src)
	}

	if cfg.Sources.Table {
		drv, closeDrv, err := database.NewEntDriver(cfg, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, closeDrv)
		sources = append(sources, source.NewTableSource(TableSourceName, drv))
	}

	if cfg.Sources.Stream {
		pool, closePool, err := database.NewConnection(cfg, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, closePool)
		sources = append(sources, source.NewStreamSource(StreamSourceName, pool, cfg.Sources.StreamPageSize))
	}

	if len(sources) == 0 {
		logger.Warn("no dictionary sources enabled")
	}
	return sources, cleanup, nil
}

func NewRefreshBus(cfg *config.Config, logger *logrus.Logger) *usecase.RefreshBus {
	return usecase.NewRefreshBus(cfg.Refresh.QueueSize, logger)
}

func NewRefreshOptions(cfg *config.Config) usecase.RefreshOptions {
	return usecase.RefreshOptions{
		InstanceID:  cfg.InstanceID(),
		MinInterval: cfg.Refresh.MinInterval,
	}
}

func NewTreeResolver(cfg *config.Config, store repository.Store) *usecase.TreeResolver {
	return usecase.NewTreeResolver(store, cfg.Store.MaxTreeDepth)
}

//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"github.com/eslsoft/dictsync/internal/adapter/broadcast"
	"github.com/eslsoft/dictsync/internal/adapter/gateway"
	"github.com/eslsoft/dictsync/internal/adapter/store"
	"github.com/eslsoft/dictsync/internal/infrastructure/config"
	"github.com/eslsoft/dictsync/internal/infrastructure/database"
	"github.com/eslsoft/dictsync/internal/infrastructure/server"
	"github.com/eslsoft/dictsync/internal/repository"
	"github.com/eslsoft/dictsync/internal/usecase"
)

var configSet = wire.NewSet(
	config.Load,
)

var databaseSet = wire.NewSet(
	database.NewRedisClient,
	NewSources,
)

var repositorySet = wire.NewSet(
	wire.InterfaceValue(new(repository.Fallback), repository.NoFallback{}),
	store.NewStore,
	broadcast.NewBroadcaster,
)

var usecaseSet = wire.NewSet(
	NewRefreshBus,
	NewRefreshOptions,
	NewTreeResolver,
	usecase.NewRegistrar,
	usecase.NewRefreshService,
	usecase.NewDictUsecase,
)

var serviceSet = wire.NewSet(
	gateway.NewHandler,
	gateway.NewServeMux,
)

var serverSet = wire.NewSet(
	server.NewLogger,
	server.NewServer,
)

// Initialize builds the application container using Wire.
func Initialize() (*Container, func(), error) {
	wire.Build(
		configSet,
		databaseSet,
		repositorySet,
		usecaseSet,
		serviceSet,
		serverSet,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil, nil
}

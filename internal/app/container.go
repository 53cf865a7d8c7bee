package app

import (
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/infrastructure/config"
	"github.com/eslsoft/dictsync/internal/infrastructure/server"
	"github.com/eslsoft/dictsync/internal/repository"
	"github.com/eslsoft/dictsync/internal/usecase"
)

// Container aggregates the application dependencies produced by Wire.
type Container struct {
	Config      *config.Config
	Logger      *logrus.Logger
	Server      *server.Server
	Store       repository.Store
	Registrar   *usecase.Registrar
	Bus         *usecase.RefreshBus
	Refresh     *usecase.RefreshService
	Dict        usecase.DictUsecase
	Broadcaster repository.Broadcaster
}

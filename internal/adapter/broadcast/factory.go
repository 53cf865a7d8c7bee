package broadcast

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/infrastructure/config"
	"github.com/eslsoft/dictsync/internal/repository"
)

// NewBroadcaster selects the notice transport from config. It returns a nil
// Broadcaster for the `none` backend.
func NewBroadcaster(cfg *config.Config, rdb redis.UniversalClient, logger *logrus.Logger) (repository.Broadcaster, func(), error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Broadcast.Backend))
	noop := func() {}

	switch backend {
	case "", config.BroadcastNone:
		logger.Info("cross-instance refresh disabled")
		return nil, noop, nil
	case config.BroadcastRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("redis broadcast selected but redis.addr is empty")
		}
		return NewRedisBroadcaster(rdb, cfg.Broadcast.Channel, logger), noop, nil
	case config.BroadcastAMQP:
		b, err := DialAMQP(cfg.AMQP.URL, cfg.Broadcast.Channel, logger)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				logger.WithError(err).Warn("close amqp connection")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", entity.ErrUnknownBroadcastBackend, cfg.Broadcast.Backend)
	}
}

package broadcast

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

// RedisBroadcaster carries notices on a Redis pub/sub channel.
type RedisBroadcaster struct {
	rdb     redis.UniversalClient
	channel string
	logger  logrus.FieldLogger
}

var _ repository.Broadcaster = (*RedisBroadcaster)(nil)

// NewRedisBroadcaster publishes and subscribes on channel. The client is
// owned by the caller and is not closed by Close.
func NewRedisBroadcaster(rdb redis.UniversalClient, channel string, logger logrus.FieldLogger) *RedisBroadcaster {
	return &RedisBroadcaster{
		rdb:     rdb,
		channel: channel,
		logger:  logger.WithFields(logrus.Fields{"component": "redis-broadcast", "channel": channel}),
	}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, n *entity.Notice) error {
	payload, err := Encode(n)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, handle repository.NoticeHandler) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed before reporting ready
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("listening for refresh notices")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", b.channel)
			}
			deliver(ctx, b.logger, []byte(msg.Payload), handle)
		}
	}
}

func (b *RedisBroadcaster) Close() error { return nil }

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

// AMQPBroadcaster carries notices on a fanout exchange. Each subscriber binds
// its own server-named, exclusive, auto-deleted queue, so every process gets
// every notice and nothing outlives the process.
//
// A dropped connection is redialed on the next Publish or Subscribe.
type AMQPBroadcaster struct {
	url      string
	exchange string
	logger   logrus.FieldLogger

	mu   sync.Mutex
	conn *amqp.Connection
	pub  *amqp.Channel
}

var _ repository.Broadcaster = (*AMQPBroadcaster)(nil)

// DialAMQP connects to url and declares the fanout exchange.
func DialAMQP(url, exchange string, logger logrus.FieldLogger) (*AMQPBroadcaster, error) {
	b := &AMQPBroadcaster{
		url:      url,
		exchange: exchange,
		logger:   logger.WithFields(logrus.Fields{"component": "amqp-broadcast", "exchange": exchange}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.connectLocked(); err != nil {
		return nil, err
	}
	return b, nil
}

// connectLocked returns the live connection, redialing and redeclaring the
// exchange when the previous one is gone. b.mu must be held.
func (b *AMQPBroadcaster) connectLocked() (*amqp.Connection, error) {
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}
	redial := b.conn != nil

	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declareExchange(pub, b.exchange); err != nil {
		conn.Close()
		return nil, err
	}
	b.conn, b.pub = conn, pub
	if redial {
		b.logger.Info("amqp connection re-established")
	}
	return conn, nil
}

// publishChannelLocked reopens the publish channel after a channel-level
// error closed it. b.mu must be held.
func (b *AMQPBroadcaster) publishChannelLocked() (*amqp.Channel, error) {
	conn, err := b.connectLocked()
	if err != nil {
		return nil, err
	}
	if b.pub == nil || b.pub.IsClosed() {
		pub, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open amqp channel: %w", err)
		}
		b.pub = pub
	}
	return b.pub, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

func (b *AMQPBroadcaster) Publish(ctx context.Context, n *entity.Notice) error {
	payload, err := Encode(n)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pub, err := b.publishChannelLocked()
	if err != nil {
		return err
	}
	err = pub.PublishWithContext(ctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		AppId:       n.OriginatingInstance,
		Body:        payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", b.exchange, err)
	}
	return nil
}

// Subscribe consumes until ctx is done or the connection drops. Callers
// resubscribe after an error; the next call redials.
func (b *AMQPBroadcaster) Subscribe(ctx context.Context, handle repository.NoticeHandler) error {
	b.mu.Lock()
	conn, err := b.connectLocked()
	b.mu.Unlock()
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", q.Name, b.exchange, err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	b.logger.WithField("queue", q.Name).Info("listening for refresh notices")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			deliver(ctx, b.logger, d.Body, handle)
		}
	}
}

func (b *AMQPBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	return b.conn.Close()
}

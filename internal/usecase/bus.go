package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrBusClosed is returned by Publish after Run has returned.
var ErrBusClosed = errors.New("refresh bus closed")

// Handler reacts to one event kind.
type Handler func(ctx context.Context, ev Event) error

// RefreshBus is the in-process event bus. Publish enqueues on a buffered
// channel and a single Run loop dispatches each event to the handlers
// subscribed to its kind, in subscription order.
type RefreshBus struct {
	events chan Event
	done   chan struct{}

	mu       sync.RWMutex
	handlers map[EventKind][]Handler

	logger logrus.FieldLogger
}

func NewRefreshBus(size int, logger *logrus.Logger) *RefreshBus {
	if size <= 0 {
		size = 64
	}
	return &RefreshBus{
		events:   make(chan Event, size),
		done:     make(chan struct{}),
		handlers: make(map[EventKind][]Handler),
		logger:   logger.WithField("component", "refresh-bus"),
	}
}

// Subscribe registers h for events of kind.
func (b *RefreshBus) Subscribe(kind EventKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish enqueues ev, blocking while the queue is full.
func (b *RefreshBus) Publish(ctx context.Context, ev Event) error {
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}
	select {
	case b.events <- ev:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch runs the handlers for ev on the calling goroutine and joins their errors.
func (b *RefreshBus) Dispatch(ctx context.Context, ev Event) error {
	b.mu.RLock()
	handlers := b.handlers[ev.Kind()]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debugf("no handler for %s event", ev.Kind())
		return nil
	}
	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", ev.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// Run dispatches queued events until ctx is done. Handler errors are logged.
func (b *RefreshBus) Run(ctx context.Context) error {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-b.events:
			if err := b.Dispatch(ctx, ev); err != nil {
				b.logger.WithError(err).Errorf("%s refresh failed", ev.Kind())
			}
		}
	}
}

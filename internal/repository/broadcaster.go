package repository

import (
	"context"

	"github.com/eslsoft/dictsync/internal/entity"
)

// NoticeHandler consumes a decoded inbound notice.
type NoticeHandler func(ctx context.Context, notice *entity.Notice)

// Broadcaster carries refresh notices between instances.
//
// Publish is fire-and-forget from the caller's point of view. Subscribe
// blocks until ctx is done, delivering every notice on the shared channel,
// including the ones this instance published. Undecodable payloads are
// logged and dropped by the implementation.
type Broadcaster interface {
	Publish(ctx context.Context, notice *entity.Notice) error
	Subscribe(ctx context.Context, handle NoticeHandler) error
	Close() error
}

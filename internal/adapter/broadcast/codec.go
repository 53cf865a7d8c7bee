package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

// Encode serializes a notice into the wire format shared by every transport.
func Encode(n *entity.Notice) ([]byte, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notice: %w", err)
	}
	return payload, nil
}

// Decode parses a wire payload. Notices without an originating instance are rejected.
func Decode(payload []byte) (*entity.Notice, error) {
	var n entity.Notice
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidNotice, err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// deliver decodes payload and hands it to handle. Undecodable payloads are
// logged and dropped so one bad message never stops a listener.
func deliver(ctx context.Context, logger logrus.FieldLogger, payload []byte, handle repository.NoticeHandler) {
	n, err := Decode(payload)
	if err != nil {
		logger.WithError(err).WithField("size", len(payload)).Warn("drop undecodable notice")
		return
	}
	handle(ctx, n)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

// RedisStore keeps dictionaries in Redis.
//
// Full types are JSON strings under `type:<code>` (and `system-type:<code>`
// for system dictionaries). Titles and parent links are two hashes per type,
// `value:<code>` and `parent:<code>`, keyed by value.
type RedisStore struct {
	rdb       redis.UniversalClient
	keys      KeyLayout
	batchSize int
	fallback  repository.Fallback
	logger    logrus.FieldLogger
}

var _ repository.Store = (*RedisStore)(nil)

// RedisOption tunes a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyLayout overrides the key prefixes.
func WithKeyLayout(keys KeyLayout) RedisOption {
	return func(s *RedisStore) { s.keys = keys }
}

// WithBatchSize sets the StoreBatch chunk size.
func WithBatchSize(size int) RedisOption {
	return func(s *RedisStore) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithFallback sets the lookup of last resort.
func WithFallback(fallback repository.Fallback) RedisOption {
	return func(s *RedisStore) {
		if fallback != nil {
			s.fallback = fallback
		}
	}
}

// NewRedisStore creates a store over rdb.
func NewRedisStore(rdb redis.UniversalClient, logger logrus.FieldLogger, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:       rdb,
		keys:      DefaultKeyLayout(),
		batchSize: repository.DefaultBatchSize,
		fallback:  repository.NoFallback{},
		logger:    logger.WithField("component", "redis-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) StoreType(ctx context.Context, t *entity.DictType) error {
	return s.storeType(ctx, t, false)
}

func (s *RedisStore) StoreSystemType(ctx context.Context, t *entity.DictType) error {
	return s.storeType(ctx, t, true)
}

func (s *RedisStore) storeType(ctx context.Context, t *entity.DictType, system bool) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.IsTombstone() {
		return s.RemoveType(ctx, t.Type)
	}
	stored := t.Clone().Normalize()
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode type %s: %w", stored.Type, err)
	}

	mirrored := system
	if !mirrored {
		n, err := s.rdb.Exists(ctx, s.keys.SystemType(stored.Type)).Result()
		if err != nil {
			return fmt.Errorf("check system type %s: %w", stored.Type, err)
		}
		mirrored = n > 0
	}

	titles := make([]any, 0, 2*len(stored.Children))
	parents := make([]any, 0)
	for _, child := range stored.Children {
		if child.IsTombstone() {
			continue
		}
		titles = append(titles, child.Value, child.Text())
		if child.ParentValue != "" {
			parents = append(parents, child.Value, child.ParentValue)
		}
	}

	// A full type replaces whatever values the type had before.
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keys.Type(stored.Type), payload, 0)
		if mirrored {
			pipe.Set(ctx, s.keys.SystemType(stored.Type), payload, 0)
		}
		pipe.Del(ctx, s.keys.Values(stored.Type), s.keys.Parents(stored.Type))
		if len(titles) > 0 {
			pipe.HSet(ctx, s.keys.Values(stored.Type), titles...)
		}
		if len(parents) > 0 {
			pipe.HSet(ctx, s.keys.Parents(stored.Type), parents...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store type %s: %w", stored.Type, err)
	}
	return nil
}

func (s *RedisStore) StoreValues(ctx context.Context, values iter.Seq[*entity.DictValue]) error {
	for v := range values {
		if err := v.Validate(); err != nil {
			s.logger.WithError(err).Warnf("skip invalid value %+v", v)
			continue
		}
		_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queueValue(ctx, pipe, v)
			return nil
		})
		if err != nil {
			return fmt.Errorf("store value %s:%s: %w", v.DictType, v.Value, err)
		}
	}
	return nil
}

// StoreBatch writes values in pipelined chunks. A failed chunk is logged and
// skipped; only context cancellation stops the pass.
func (s *RedisStore) StoreBatch(ctx context.Context, values iter.Seq[*entity.DictValue]) error {
	chunk := make([]*entity.DictValue, 0, s.batchSize)
	written, failed := 0, 0
	flush := func() {
		if len(chunk) == 0 {
			return
		}
		_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, v := range chunk {
				s.queueValue(ctx, pipe, v)
			}
			return nil
		})
		if err != nil {
			failed += len(chunk)
			s.logger.WithError(err).Errorf("batch of %d values failed, continuing", len(chunk))
		} else {
			written += len(chunk)
		}
		chunk = chunk[:0]
	}

	for v := range values {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := v.Validate(); err != nil {
			s.logger.WithError(err).Warnf("skip invalid value %+v", v)
			continue
		}
		chunk = append(chunk, v)
		if len(chunk) >= s.batchSize {
			flush()
		}
	}
	flush()

	s.logger.WithFields(logrus.Fields{"written": written, "failed": failed}).Debug("batch store finished")
	return ctx.Err()
}

func (s *RedisStore) queueValue(ctx context.Context, pipe redis.Pipeliner, v *entity.DictValue) {
	if v.IsTombstone() {
		pipe.HDel(ctx, s.keys.Values(v.DictType), v.Value)
		pipe.HDel(ctx, s.keys.Parents(v.DictType), v.Value)
		return
	}
	pipe.HSet(ctx, s.keys.Values(v.DictType), v.Value, v.Text())
	if v.ParentValue != "" {
		pipe.HSet(ctx, s.keys.Parents(v.DictType), v.Value, v.ParentValue)
	} else {
		pipe.HDel(ctx, s.keys.Parents(v.DictType), v.Value)
	}
}

func (s *RedisStore) RemoveType(ctx context.Context, code string) error {
	err := s.rdb.Del(ctx,
		s.keys.Type(code),
		s.keys.SystemType(code),
		s.keys.Values(code),
		s.keys.Parents(code),
	).Err()
	if err != nil {
		return fmt.Errorf("remove type %s: %w", code, err)
	}
	return nil
}

func (s *RedisStore) GetType(ctx context.Context, code string) (*entity.DictType, error) {
	payload, err := s.rdb.Get(ctx, s.keys.Type(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.fallback.GetType(ctx, code)
	}
	if err != nil {
		return nil, fmt.Errorf("get type %s: %w", code, err)
	}
	var t entity.DictType
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("decode type %s: %w", code, err)
	}
	if t.Children == nil {
		t.Children = []*entity.DictValue{}
	}
	return &t, nil
}

func (s *RedisStore) GetText(ctx context.Context, code, value string) (string, bool, error) {
	title, err := s.rdb.HGet(ctx, s.keys.Values(code), value).Result()
	if errors.Is(err, redis.Nil) {
		return s.fallback.GetText(ctx, code, value)
	}
	if err != nil {
		return "", false, fmt.Errorf("get text %s:%s: %w", code, value, err)
	}
	return title, true, nil
}

func (s *RedisStore) GetParentValue(ctx context.Context, code, value string) (string, bool, error) {
	parent, err := s.rdb.HGet(ctx, s.keys.Parents(code), value).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get parent %s:%s: %w", code, value, err)
	}
	return parent, true, nil
}

func (s *RedisStore) TypeKeys(ctx context.Context) ([]string, error) {
	return s.scanCodes(ctx, s.keys.TypePrefix)
}

func (s *RedisStore) SystemTypeKeys(ctx context.Context) ([]string, error) {
	return s.scanCodes(ctx, s.keys.SystemTypePrefix)
}

func (s *RedisStore) scanCodes(ctx context.Context, prefix string) ([]string, error) {
	codes := make([]string, 0)
	it := s.rdb.Scan(ctx, 0, escapeGlob(prefix)+"*", 256).Iterator()
	for it.Next(ctx) {
		codes = append(codes, strings.TrimPrefix(it.Val(), prefix))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("scan %s*: %w", prefix, err)
	}
	slices.Sort(codes)
	return slices.Compact(codes), nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }

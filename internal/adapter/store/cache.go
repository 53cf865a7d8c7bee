package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

// CachedStore is a size- and TTL-bounded read-through cache in front of a Store.
//
// Entries expire by TTL only; writes pass straight through and do not
// invalidate. A key that has missed maxMisses times within one TTL window
// is answered as a miss without consulting the store until the window ends.
type CachedStore struct {
	repository.Store

	maxMisses int
	types     *expirable.LRU[string, *entity.DictType]
	texts     *expirable.LRU[string, string]
	misses    *expirable.LRU[string, int]
}

var _ repository.Store = (*CachedStore)(nil)

// NewCachedStore wraps next. maxMisses <= 0 disables fast-fail.
func NewCachedStore(next repository.Store, size int, ttl time.Duration, maxMisses int) *CachedStore {
	if size <= 0 {
		size = 1024
	}
	return &CachedStore{
		Store:     next,
		maxMisses: maxMisses,
		types:     expirable.NewLRU[string, *entity.DictType](size, nil, ttl),
		texts:     expirable.NewLRU[string, string](size, nil, ttl),
		misses:    expirable.NewLRU[string, int](size, nil, ttl),
	}
}

// Unwrap returns the store behind the cache.
func (c *CachedStore) Unwrap() repository.Store { return c.Store }

func (c *CachedStore) GetType(ctx context.Context, code string) (*entity.DictType, error) {
	key := "t\x00" + code
	if t, ok := c.types.Get(key); ok {
		return t.Clone(), nil
	}
	if c.fastFail(key) {
		return nil, nil
	}
	t, err := c.Store.GetType(ctx, code)
	if err != nil {
		return nil, err
	}
	if t == nil {
		c.miss(key)
		return nil, nil
	}
	c.types.Add(key, t.Clone())
	return t, nil
}

func (c *CachedStore) GetText(ctx context.Context, code, value string) (string, bool, error) {
	key := "v\x00" + code + "\x00" + value
	if title, ok := c.texts.Get(key); ok {
		return title, true, nil
	}
	if c.fastFail(key) {
		return "", false, nil
	}
	title, ok, err := c.Store.GetText(ctx, code, value)
	if err != nil {
		return "", false, err
	}
	if !ok {
		c.miss(key)
		return "", false, nil
	}
	c.texts.Add(key, title)
	return title, true, nil
}

func (c *CachedStore) fastFail(key string) bool {
	if c.maxMisses <= 0 {
		return false
	}
	n, ok := c.misses.Peek(key)
	return ok && n >= c.maxMisses
}

// miss counts a lookup miss. Each miss extends the key's window by one TTL.
func (c *CachedStore) miss(key string) {
	if c.maxMisses <= 0 {
		return
	}
	n, _ := c.misses.Peek(key)
	c.misses.Add(key, n+1)
}

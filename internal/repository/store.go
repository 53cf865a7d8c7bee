package repository

import (
	"context"
	"iter"

	"github.com/eslsoft/dictsync/internal/entity"
)

// DefaultBatchSize is the chunk size used by StoreBatch when none is configured.
const DefaultBatchSize = 1000

// Store defines where dictionary mappings live.
//
// Implementations must be safe for concurrent readers and writers and must
// produce identical observable results for the same sequence of calls.
// Lookup misses are not errors: GetType returns nil and GetText reports false.
type Store interface {
	// StoreType upserts t, or deletes it with all its values when t is a tombstone.
	StoreType(ctx context.Context, t *entity.DictType) error
	// StoreSystemType behaves like StoreType and additionally mirrors t into
	// the system-type namespace.
	StoreSystemType(ctx context.Context, t *entity.DictType) error
	// StoreValues upserts each value's title and parent link, or deletes both
	// for tombstones.
	StoreValues(ctx context.Context, values iter.Seq[*entity.DictValue]) error
	// StoreBatch is StoreValues with grouped writes. Backend failures inside a
	// chunk are logged and the remaining chunks are still written.
	StoreBatch(ctx context.Context, values iter.Seq[*entity.DictValue]) error
	// RemoveType deletes the type record and every value under it.
	RemoveType(ctx context.Context, code string) error

	GetType(ctx context.Context, code string) (*entity.DictType, error)
	GetText(ctx context.Context, code, value string) (string, bool, error)
	// GetParentValue never consults the fallback; parent links are local metadata.
	GetParentValue(ctx context.Context, code, value string) (string, bool, error)
	TypeKeys(ctx context.Context) ([]string, error)
	SystemTypeKeys(ctx context.Context) ([]string, error)
}

// Fallback is the last-resort lookup used when a key is absent from a Store.
type Fallback interface {
	GetType(ctx context.Context, code string) (*entity.DictType, error)
	GetText(ctx context.Context, code, value string) (string, bool, error)
}

// NoFallback always misses.
type NoFallback struct{}

func (NoFallback) GetType(context.Context, string) (*entity.DictType, error) { return nil, nil }

func (NoFallback) GetText(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}

// Unwrapper is implemented by stores that decorate another store, such as a
// read cache.
type Unwrapper interface {
	Unwrap() Store
}

// Uncached strips every decorator from s and returns the backing store.
// Writers that read before they write use it so they never see cached data.
func Uncached(s Store) Store {
	for {
		u, ok := s.(Unwrapper)
		if !ok {
			return s
		}
		s = u.Unwrap()
	}
}

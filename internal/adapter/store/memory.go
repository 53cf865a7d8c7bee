package store

import (
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

// MemoryStore keeps dictionaries in process.
//
// Every namespace is a sync.Map keyed by type code; values and parent links
// live in one nested sync.Map per type so that deleting a type only touches
// that type's entries. Readers never take a lock.
type MemoryStore struct {
	fallback repository.Fallback
	logger   logrus.FieldLogger

	types       sync.Map // code -> *entity.DictType
	systemTypes sync.Map // code -> *entity.DictType
	values      sync.Map // code -> *sync.Map(value -> title)
	parents     sync.Map // code -> *sync.Map(value -> parent value)
}

var _ repository.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process store. A nil fallback always misses.
func NewMemoryStore(fallback repository.Fallback, logger logrus.FieldLogger) *MemoryStore {
	if fallback == nil {
		fallback = repository.NoFallback{}
	}
	return &MemoryStore{fallback: fallback, logger: logger.WithField("component", "memory-store")}
}

func (s *MemoryStore) StoreType(ctx context.Context, t *entity.DictType) error {
	return s.storeType(ctx, t, false)
}

func (s *MemoryStore) StoreSystemType(ctx context.Context, t *entity.DictType) error {
	return s.storeType(ctx, t, true)
}

func (s *MemoryStore) storeType(ctx context.Context, t *entity.DictType, system bool) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.IsTombstone() {
		return s.RemoveType(ctx, t.Type)
	}
	stored := t.Clone().Normalize()
	s.types.Store(stored.Type, stored)
	if _, mirrored := s.systemTypes.Load(stored.Type); system || mirrored {
		s.systemTypes.Store(stored.Type, stored)
	}

	// A full type replaces whatever values the type had before.
	values, parents := &sync.Map{}, &sync.Map{}
	for _, child := range stored.Children {
		if child.IsTombstone() {
			continue
		}
		values.Store(child.Value, child.Text())
		if child.ParentValue != "" {
			parents.Store(child.Value, child.ParentValue)
		}
	}
	s.values.Store(stored.Type, values)
	s.parents.Store(stored.Type, parents)
	return nil
}

func (s *MemoryStore) StoreValues(ctx context.Context, values iter.Seq[*entity.DictValue]) error {
	for v := range values {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := v.Validate(); err != nil {
			s.logger.WithError(err).Warnf("skip invalid value %+v", v)
			continue
		}
		s.storeValue(v)
	}
	return nil
}

// StoreBatch is StoreValues; there is nothing to group in process.
func (s *MemoryStore) StoreBatch(ctx context.Context, values iter.Seq[*entity.DictValue]) error {
	return s.StoreValues(ctx, values)
}

func (s *MemoryStore) storeValue(v *entity.DictValue) {
	if v.IsTombstone() {
		if bucket, ok := loadBucket(&s.values, v.DictType); ok {
			bucket.Delete(v.Value)
		}
		if bucket, ok := loadBucket(&s.parents, v.DictType); ok {
			bucket.Delete(v.Value)
		}
		return
	}
	bucket(&s.values, v.DictType).Store(v.Value, v.Text())
	if v.ParentValue != "" {
		bucket(&s.parents, v.DictType).Store(v.Value, v.ParentValue)
	} else if parents, ok := loadBucket(&s.parents, v.DictType); ok {
		parents.Delete(v.Value)
	}
}

func (s *MemoryStore) RemoveType(_ context.Context, code string) error {
	s.types.Delete(code)
	s.systemTypes.Delete(code)
	s.values.Delete(code)
	s.parents.Delete(code)
	return nil
}

func (s *MemoryStore) GetType(ctx context.Context, code string) (*entity.DictType, error) {
	if t, ok := s.types.Load(code); ok {
		return t.(*entity.DictType).Clone(), nil
	}
	return s.fallback.GetType(ctx, code)
}

func (s *MemoryStore) GetText(ctx context.Context, code, value string) (string, bool, error) {
	if values, ok := loadBucket(&s.values, code); ok {
		if title, ok := values.Load(value); ok {
			return title.(string), true, nil
		}
	}
	return s.fallback.GetText(ctx, code, value)
}

func (s *MemoryStore) GetParentValue(_ context.Context, code, value string) (string, bool, error) {
	if parents, ok := loadBucket(&s.parents, code); ok {
		if parent, ok := parents.Load(value); ok {
			return parent.(string), true, nil
		}
	}
	return "", false, nil
}

func (s *MemoryStore) TypeKeys(context.Context) ([]string, error) {
	return rangeKeys(&s.types), nil
}

func (s *MemoryStore) SystemTypeKeys(context.Context) ([]string, error) {
	return rangeKeys(&s.systemTypes), nil
}

func bucket(m *sync.Map, code string) *sync.Map {
	b, _ := m.LoadOrStore(code, &sync.Map{})
	return b.(*sync.Map)
}

func loadBucket(m *sync.Map, code string) (*sync.Map, bool) {
	b, ok := m.Load(code)
	if !ok {
		return nil, false
	}
	return b.(*sync.Map), true
}

func rangeKeys(m *sync.Map) []string {
	keys := make([]string, 0)
	m.Range(func(key, _ any) bool {
		keys = append(keys, key.(string))
		return true
	})
	slices.Sort(keys)
	return keys
}

package repository

import (
	"context"
	"iter"

	"github.com/samber/lo"

	"github.com/eslsoft/dictsync/internal/entity"
)

// Source is a pluggable producer of dictionary data. Every source is exactly
// one of TypeSource or ValueSource; the Registrar switches on that.
type Source interface {
	Name() string
	// SupportsRefresh reports whether a refresh scoped to names includes this source.
	SupportsRefresh(names []string) bool
}

// TypeSource produces complete types. Its types are stored as full records
// in addition to their values.
type TypeSource interface {
	Source
	Types(ctx context.Context) iter.Seq2[*entity.DictType, error]
}

// ValueSource streams values without ever materializing a full type.
type ValueSource interface {
	Source
	Values(ctx context.Context) iter.Seq2[*entity.DictValue, error]
}

// SystemSource is implemented by sources of statically declared dictionaries;
// their types are mirrored into the system-type namespace.
type SystemSource interface {
	System() bool
}

// SourceName provides Name and the default SupportsRefresh for embedding.
type SourceName string

func (n SourceName) Name() string { return string(n) }

// SupportsRefresh is true for an empty filter, otherwise a membership test.
func (n SourceName) SupportsRefresh(names []string) bool {
	return len(names) == 0 || lo.Contains(names, string(n))
}

// FlattenValues derives the value stream of a TypeSource from its types.
// Tombstone types contribute no values.
func FlattenValues(ctx context.Context, src TypeSource) iter.Seq2[*entity.DictValue, error] {
	return func(yield func(*entity.DictValue, error) bool) {
		for t, err := range src.Types(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if t == nil {
				continue
			}
			for _, child := range t.Normalize().Children {
				if child == nil {
					continue
				}
				if !yield(child, nil) {
					return
				}
			}
		}
	}
}

// ValuesOf returns the value stream of either source variant.
func ValuesOf(ctx context.Context, src Source) iter.Seq2[*entity.DictValue, error] {
	switch s := src.(type) {
	case ValueSource:
		return s.Values(ctx)
	case TypeSource:
		return FlattenValues(ctx, s)
	default:
		return func(func(*entity.DictValue, error) bool) {}
	}
}

// IsSystem reports whether src declares system dictionaries.
func IsSystem(src Source) bool {
	s, ok := src.(SystemSource)
	return ok && s.System()
}

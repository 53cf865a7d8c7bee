package source

import (
	"context"
	"fmt"
	"iter"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

// StaticSource serves dictionaries declared in code or in a file. Its types
// are system types.
type StaticSource struct {
	repository.SourceName
	types []*entity.DictType
}

var (
	_ repository.TypeSource   = (*StaticSource)(nil)
	_ repository.SystemSource = (*StaticSource)(nil)
)

// NewStaticSource declares types in code. A type without children is declared
// empty, never as a tombstone.
func NewStaticSource(name string, types ...*entity.DictType) *StaticSource {
	declared := make([]*entity.DictType, 0, len(types))
	for _, t := range types {
		if t == nil {
			continue
		}
		t = t.Clone()
		if t.Children == nil {
			t.Children = []*entity.DictValue{}
		}
		declared = append(declared, t.Normalize())
	}
	return &StaticSource{SourceName: repository.SourceName(name), types: declared}
}

// LoadStaticFile reads a `types` list from any file format viper understands.
//
//	types:
//	  - type: Gender
//	    title: Gender
//	    children:
//	      - {value: f, title: Female}
//	      - {value: m, title: Male}
func LoadStaticFile(name, path string) (*StaticSource, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read static dictionaries %s: %w", path, err)
	}

	var types []*entity.DictType
	err := v.UnmarshalKey("types", &types, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
	})
	if err != nil {
		return nil, fmt.Errorf("decode static dictionaries %s: %w", path, err)
	}
	for _, t := range types {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("static dictionaries %s: %w", path, err)
		}
	}
	return NewStaticSource(name, types...), nil
}

func (s *StaticSource) System() bool { return true }

func (s *StaticSource) Types(context.Context) iter.Seq2[*entity.DictType, error] {
	return func(yield func(*entity.DictType, error) bool) {
		for _, t := range s.types {
			if !yield(t.Clone(), nil) {
				return
			}
		}
	}
}

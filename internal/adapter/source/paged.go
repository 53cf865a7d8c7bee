package source

import (
	"context"
	"fmt"
	"iter"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

// PageFunc fetches up to limit values positioned after cursor and returns the
// cursor of the last one. A short page ends the stream.
type PageFunc func(ctx context.Context, cursor int64, limit int) (values []*entity.DictValue, next int64, err error)

// PagedSource streams values from a paged feed without holding more than one
// page in memory.
type PagedSource struct {
	repository.SourceName
	pageSize int
	fetch    PageFunc
}

var _ repository.ValueSource = (*PagedSource)(nil)

func NewPagedSource(name string, pageSize int, fetch PageFunc) *PagedSource {
	if pageSize <= 0 {
		pageSize = repository.DefaultBatchSize
	}
	return &PagedSource{SourceName: repository.SourceName(name), pageSize: pageSize, fetch: fetch}
}

func (s *PagedSource) Values(ctx context.Context) iter.Seq2[*entity.DictValue, error] {
	return func(yield func(*entity.DictValue, error) bool) {
		var cursor int64
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			values, next, err := s.fetch(ctx, cursor, s.pageSize)
			if err != nil {
				yield(nil, fmt.Errorf("fetch page %d of %s: %w", page, s.Name(), err))
				return
			}
			for _, v := range values {
				if !yield(v, nil) {
					return
				}
			}
			if len(values) < s.pageSize || next <= cursor {
				return
			}
			cursor = next
		}
	}
}

package source

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"github.com/eslsoft/dictsync/internal/entity"
)

// Querier is the part of pgxpool.Pool the stream source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type valueRow struct {
	ID          int64  `db:"id"`
	DictType    string `db:"dict_type"`
	Value       string `db:"value"`
	Title       string `db:"title"`
	ParentValue string `db:"parent_value"`
	Sorted      int    `db:"sorted"`
}

const streamQuery = `SELECT id, dict_type, value, title, parent_value, sorted
FROM dict_values
WHERE id > $1
ORDER BY id
LIMIT $2`

// NewStreamSource pages through dict_values by id on postgres. It never
// materializes full types, so it suits dictionaries too large for one record.
func NewStreamSource(name string, db Querier, pageSize int) *PagedSource {
	return NewPagedSource(name, pageSize, func(ctx context.Context, cursor int64, limit int) ([]*entity.DictValue, int64, error) {
		rows, err := db.Query(ctx, streamQuery, cursor, limit)
		if err != nil {
			return nil, cursor, err
		}
		records, err := pgx.CollectRows(rows, pgx.RowToStructByName[valueRow])
		if err != nil {
			return nil, cursor, err
		}
		if len(records) == 0 {
			return nil, cursor, nil
		}
		values := lo.Map(records, func(r valueRow, _ int) *entity.DictValue {
			v := entity.NewDictValue(r.DictType, r.Value, r.Title)
			v.ParentValue = r.ParentValue
			v.Sorted = r.Sorted
			return v
		})
		return values, records[len(records)-1].ID, nil
	})
}

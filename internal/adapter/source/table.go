package source

import (
	"context"
	"fmt"
	"iter"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
)

const (
	typesTable  = "dict_types"
	valuesTable = "dict_values"
)

// TableSource reads full types from the dict_types and dict_values tables.
// It also owns writes to those tables for the import command.
type TableSource struct {
	repository.SourceName
	drv dialect.Driver
}

var _ repository.TypeSource = (*TableSource)(nil)

func NewTableSource(name string, drv dialect.Driver) *TableSource {
	return &TableSource{SourceName: repository.SourceName(name), drv: drv}
}

func (s *TableSource) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.drv.Dialect())
}

// Types yields every type with its values ordered by sorted, then id.
// Types without rows in dict_values are yielded with empty children.
func (s *TableSource) Types(ctx context.Context) iter.Seq2[*entity.DictType, error] {
	return func(yield func(*entity.DictType, error) bool) {
		types, err := s.loadTypes(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		children, err := s.loadValues(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, t := range types {
			if c, ok := children[t.Type]; ok {
				t.Children = c
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (s *TableSource) loadTypes(ctx context.Context) ([]*entity.DictType, error) {
	query, args := s.builder().
		Select("type", "title", "remark").
		From(entsql.Table(typesTable)).
		OrderBy("type").
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("query %s: %w", typesTable, err)
	}
	defer rows.Close()

	types := make([]*entity.DictType, 0)
	for rows.Next() {
		t := &entity.DictType{Children: []*entity.DictValue{}}
		if err := rows.Scan(&t.Type, &t.Title, &t.Remark); err != nil {
			return nil, fmt.Errorf("scan %s: %w", typesTable, err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", typesTable, err)
	}
	return types, nil
}

func (s *TableSource) loadValues(ctx context.Context) (map[string][]*entity.DictValue, error) {
	query, args := s.builder().
		Select("dict_type", "value", "title", "parent_value", "sorted").
		From(entsql.Table(valuesTable)).
		OrderBy("dict_type", "sorted", "id").
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("query %s: %w", valuesTable, err)
	}
	defer rows.Close()

	children := make(map[string][]*entity.DictValue)
	for rows.Next() {
		var (
			v     entity.DictValue
			title string
		)
		if err := rows.Scan(&v.DictType, &v.Value, &title, &v.ParentValue, &v.Sorted); err != nil {
			return nil, fmt.Errorf("scan %s: %w", valuesTable, err)
		}
		v.Title = &title
		children[v.DictType] = append(children[v.DictType], &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", valuesTable, err)
	}
	return children, nil
}

// SaveTypes replaces the rows of each type in one transaction. A tombstone
// type deletes its rows; tombstone children are skipped.
func (s *TableSource) SaveTypes(ctx context.Context, types []*entity.DictType) (err error) {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, t := range types {
		if err = t.Validate(); err != nil {
			return err
		}
		if err = s.saveType(ctx, tx, t.Normalize()); err != nil {
			return fmt.Errorf("save type %s: %w", t.Type, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *TableSource) saveType(ctx context.Context, tx dialect.ExecQuerier, t *entity.DictType) error {
	b := s.builder()
	for _, table := range []struct{ name, column string }{{valuesTable, "dict_type"}, {typesTable, "type"}} {
		query, args := b.Delete(table.name).Where(entsql.EQ(table.column, t.Type)).Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return err
		}
	}
	if t.IsTombstone() {
		return nil
	}

	query, args := b.Insert(typesTable).
		Columns("type", "title", "remark").
		Values(t.Type, t.Title, t.Remark).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return err
	}

	live := make([]*entity.DictValue, 0, len(t.Children))
	for _, v := range t.Children {
		if !v.IsTombstone() {
			live = append(live, v)
		}
	}
	if len(live) == 0 {
		return nil
	}
	insert := b.Insert(valuesTable).Columns("dict_type", "value", "title", "parent_value", "sorted")
	for _, v := range live {
		insert.Values(v.DictType, v.Value, v.Text(), v.ParentValue, v.Sorted)
	}
	query, args = insert.Query()
	return tx.Exec(ctx, query, args, nil)
}

package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/repository"
	"github.com/eslsoft/dictsync/pkg/filterexpr"
)

// DictUsecase is the read and trigger API used by the management endpoints.
type DictUsecase interface {
	ListTypes(ctx context.Context, query ListTypesQuery) ([]*entity.DictType, error)
	GetType(ctx context.Context, code string) (*entity.DictType, error)
	LookupValue(ctx context.Context, code, value string) (*entity.ValueLookup, error)
	Refresh(ctx context.Context, ev FullRefresh) error
	PutTypes(ctx context.Context, ev TypeRefresh) error
	PutValues(ctx context.Context, ev ValueRefresh) error
}

// ListTypesQuery selects types for ListTypes. Filter is a CEL expression over
// type, title, remark, size and system.
type ListTypesQuery struct {
	Filter     string
	SystemOnly bool
}

var typeFilterSchema = filterexpr.Schema{
	"type":   filterexpr.KindString,
	"title":  filterexpr.KindString,
	"remark": filterexpr.KindString,
	"size":   filterexpr.KindInt,
	"system": filterexpr.KindBool,
}

type dictUsecase struct {
	store repository.Store
	tree  *TreeResolver
	bus   *RefreshBus
}

func NewDictUsecase(store repository.Store, tree *TreeResolver, bus *RefreshBus) DictUsecase {
	return &dictUsecase{store: store, tree: tree, bus: bus}
}

func (u *dictUsecase) ListTypes(ctx context.Context, query ListTypesQuery) ([]*entity.DictType, error) {
	prg, err := filterexpr.Compile(query.Filter, typeFilterSchema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidFilter, err)
	}

	system, err := u.store.SystemTypeKeys(ctx)
	if err != nil {
		return nil, err
	}
	codes := system
	if !query.SystemOnly {
		if codes, err = u.store.TypeKeys(ctx); err != nil {
			return nil, err
		}
	}

	types := make([]*entity.DictType, 0, len(codes))
	for _, code := range codes {
		t, err := u.store.GetType(ctx, code)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		ok, err := prg.Match(map[string]any{
			"type":   t.Type,
			"title":  t.Title,
			"remark": t.Remark,
			"size":   int64(len(t.Children)),
			"system": lo.Contains(system, code),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", entity.ErrInvalidFilter, err)
		}
		if ok {
			types = append(types, t)
		}
	}
	return types, nil
}

func (u *dictUsecase) GetType(ctx context.Context, code string) (*entity.DictType, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, entity.ErrInvalidDictType
	}
	t, err := u.store.GetType(ctx, code)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, entity.ErrDictTypeNotFound
	}
	return t, nil
}

func (u *dictUsecase) LookupValue(ctx context.Context, code, value string) (*entity.ValueLookup, error) {
	code = strings.TrimSpace(code)
	if code == "" || value == "" {
		return nil, entity.ErrInvalidDictValue
	}
	title, ok, err := u.store.GetText(ctx, code, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, entity.ErrDictValueNotFound
	}
	parents, err := u.tree.Ancestors(ctx, code, value)
	if err != nil {
		return nil, err
	}
	return &entity.ValueLookup{DictType: code, Value: value, Title: title, Parents: parents}, nil
}

func (u *dictUsecase) Refresh(ctx context.Context, ev FullRefresh) error {
	if strings.TrimSpace(ev.Reason) == "" {
		ev.Reason = "manual refresh"
	}
	return u.bus.Publish(ctx, ev)
}

func (u *dictUsecase) PutTypes(ctx context.Context, ev TypeRefresh) error {
	if len(ev.Types) == 0 {
		return entity.ErrInvalidDictType
	}
	for _, t := range ev.Types {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return u.bus.Publish(ctx, ev)
}

func (u *dictUsecase) PutValues(ctx context.Context, ev ValueRefresh) error {
	if len(ev.Values) == 0 {
		return entity.ErrInvalidDictValue
	}
	for _, v := range ev.Values {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return u.bus.Publish(ctx, ev)
}

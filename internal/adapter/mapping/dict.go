package mapping

import (
	"github.com/eslsoft/dictsync/internal/entity"
	"github.com/eslsoft/dictsync/internal/usecase"
)

// RefreshRequest is the body of a full refresh trigger.
type RefreshRequest struct {
	Reason            string   `json:"reason"`
	Sources           []string `json:"sources"`
	NotifyOthers      bool     `json:"notifyOthers"`
	NotifyOwnReplicas bool     `json:"notifyOwnReplicas"`
}

func (r *RefreshRequest) ToEvent() usecase.FullRefresh {
	return usecase.FullRefresh{
		Reason:            r.Reason,
		Sources:           r.Sources,
		NotifyOthers:      r.NotifyOthers,
		NotifyOwnReplicas: r.NotifyOwnReplicas,
	}
}

// PutTypesRequest replaces whole types. A type sent with "children": null is deleted.
type PutTypesRequest struct {
	Types             []*entity.DictType `json:"types"`
	NotifyOthers      bool               `json:"notifyOthers"`
	NotifyOwnReplicas bool               `json:"notifyOwnReplicas"`
}

func (r *PutTypesRequest) ToEvent() usecase.TypeRefresh {
	return usecase.TypeRefresh{
		Types:             r.Types,
		NotifyOthers:      r.NotifyOthers,
		NotifyOwnReplicas: r.NotifyOwnReplicas,
	}
}

// PutValuesRequest upserts single values. A value sent with "title": null is deleted.
type PutValuesRequest struct {
	Values            []*entity.DictValue `json:"values"`
	MaintainType      bool                `json:"maintainType"`
	DeleteOrphanType  bool                `json:"deleteOrphanType"`
	NotifyOthers      bool                `json:"notifyOthers"`
	NotifyOwnReplicas bool                `json:"notifyOwnReplicas"`
}

func (r *PutValuesRequest) ToEvent() usecase.ValueRefresh {
	return usecase.ValueRefresh{
		Values:            r.Values,
		MaintainType:      r.MaintainType,
		DeleteOrphanType:  r.DeleteOrphanType,
		NotifyOthers:      r.NotifyOthers,
		NotifyOwnReplicas: r.NotifyOwnReplicas,
	}
}

// TypeSummary is a type without its children, as returned by list endpoints.
type TypeSummary struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Remark string `json:"remark,omitempty"`
	Size   int    `json:"size"`
}

func ToTypeSummary(t *entity.DictType) TypeSummary {
	return TypeSummary{Type: t.Type, Title: t.Title, Remark: t.Remark, Size: len(t.Children)}
}

// Accepted acknowledges a queued trigger.
type Accepted struct {
	Status string `json:"status"`
}

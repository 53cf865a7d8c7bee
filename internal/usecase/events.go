package usecase

import "github.com/eslsoft/dictsync/internal/entity"

// EventKind identifies one of the refresh event shapes.
type EventKind int

const (
	KindFullRefresh EventKind = iota + 1
	KindTypeRefresh
	KindValueRefresh
)

func (k EventKind) String() string {
	switch k {
	case KindFullRefresh:
		return "full"
	case KindTypeRefresh:
		return "type"
	case KindValueRefresh:
		return "value"
	default:
		return "unknown"
	}
}

// Event is one of FullRefresh, TypeRefresh or ValueRefresh.
type Event interface {
	Kind() EventKind
}

// FullRefresh re-runs the registrar over every source, or over Sources when set.
type FullRefresh struct {
	Reason  string
	Sources []string
	// NotifyOthers broadcasts a notice to every other instance.
	NotifyOthers bool
	// NotifyOwnReplicas makes replicas sharing this instance id act on the
	// notice too, this process included.
	NotifyOwnReplicas bool

	remote bool
}

// TypeRefresh writes complete types straight to the store.
type TypeRefresh struct {
	Types             []*entity.DictType
	NotifyOthers      bool
	NotifyOwnReplicas bool

	remote bool
}

// ValueRefresh writes individual values straight to the store.
type ValueRefresh struct {
	Values []*entity.DictValue
	// MaintainType patches the stored full type's children as well.
	MaintainType bool
	// DeleteOrphanType removes a maintained type whose children became empty.
	DeleteOrphanType  bool
	NotifyOthers      bool
	NotifyOwnReplicas bool

	remote bool
}

func (FullRefresh) Kind() EventKind  { return KindFullRefresh }
func (TypeRefresh) Kind() EventKind  { return KindTypeRefresh }
func (ValueRefresh) Kind() EventKind { return KindValueRefresh }

package entity

import (
	"fmt"
	"strings"
)

// DictType is a named category of code → text mappings.
//
// A nil Children slice is a tombstone: storing it deletes the type together
// with every value under it. A non-nil empty slice means the type exists and
// has no values.
type DictType struct {
	Title    string       `json:"title"`
	Type     string       `json:"type"`
	Remark   string       `json:"remark,omitempty"`
	Children []*DictValue `json:"children"`
}

// DictValue is a single code → text mapping within a DictType.
//
// A nil Title is a tombstone for this value only.
type DictValue struct {
	DictType    string  `json:"dictType"`
	Value       string  `json:"value"`
	Title       *string `json:"title"`
	ParentValue string  `json:"parentValue,omitempty"`
	Sorted      int     `json:"sorted"`
}

// NewDictValue builds a live (non-tombstone) value. value is compared by its
// string form, so any scalar is accepted.
func NewDictValue(dictType string, value any, title string) *DictValue {
	return &DictValue{DictType: dictType, Value: ValueString(value), Title: &title}
}

// ValueString renders an opaque scalar value in the form used for comparison and keys.
func ValueString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// IsTombstone reports whether storing t deletes it.
func (t *DictType) IsTombstone() bool { return t.Children == nil }

// Validate checks the type code and every child.
func (t *DictType) Validate() error {
	if t == nil || strings.TrimSpace(t.Type) == "" {
		return ErrInvalidDictType
	}
	for _, child := range t.Children {
		if child == nil || child.Value == "" {
			return fmt.Errorf("%w: type %q has a child without value", ErrInvalidDictValue, t.Type)
		}
		if child.DictType != "" && child.DictType != t.Type {
			return fmt.Errorf("%w: child %q belongs to %q, not %q", ErrInvalidDictValue, child.Value, child.DictType, t.Type)
		}
	}
	return nil
}

// Normalize stamps the owning type code on every child.
func (t *DictType) Normalize() *DictType {
	for _, child := range t.Children {
		if child != nil && child.DictType == "" {
			child.DictType = t.Type
		}
	}
	return t
}

// Clone returns a deep copy of t; the tombstone marker is preserved.
func (t *DictType) Clone() *DictType {
	if t == nil {
		return nil
	}
	out := *t
	if t.Children != nil {
		out.Children = make([]*DictValue, 0, len(t.Children))
		for _, child := range t.Children {
			out.Children = append(out.Children, child.Clone())
		}
	}
	return &out
}

// Child returns the child with the given value, if any.
func (t *DictType) Child(value string) (*DictValue, int) {
	for i, child := range t.Children {
		if child != nil && child.Value == value {
			return child, i
		}
	}
	return nil, -1
}

// IsTombstone reports whether storing v deletes it.
func (v *DictValue) IsTombstone() bool { return v.Title == nil }

// Text returns the title or an empty string for tombstones.
func (v *DictValue) Text() string {
	if v.Title == nil {
		return ""
	}
	return *v.Title
}

// Validate checks the (dictType, value) key.
func (v *DictValue) Validate() error {
	if v == nil || strings.TrimSpace(v.DictType) == "" || v.Value == "" {
		return ErrInvalidDictValue
	}
	return nil
}

// Clone returns a copy of v that shares nothing with it.
func (v *DictValue) Clone() *DictValue {
	if v == nil {
		return nil
	}
	out := *v
	if v.Title != nil {
		title := *v.Title
		out.Title = &title
	}
	return &out
}

// ValueLookup is a resolved value with its ancestor chain, nearest first.
type ValueLookup struct {
	DictType string   `json:"dictType"`
	Value    string   `json:"value"`
	Title    string   `json:"title"`
	Parents  []string `json:"parents"`
}

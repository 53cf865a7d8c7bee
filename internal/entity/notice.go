package entity

import "strings"

// Notice is the cross-instance broadcast payload.
//
// The first four fields are the wire contract every instance understands.
// Types and Values are optional: when present the receiver applies them
// directly instead of re-running its sources.
type Notice struct {
	Message             string   `json:"message"`
	OriginatingInstance string   `json:"originatingInstance"`
	NotifyOwnReplicas   bool     `json:"notifyOwnReplicas"`
	SourceNameFilter    []string `json:"sourceNameFilter"`

	Types            []*DictType  `json:"types,omitempty"`
	Values           []*DictValue `json:"values,omitempty"`
	MaintainType     bool         `json:"maintainType,omitempty"`
	DeleteOrphanType bool         `json:"deleteOrphanType,omitempty"`
}

// Validate rejects notices that cannot be attributed to an instance.
func (n *Notice) Validate() error {
	if n == nil || strings.TrimSpace(n.OriginatingInstance) == "" {
		return ErrInvalidNotice
	}
	return nil
}

// IsEcho reports whether the notice was sent by instance and must be ignored there.
func (n *Notice) IsEcho(instance string) bool {
	return n.OriginatingInstance == instance && !n.NotifyOwnReplicas
}

package store

import (
	"strings"

	"github.com/eslsoft/dictsync/internal/infrastructure/config"
)

// KeyLayout names the four key spaces of the networked store.
type KeyLayout struct {
	TypePrefix       string
	SystemTypePrefix string
	ValuePrefix      string
	ParentPrefix     string
}

// DefaultKeyLayout returns the stock `type:`, `system-type:`, `value:` and `parent:` prefixes.
func DefaultKeyLayout() KeyLayout {
	return KeyLayout{
		TypePrefix:       "type:",
		SystemTypePrefix: "system-type:",
		ValuePrefix:      "value:",
		ParentPrefix:     "parent:",
	}
}

// NewKeyLayout builds the layout from config, keeping defaults for blank prefixes.
func NewKeyLayout(cfg *config.Config) KeyLayout {
	keys := DefaultKeyLayout()
	if p := strings.TrimSpace(cfg.Store.TypePrefix); p != "" {
		keys.TypePrefix = p
	}
	if p := strings.TrimSpace(cfg.Store.SystemTypePrefix); p != "" {
		keys.SystemTypePrefix = p
	}
	if p := strings.TrimSpace(cfg.Store.ValuePrefix); p != "" {
		keys.ValuePrefix = p
	}
	if p := strings.TrimSpace(cfg.Store.ParentPrefix); p != "" {
		keys.ParentPrefix = p
	}
	return keys
}

func (k KeyLayout) Type(code string) string       { return k.TypePrefix + code }
func (k KeyLayout) SystemType(code string) string { return k.SystemTypePrefix + code }

// Values is the hash bucket holding value → title for one type.
func (k KeyLayout) Values(code string) string { return k.ValuePrefix + code }

// Parents is the hash bucket holding value → parent value for one type.
func (k KeyLayout) Parents(code string) string { return k.ParentPrefix + code }

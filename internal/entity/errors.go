package entity

import "errors"

// Domain errors for dictionaries and the refresh protocol.
var (
	ErrInvalidDictType         = errors.New("invalid dictionary type")
	ErrInvalidDictValue        = errors.New("invalid dictionary value")
	ErrInvalidNotice           = errors.New("invalid refresh notice")
	ErrUnknownStoreBackend     = errors.New("unknown store backend")
	ErrUnknownBroadcastBackend = errors.New("unknown broadcast backend")
	ErrUnknownSource           = errors.New("unknown dictionary source")
	ErrDictTypeNotFound        = errors.New("dictionary type not found")
	ErrDictValueNotFound       = errors.New("dictionary value not found")
	ErrInvalidFilter           = errors.New("invalid filter")
)

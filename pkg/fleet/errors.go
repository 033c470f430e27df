package fleet

import "errors"

var (
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrInvalidRange    = errors.New("invalid time range")
	ErrInvalidQuery    = errors.New("invalid query parameter")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrNotFound        = errors.New("not found")
	ErrStore           = errors.New("store failure")
)

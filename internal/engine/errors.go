// internal/engine/errors.go
package engine

import "errors"

// Operation error taxonomy. The web layer maps these onto HTTP status
// codes; anything else is treated as a storage failure.
var (
    ErrConflict        = errors.New("conflict")
    ErrInvalidArgument = errors.New("invalid argument")
    ErrInvalidState    = errors.New("invalid state")
)

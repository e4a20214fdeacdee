package chem

import "errors"

var (
	// ErrUnknownName indicates a species, element or phase name that is not part of the system.
	ErrUnknownName = errors.New("chem: unknown name")

	// ErrInvalidSystem indicates an inconsistent system definition.
	ErrInvalidSystem = errors.New("chem: invalid system")
)

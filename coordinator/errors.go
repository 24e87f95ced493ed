package coordinator

import "errors"

var (
	// ErrTypeMismatch is returned when the value stored for a key is not of
	// the type the caller asked for.
	ErrTypeMismatch = errors.New("coordinator: cached value has unexpected type")
	// ErrNoModules is returned by Run with WithModule when the Coordinator
	// was built without a module manager.
	ErrNoModules = errors.New("coordinator: no module manager configured")
)

package modules

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRegistered is returned by Get for an unknown key.
	ErrNotRegistered = errors.New("modules: not registered")
	// ErrAlreadyRegistered is returned by Register for a duplicate key.
	ErrAlreadyRegistered = errors.New("modules: already registered")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("modules: manager closed")
)

// LoadError reports a Loader failure. Every caller joined on the load
// receives it; nothing is cached, so retrying is expected.
type LoadError struct {
	Key string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("modules: load %q: %v", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

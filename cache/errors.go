package cache

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("cache: closed")

// IntegrityError reports a value that was refused at Set time. The cache
// state is unchanged when it is returned.
type IntegrityError struct {
	Key   any
	Size  int64
	Limit int64
	Err   error
}

func (e *IntegrityError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("cache: entry %v rejected: %v", e.Key, e.Err)
	case e.Size < 0:
		return fmt.Sprintf("cache: entry %v rejected: negative size %d", e.Key, e.Size)
	default:
		return fmt.Sprintf("cache: entry %v rejected: size %d exceeds memory limit %d", e.Key, e.Size, e.Limit)
	}
}

func (e *IntegrityError) Unwrap() error { return e.Err }

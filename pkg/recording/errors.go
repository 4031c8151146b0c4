package recording

import (
	"errors"
	"fmt"
)

// Common errors for the recording store.
var (
	// ErrNotFound is returned when no recording matches a lookup.
	ErrNotFound = errors.New("recording not found")
	// ErrInvalidPath is returned for folder or request paths escaping the store root.
	ErrInvalidPath = errors.New("invalid recording path")
)

// StorageError wraps a filesystem failure of the store.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("recording %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}

package proxy

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTarget is returned when no upstream target is configured.
	ErrNoTarget = errors.New("no upstream target configured")
	// ErrBodyTooLarge is returned when a request body exceeds the limit.
	ErrBodyTooLarge = errors.New("request body too large")
)

// UpstreamError reports a failure talking to the upstream target.
type UpstreamError struct {
	Method string
	URL    string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

package lifecycle

import (
	"errors"
	"fmt"
)

// AlreadyRunningError is returned when a subject launches an exercise they
// already have a running sandbox for. It carries the existing subdomain so
// the client can reconnect instead of retrying.
type AlreadyRunningError struct {
	Subdomain string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("exercise already running at %s", e.Subdomain)
}

// ErrQuotaExceeded is returned when a subject is at their concurrent
// sandbox limit.
var ErrQuotaExceeded = errors.New("concurrent container quota exceeded")

// ErrUnknownExercise is returned when a launch names an exercise that is
// not in the catalog.
var ErrUnknownExercise = errors.New("unknown exercise")

// ErrRuntimeRefused is returned when the runtime started a container but
// never bound the sandbox port. The half-started container is removed.
var ErrRuntimeRefused = errors.New("runtime did not assign a host port")

// ErrForbidden is returned when a subject tries to stop a container they
// do not own.
var ErrForbidden = errors.New("container belongs to another subject")

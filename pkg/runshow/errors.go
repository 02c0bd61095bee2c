package runshow

import (
	"errors"
	"fmt"
)

// Error kinds returned by the lifecycle managers. Callers test with
// errors.Is; none of them are retried internally.
var (
	// ErrNotFound means the referenced event, timer or action does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a business rule blocks the operation right now,
	// e.g. another durational timer is running.
	ErrConflict = errors.New("conflict")

	// ErrDomain means the operation is invalid for the current state.
	ErrDomain = errors.New("invalid operation")

	// ErrTransport means a realtime publish failed. It is logged by the
	// Notifier and never returned from a lifecycle operation.
	ErrTransport = errors.New("realtime publish failed")
)

// NotFound builds an ErrNotFound error naming the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, entity, id)
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func domainf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDomain, fmt.Sprintf(format, args...))
}

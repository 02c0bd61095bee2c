package runshow

import "context"

// Store is the persistence contract the engine needs. Lookups by id return
// an ErrNotFound-wrapped error when the row is missing. List methods return
// rows ordered by ordinal ascending.
type Store interface {
	FindEvent(ctx context.Context, id string) (*Event, error)
	UpdateEvent(ctx context.Context, id string, p EventPatch) (*Event, error)

	FindTimer(ctx context.Context, id string) (*Timer, error)
	FindTimersByEvent(ctx context.Context, eventID string) ([]*Timer, error)
	// FindNextTimer returns the timer with the smallest ordinal greater than
	// afterOrdinal, or nil when there is none.
	FindNextTimer(ctx context.Context, eventID string, afterOrdinal int) (*Timer, error)
	UpdateTimer(ctx context.Context, id string, p TimerPatch) (*Timer, error)
	// TransitionTimer applies p only if the timer's status is still from.
	// It reports whether the update was applied.
	TransitionTimer(ctx context.Context, id string, from Status, p TimerPatch) (*Timer, bool, error)

	FindAction(ctx context.Context, id string) (*Action, error)
	FindActionsByTimer(ctx context.Context, timerID string) ([]*Action, error)
	UpdateAction(ctx context.Context, id string, p ActionPatch) (*Action, error)
}

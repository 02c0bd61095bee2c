package poller

import (
	"context"
	"time"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
)

// Entry is a pending check for one event.
type Entry struct {
	EventID string
	// TriggerAt is when the next check runs.
	TriggerAt time.Time
	// CronExpr is a 5-field cron expression for the cadence. It wins over
	// Interval when both are set.
	CronExpr string
	// Interval is the fixed cadence used when CronExpr is empty. Zero with
	// an empty CronExpr makes the entry one-shot.
	Interval time.Duration
}

// Checker runs the due checks for an event. *runshow.TimerManager
// satisfies it.
type Checker interface {
	CheckAndStartIfDue(ctx context.Context, eventID string) (*runshow.Timer, error)
	CheckAndStartPunctual(ctx context.Context, eventID string) (*runshow.Timer, error)
}

var _ Checker = (*runshow.TimerManager)(nil)

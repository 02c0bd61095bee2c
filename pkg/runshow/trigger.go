package runshow

import (
	"time"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
)

// TriggerInstant resolves an action offset against its timer:
// a positive offset counts from the start, zero or negative from the end.
func TriggerInstant(start naive.Instant, durationMinutes, offsetMinutes int) naive.Instant {
	if offsetMinutes > 0 {
		return start.AddMinutes(offsetMinutes)
	}
	return start.AddMinutes(durationMinutes + offsetMinutes)
}

// StartForTrigger is the inverse of TriggerInstant: the timer start that
// makes an action with offsetMinutes fire at trigger.
func StartForTrigger(trigger naive.Instant, durationMinutes, offsetMinutes int) naive.Instant {
	if offsetMinutes > 0 {
		return trigger.AddMinutes(-offsetMinutes)
	}
	return trigger.AddMinutes(-(durationMinutes + offsetMinutes))
}

// ActionTiming is an action's resolved trigger relative to now.
type ActionTiming struct {
	ActionID            string        `json:"actionId"`
	TriggerAt           naive.Instant `json:"triggerAt"`
	OffsetMinutes       int           `json:"offsetMinutes"`
	SecondsUntilTrigger int64         `json:"secondsUntilTrigger"`

	until time.Duration
}

// Until is the signed time left before the trigger.
func (a ActionTiming) Until() time.Duration { return a.until }

// ActionsWithTiming computes the timing of every non-executed action.
// It returns nil when the timer has not started.
func ActionsWithTiming(clock naive.Clock, t *Timer, actions []*Action) []ActionTiming {
	if t == nil || t.StartedAt.IsZero() {
		return nil
	}
	out := make([]ActionTiming, 0, len(actions))
	for _, a := range actions {
		if a.Executed() {
			continue
		}
		at := TriggerInstant(t.StartedAt, t.DurationMinutes, a.TriggerOffsetMinutes)
		out = append(out, timingAt(clock, a.ID, at, a.TriggerOffsetMinutes))
	}
	return out
}

func timingAt(clock naive.Clock, actionID string, at naive.Instant, offset int) ActionTiming {
	ms := naive.DiffMillis(clock, at)
	return ActionTiming{
		ActionID:            actionID,
		TriggerAt:           at,
		OffsetMinutes:       offset,
		SecondsUntilTrigger: wholeSeconds(ms),
		until:               time.Duration(ms) * time.Millisecond,
	}
}

// wholeSeconds rounds a future trigger up, so an upcoming action never
// reports zero, and a due one toward zero.
func wholeSeconds(ms int64) int64 {
	if ms > 0 {
		return (ms + 999) / 1000
	}
	return ms / 1000
}

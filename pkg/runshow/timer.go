package runshow

import (
	"context"
	"sync"
	"time"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
)

// StartTimerResult is returned by the start operations.
type StartTimerResult struct {
	Timer          *Timer `json:"timer"`
	AlreadyRunning bool   `json:"alreadyRunning"`
}

// CompleteTimerResult is returned by TimerManager.Complete.
type CompleteTimerResult struct {
	Timer            *Timer        `json:"timer"`
	CompletedAt      naive.Instant `json:"completedAt"`
	NextTimerID      string        `json:"nextTimerId,omitempty"`
	AutoStarted      bool          `json:"autoStarted"`
	AlreadyCompleted bool          `json:"alreadyCompleted"`
}

// UpdateOptions controls TimerManager.UpdateFields.
type UpdateOptions struct {
	// Cascade shifts the schedule of every later timer by the duration change.
	Cascade bool
	// OriginalDuration overrides the stored duration as the reference for
	// the change, for callers that already applied the edit elsewhere.
	OriginalDuration *int
}

// TimerManager owns the timer state machine and the event's current-timer
// pointer. It is the only writer of timer status.
type TimerManager struct {
	store   Store
	clock   naive.Clock
	notify  *Notifier
	actions *ActionManager
	log     logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTimerManager(store Store, clock naive.Clock, actions *ActionManager, n *Notifier, l logger.Logger) *TimerManager {
	return &TimerManager{
		store:   store,
		clock:   clock,
		notify:  n,
		actions: actions,
		log:     logger.OrNop(l),
		locks:   make(map[string]*sync.Mutex),
	}
}

// eventLock serialises durational starts within one event.
func (m *TimerManager) eventLock(eventID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[eventID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[eventID] = l
	}
	return l
}

func (m *TimerManager) findInEvent(ctx context.Context, timerID, eventID string) (*Timer, error) {
	t, err := m.store.FindTimer(ctx, timerID)
	if err != nil {
		return nil, err
	}
	if eventID != "" && t.EventID != eventID {
		return nil, NotFound("timer", timerID+" in event "+eventID)
	}
	return t, nil
}

// Start moves a timer to RUNNING and makes it the event's current timer.
// A durational timer cannot start while another durational timer of the
// same event is running.
func (m *TimerManager) Start(ctx context.Context, timerID, eventID string) (*StartTimerResult, error) {
	t, err := m.findInEvent(ctx, timerID, eventID)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case StatusRunning:
		return &StartTimerResult{Timer: t, AlreadyRunning: true}, nil
	case StatusCompleted:
		return nil, domainf("timer %q already completed", timerID)
	}

	if t.IsDurational() {
		l := m.eventLock(t.EventID)
		l.Lock()
		defer l.Unlock()
		timers, err := m.store.FindTimersByEvent(ctx, t.EventID)
		if err != nil {
			return nil, err
		}
		for _, o := range timers {
			if o.ID != t.ID && o.Status == StatusRunning && o.IsDurational() {
				return nil, conflictf("timer %q is already running in event %q", o.ID, t.EventID)
			}
		}
	}

	started, err := m.transitionToRunning(ctx, t)
	if err != nil || started.AlreadyRunning {
		return started, err
	}
	if _, err := m.store.UpdateEvent(ctx, t.EventID, EventPatch{CurrentTimerID: &t.ID}); err != nil {
		return nil, err
	}
	m.log.Info("timer %s (%s) started in event %s", t.ID, t.Kind(), t.EventID)
	m.notify.TimerUpdated(ctx, TimerUpdate{TimerID: t.ID, EventID: t.EventID, Action: TagStarted})
	return started, nil
}

func (m *TimerManager) transitionToRunning(ctx context.Context, t *Timer) (*StartTimerResult, error) {
	now := m.clock.Now()
	var zero naive.Instant
	updated, ok, err := m.store.TransitionTimer(ctx, t.ID, StatusPending, TimerPatch{
		Status:      ptr(StatusRunning),
		StartedAt:   &now,
		CompletedAt: &zero,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		if updated != nil && updated.Status == StatusRunning {
			return &StartTimerResult{Timer: updated, AlreadyRunning: true}, nil
		}
		return nil, conflictf("timer %q changed state concurrently", t.ID)
	}
	return &StartTimerResult{Timer: updated}, nil
}

// StartPunctualOrManual starts a durationless timer without touching the
// event's current-timer pointer.
func (m *TimerManager) StartPunctualOrManual(ctx context.Context, timerID, eventID string) (*StartTimerResult, error) {
	t, err := m.findInEvent(ctx, timerID, eventID)
	if err != nil {
		return nil, err
	}
	if t.IsDurational() {
		return nil, domainf("timer %q has a duration; use Start", timerID)
	}
	switch t.Status {
	case StatusRunning:
		return &StartTimerResult{Timer: t, AlreadyRunning: true}, nil
	case StatusCompleted:
		return nil, domainf("timer %q already completed", timerID)
	}
	started, err := m.transitionToRunning(ctx, t)
	if err != nil || started.AlreadyRunning {
		return started, err
	}
	m.log.Info("timer %s (%s) started in event %s", t.ID, t.Kind(), t.EventID)
	m.notify.TimerUpdated(ctx, TimerUpdate{TimerID: t.ID, EventID: t.EventID, Action: TagStarted})
	return started, nil
}

// Complete marks the timer completed and advances the event. Advancing
// only happens when the timer was the event's current timer (or there was
// none): a punctual timer finishing beside the main countdown must not
// steal the pointer. The next timer becomes current and is started
// immediately if it is durational. When no timer follows, the event is
// marked completed.
func (m *TimerManager) Complete(ctx context.Context, timerID string) (*CompleteTimerResult, error) {
	t, err := m.store.FindTimer(ctx, timerID)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusCompleted {
		return &CompleteTimerResult{Timer: t, CompletedAt: t.CompletedAt, AlreadyCompleted: true}, nil
	}
	now := m.clock.Now()
	done, ok, err := m.store.TransitionTimer(ctx, t.ID, t.Status, TimerPatch{
		Status:      ptr(StatusCompleted),
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		if done != nil && done.Status == StatusCompleted {
			return &CompleteTimerResult{Timer: done, CompletedAt: done.CompletedAt, AlreadyCompleted: true}, nil
		}
		return nil, conflictf("timer %q changed state concurrently", t.ID)
	}
	res := &CompleteTimerResult{Timer: done, CompletedAt: now}

	ev, err := m.store.FindEvent(ctx, t.EventID)
	if err != nil {
		return nil, err
	}
	if ev.CurrentTimerID == "" || ev.CurrentTimerID == t.ID {
		if err := m.advance(ctx, t, res); err != nil {
			return nil, err
		}
	}

	m.log.Info("timer %s completed (next %q)", t.ID, res.NextTimerID)
	m.notify.TimerUpdated(ctx, TimerUpdate{
		TimerID:     t.ID,
		EventID:     t.EventID,
		Action:      TagCompleted,
		NextTimerID: res.NextTimerID,
	})
	return res, nil
}

// advance moves the event pointer to the first PENDING timer after t.
// Timers that already ran beside the main countdown are skipped.
func (m *TimerManager) advance(ctx context.Context, t *Timer, res *CompleteTimerResult) error {
	next, err := m.nextPending(ctx, t.EventID, t.Ordinal)
	if err != nil {
		return err
	}
	if next == nil {
		none := ""
		now := res.CompletedAt
		_, err := m.store.UpdateEvent(ctx, t.EventID, EventPatch{CurrentTimerID: &none, CompletedAt: &now})
		if err == nil {
			m.log.Info("event %s completed", t.EventID)
		}
		return err
	}
	res.NextTimerID = next.ID
	if _, err := m.store.UpdateEvent(ctx, t.EventID, EventPatch{CurrentTimerID: &next.ID}); err != nil {
		return err
	}
	if !next.IsDurational() {
		return nil
	}
	if _, err := m.Start(ctx, next.ID, t.EventID); err != nil {
		// The completion is committed; the next timer stays current and
		// the poller retries the start.
		m.log.Error("auto-start of timer %s failed: %v", next.ID, err)
		return nil
	}
	res.AutoStarted = true
	return nil
}

func (m *TimerManager) nextPending(ctx context.Context, eventID string, afterOrdinal int) (*Timer, error) {
	for {
		next, err := m.store.FindNextTimer(ctx, eventID, afterOrdinal)
		if err != nil || next == nil || next.Status == StatusPending {
			return next, err
		}
		afterOrdinal = next.Ordinal
	}
}

// CompleteAction completes an action and, when it was the last pending
// action of a running timer, completes that timer too.
func (m *TimerManager) CompleteAction(ctx context.Context, actionID string) (*CompleteActionResult, *CompleteTimerResult, error) {
	res, err := m.actions.Complete(ctx, actionID)
	if err != nil {
		return nil, nil, err
	}
	if res.AlreadyCompleted || res.Remaining > 0 {
		return res, nil, nil
	}
	t, err := m.store.FindTimer(ctx, res.Action.TimerID)
	if err != nil {
		return nil, nil, err
	}
	if t.Status != StatusRunning {
		return res, nil, nil
	}
	tres, err := m.Complete(ctx, t.ID)
	if err != nil {
		return nil, nil, err
	}
	return res, tres, nil
}

// UpdateFields applies patch to the timer. With opts.Cascade and a duration
// change of d minutes, every later timer's scheduled start moves by d.
func (m *TimerManager) UpdateFields(ctx context.Context, timerID string, patch TimerPatch, opts UpdateOptions) (*Timer, error) {
	before, err := m.store.FindTimer(ctx, timerID)
	if err != nil {
		return nil, err
	}
	if patch.DurationMinutes != nil && *patch.DurationMinutes < 0 {
		return nil, domainf("duration must not be negative")
	}
	updated, err := m.store.UpdateTimer(ctx, timerID, patch)
	if err != nil {
		return nil, err
	}

	if opts.Cascade && patch.DurationMinutes != nil {
		orig := before.DurationMinutes
		if opts.OriginalDuration != nil {
			orig = *opts.OriginalDuration
		}
		if delta := *patch.DurationMinutes - orig; delta != 0 {
			if err := m.shiftLater(ctx, before, delta); err != nil {
				return nil, err
			}
		}
	}

	m.log.Info("timer %s updated", timerID)
	m.notify.TimerUpdated(ctx, TimerUpdate{TimerID: timerID, EventID: updated.EventID, Action: TagUpdated})
	return updated, nil
}

func (m *TimerManager) shiftLater(ctx context.Context, t *Timer, deltaMinutes int) error {
	timers, err := m.store.FindTimersByEvent(ctx, t.EventID)
	if err != nil {
		return err
	}
	for _, o := range timers {
		if o.Ordinal <= t.Ordinal || o.ScheduledStartAt.IsZero() {
			continue
		}
		shifted := o.ScheduledStartAt.AddMinutes(deltaMinutes)
		if _, err := m.store.UpdateTimer(ctx, o.ID, TimerPatch{ScheduledStartAt: &shifted}); err != nil {
			return err
		}
	}
	m.log.Debug("shifted timers after %s by %d minutes", t.ID, deltaMinutes)
	return nil
}

// CheckAndStartIfDue starts the lowest-ordinal pending durational timer
// whose scheduled start has passed, unless the event already has a
// current timer. It returns the started timer or nil.
func (m *TimerManager) CheckAndStartIfDue(ctx context.Context, eventID string) (*Timer, error) {
	ev, err := m.store.FindEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.CurrentTimerID != "" {
		return nil, nil
	}
	due, err := m.firstDue(ctx, eventID, KindDurational)
	if err != nil || due == nil {
		return nil, err
	}
	res, err := m.Start(ctx, due.ID, eventID)
	if err != nil {
		return nil, err
	}
	return res.Timer, nil
}

// CheckAndStartPunctual starts at most one overdue punctual timer per call.
// Callers re-poll to work through a backlog.
func (m *TimerManager) CheckAndStartPunctual(ctx context.Context, eventID string) (*Timer, error) {
	if _, err := m.store.FindEvent(ctx, eventID); err != nil {
		return nil, err
	}
	due, err := m.firstDue(ctx, eventID, KindPunctual)
	if err != nil || due == nil {
		return nil, err
	}
	res, err := m.StartPunctualOrManual(ctx, due.ID, eventID)
	if err != nil {
		return nil, err
	}
	return res.Timer, nil
}

func (m *TimerManager) firstDue(ctx context.Context, eventID string, kind TimerKind) (*Timer, error) {
	timers, err := m.store.FindTimersByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for _, t := range timers {
		if t.Status != StatusPending || t.Kind() != kind || t.ScheduledStartAt.IsZero() {
			continue
		}
		if naive.IsPast(m.clock, t.ScheduledStartAt) {
			return t, nil
		}
	}
	return nil, nil
}

// TimerView is a timer with its actions and their timing.
type TimerView struct {
	Timer   *Timer         `json:"timer"`
	Actions []*Action      `json:"actions"`
	Timings []ActionTiming `json:"timings"`
	// RemainingMs is negative once a running timer overruns.
	RemainingMs int64 `json:"remainingMs,omitempty"`
}

// EventSnapshot is the authoritative state viewers re-fetch.
type EventSnapshot struct {
	Event  *Event        `json:"event"`
	Timers []*TimerView  `json:"timers"`
	Now    naive.Instant `json:"now"`
}

// View loads one timer with its actions.
func (m *TimerManager) View(ctx context.Context, timerID string) (*TimerView, error) {
	t, actions, timings, err := m.actions.Timings(ctx, timerID)
	if err != nil {
		return nil, err
	}
	return &TimerView{Timer: t, Actions: actions, Timings: timings, RemainingMs: m.Remaining(t).Milliseconds()}, nil
}

// Snapshot loads the event with every timer and action.
func (m *TimerManager) Snapshot(ctx context.Context, eventID string) (*EventSnapshot, error) {
	ev, err := m.store.FindEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	timers, err := m.store.FindTimersByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	snap := &EventSnapshot{Event: ev, Timers: make([]*TimerView, 0, len(timers)), Now: m.clock.Now()}
	for _, t := range timers {
		actions, err := m.store.FindActionsByTimer(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		snap.Timers = append(snap.Timers, &TimerView{
			Timer:       t,
			Actions:     actions,
			Timings:     ActionsWithTiming(m.clock, t, actions),
			RemainingMs: m.Remaining(t).Milliseconds(),
		})
	}
	return snap, nil
}

// Remaining is the time left on a running durational timer.
func (m *TimerManager) Remaining(t *Timer) time.Duration {
	if t.StartedAt.IsZero() || !t.IsDurational() {
		return 0
	}
	return naive.Diff(m.clock, t.StartedAt.AddMinutes(t.DurationMinutes))
}

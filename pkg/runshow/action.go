package runshow

import (
	"context"
	"time"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
)

// DefaultJumpLead is how far ahead of a trigger the jump operations land.
const DefaultJumpLead = 15 * time.Second

// ScheduledAction pairs an action with its resolved timing.
type ScheduledAction struct {
	Action *Action      `json:"action"`
	Timing ActionTiming `json:"timing"`
}

// StartActionResult is returned by ActionManager.Start.
type StartActionResult struct {
	Action         *Action `json:"action"`
	AlreadyRunning bool    `json:"alreadyRunning"`
}

// CompleteActionResult is returned by ActionManager.Complete. Remaining
// counts the timer's actions still waiting for execution.
type CompleteActionResult struct {
	Action           *Action `json:"action"`
	AlreadyCompleted bool    `json:"alreadyCompleted"`
	Remaining        int     `json:"remaining"`
}

// JumpResult is returned by ActionManager.JumpToBeforeNext.
type JumpResult struct {
	NewStartedAt naive.Instant    `json:"newStartedAt"`
	NextAction   *ScheduledAction `json:"nextAction"`
	TriggersIn   int64            `json:"triggersIn"`
}

// ActionManager owns the action state machine.
type ActionManager struct {
	store  Store
	clock  naive.Clock
	notify *Notifier
	log    logger.Logger
}

func NewActionManager(store Store, clock naive.Clock, n *Notifier, l logger.Logger) *ActionManager {
	return &ActionManager{store: store, clock: clock, notify: n, log: logger.OrNop(l)}
}

// Timings loads a timer and the timing of its pending actions.
func (m *ActionManager) Timings(ctx context.Context, timerID string) (*Timer, []*Action, []ActionTiming, error) {
	t, err := m.store.FindTimer(ctx, timerID)
	if err != nil {
		return nil, nil, nil, err
	}
	actions, err := m.store.FindActionsByTimer(ctx, timerID)
	if err != nil {
		return nil, nil, nil, err
	}
	return t, actions, ActionsWithTiming(m.clock, t, actions), nil
}

func pick(actions []*Action, timings []ActionTiming, better func(cand, best ActionTiming) bool, eligible func(ActionTiming) bool) *ScheduledAction {
	byID := make(map[string]*Action, len(actions))
	for _, a := range actions {
		byID[a.ID] = a
	}
	var best *ScheduledAction
	for _, tm := range timings {
		if !eligible(tm) {
			continue
		}
		if best == nil || better(tm, best.Timing) {
			best = &ScheduledAction{Action: byID[tm.ActionID], Timing: tm}
		}
	}
	return best
}

// NextAction returns the pending action with the smallest strictly
// positive time until trigger, or nil. Ties keep the lower ordinal.
func (m *ActionManager) NextAction(ctx context.Context, timerID string) (*ScheduledAction, error) {
	_, actions, timings, err := m.Timings(ctx, timerID)
	if err != nil {
		return nil, err
	}
	return pick(actions, timings,
		func(c, b ActionTiming) bool { return c.until < b.until },
		func(tm ActionTiming) bool { return tm.until > 0 },
	), nil
}

// CurrentAction returns the most recently due pending action, the one
// whose non-positive time until trigger is closest to zero, or nil.
func (m *ActionManager) CurrentAction(ctx context.Context, timerID string) (*ScheduledAction, error) {
	_, actions, timings, err := m.Timings(ctx, timerID)
	if err != nil {
		return nil, err
	}
	return pick(actions, timings,
		func(c, b ActionTiming) bool { return -c.until < -b.until },
		func(tm ActionTiming) bool { return tm.until <= 0 },
	), nil
}

// Start moves an action to RUNNING. Starting a running action is a no-op.
func (m *ActionManager) Start(ctx context.Context, actionID string) (*StartActionResult, error) {
	a, err := m.store.FindAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	switch {
	case a.Status == StatusRunning:
		return &StartActionResult{Action: a, AlreadyRunning: true}, nil
	case a.Executed() || a.Status == StatusCompleted:
		return nil, domainf("action %q already completed", actionID)
	}
	a, err = m.store.UpdateAction(ctx, actionID, ActionPatch{Status: ptr(StatusRunning)})
	if err != nil {
		return nil, err
	}
	m.log.Info("action %s started (timer %s)", a.ID, a.TimerID)
	m.notify.ActionUpdated(ctx, ActionUpdate{ActionID: a.ID, TimerID: a.TimerID, Action: TagStarted})
	return &StartActionResult{Action: a}, nil
}

// Complete records the action as executed now. Completing an executed
// action is a no-op.
func (m *ActionManager) Complete(ctx context.Context, actionID string) (*CompleteActionResult, error) {
	a, err := m.store.FindAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if a.Executed() {
		remaining, err := m.remaining(ctx, a.TimerID)
		if err != nil {
			return nil, err
		}
		return &CompleteActionResult{Action: a, AlreadyCompleted: true, Remaining: remaining}, nil
	}
	now := m.clock.Now()
	a, err = m.store.UpdateAction(ctx, actionID, ActionPatch{
		ExecutedAt: &now,
		Status:     ptr(StatusCompleted),
	})
	if err != nil {
		return nil, err
	}
	remaining, err := m.remaining(ctx, a.TimerID)
	if err != nil {
		return nil, err
	}
	m.log.Info("action %s completed (timer %s, %d left)", a.ID, a.TimerID, remaining)
	m.notify.ActionUpdated(ctx, ActionUpdate{ActionID: a.ID, TimerID: a.TimerID, Action: TagCompleted})
	return &CompleteActionResult{Action: a, Remaining: remaining}, nil
}

func (m *ActionManager) remaining(ctx context.Context, timerID string) (int, error) {
	actions, err := m.store.FindActionsByTimer(ctx, timerID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range actions {
		if !a.Executed() {
			n++
		}
	}
	return n, nil
}

// ResetAll puts every action of the timer back to PENDING.
func (m *ActionManager) ResetAll(ctx context.Context, timerID string) error {
	if err := m.resetActions(ctx, timerID); err != nil {
		return err
	}
	m.log.Info("actions of timer %s reset", timerID)
	m.notify.ActionUpdated(ctx, ActionUpdate{TimerID: timerID, Action: TagReset})
	return nil
}

func (m *ActionManager) resetActions(ctx context.Context, timerID string) error {
	if _, err := m.store.FindTimer(ctx, timerID); err != nil {
		return err
	}
	actions, err := m.store.FindActionsByTimer(ctx, timerID)
	if err != nil {
		return err
	}
	var zero naive.Instant
	for _, a := range actions {
		if _, err := m.store.UpdateAction(ctx, a.ID, ActionPatch{
			ExecutedAt: &zero,
			Status:     ptr(StatusPending),
		}); err != nil {
			return err
		}
	}
	return nil
}

// JumpToBeforeNext moves the timer's start so that its next action fires
// lead from now, as if the clock had jumped to that action's trigger
// minus lead.
func (m *ActionManager) JumpToBeforeNext(ctx context.Context, timerID string, lead time.Duration) (*JumpResult, error) {
	t, err := m.store.FindTimer(ctx, timerID)
	if err != nil {
		return nil, err
	}
	next, err := m.NextAction(ctx, timerID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, domainf("no next action for timer %q", timerID)
	}

	target := m.clock.Now().Add(lead)
	newStart := StartForTrigger(target, t.DurationMinutes, next.Action.TriggerOffsetMinutes)
	if _, err := m.store.UpdateTimer(ctx, timerID, TimerPatch{StartedAt: &newStart}); err != nil {
		return nil, err
	}

	next.Timing = timingAt(m.clock, next.Action.ID, TriggerInstant(newStart, t.DurationMinutes, next.Action.TriggerOffsetMinutes), next.Action.TriggerOffsetMinutes)

	m.log.Info("timer %s jumped: next action %s in %s", timerID, next.Action.ID, lead)
	m.notify.ActionUpdated(ctx, ActionUpdate{TimerID: timerID, Action: TagJump, StartedAt: &newStart})
	return &JumpResult{
		NewStartedAt: newStart,
		NextAction:   next,
		TriggersIn:   int64(lead / time.Second),
	}, nil
}

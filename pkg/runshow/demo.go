package runshow

import (
	"context"
	"time"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
)

// DemoMapping declares which template timer feeds which demo timer.
// Timers maps template timer id to target timer id and must be 1:1.
type DemoMapping struct {
	TemplateEventID string            `json:"templateEventId"`
	EventID         string            `json:"eventId"`
	Timers          map[string]string `json:"timers"`
}

type demoPair struct {
	tpl, dst               *Timer
	tplActions, dstActions []*Action
}

func (m *TimerManager) demoPairs(ctx context.Context, eventID, templateEventID string, mapping map[string]string) ([]demoPair, error) {
	if len(mapping) == 0 {
		return nil, domainf("no timer mapping for event %q", eventID)
	}
	if _, err := m.store.FindEvent(ctx, templateEventID); err != nil {
		return nil, err
	}
	if _, err := m.store.FindEvent(ctx, eventID); err != nil {
		return nil, err
	}
	tpls, err := m.store.FindTimersByEvent(ctx, templateEventID)
	if err != nil {
		return nil, err
	}
	dsts, err := m.store.FindTimersByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(tpls) != len(dsts) {
		return nil, domainf("template has %d timers, event has %d", len(tpls), len(dsts))
	}
	if len(mapping) != len(tpls) {
		return nil, domainf("mapping covers %d of %d timers", len(mapping), len(tpls))
	}

	dstByID := make(map[string]*Timer, len(dsts))
	for _, t := range dsts {
		dstByID[t.ID] = t
	}
	used := make(map[string]bool, len(dsts))
	pairs := make([]demoPair, 0, len(tpls))
	for _, tpl := range tpls {
		dstID, ok := mapping[tpl.ID]
		if !ok {
			return nil, domainf("template timer %q has no target", tpl.ID)
		}
		dst, ok := dstByID[dstID]
		if !ok {
			return nil, domainf("target timer %q is not in event %q", dstID, eventID)
		}
		if used[dstID] {
			return nil, domainf("target timer %q mapped twice", dstID)
		}
		used[dstID] = true

		tplActions, err := m.store.FindActionsByTimer(ctx, tpl.ID)
		if err != nil {
			return nil, err
		}
		dstActions, err := m.store.FindActionsByTimer(ctx, dst.ID)
		if err != nil {
			return nil, err
		}
		if len(tplActions) != len(dstActions) {
			return nil, domainf("timer %q has %d actions, template %q has %d",
				dst.ID, len(dstActions), tpl.ID, len(tplActions))
		}
		pairs = append(pairs, demoPair{tpl: tpl, dst: dst, tplActions: tplActions, dstActions: dstActions})
	}
	return pairs, nil
}

// ResetFromTemplate copies every template timer and its actions onto the
// mapped demo timers and returns the event to its initial state. Nothing
// is written unless the whole mapping validates.
func (m *TimerManager) ResetFromTemplate(ctx context.Context, eventID, templateEventID string, mapping map[string]string) error {
	pairs, err := m.demoPairs(ctx, eventID, templateEventID, mapping)
	if err != nil {
		return err
	}
	var zero naive.Instant
	for _, p := range pairs {
		if _, err := m.store.UpdateTimer(ctx, p.dst.ID, TimerPatch{
			Name:             &p.tpl.Name,
			DurationMinutes:  &p.tpl.DurationMinutes,
			ScheduledStartAt: &p.tpl.ScheduledStartAt,
			IsManual:         &p.tpl.IsManual,
			StartedAt:        &zero,
			CompletedAt:      &zero,
			Status:           ptr(StatusPending),
		}); err != nil {
			return err
		}
		for i, src := range p.tplActions {
			urls := src.URLs
			if urls == nil {
				urls = []string{}
			}
			if _, err := m.store.UpdateAction(ctx, p.dstActions[i].ID, ActionPatch{
				Type:                 &src.Type,
				TriggerOffsetMinutes: &src.TriggerOffsetMinutes,
				URLs:                 urls,
				DisplayDurationSec:   &src.DisplayDurationSec,
				ExecutedAt:           &zero,
				Status:               ptr(StatusPending),
			}); err != nil {
				return err
			}
		}
	}
	none := ""
	if _, err := m.store.UpdateEvent(ctx, eventID, EventPatch{CurrentTimerID: &none, CompletedAt: &zero}); err != nil {
		return err
	}
	m.log.Info("event %s reset from template %s", eventID, templateEventID)
	m.notify.TimerUpdated(ctx, TimerUpdate{EventID: eventID, Action: TagReset})
	return nil
}

// StartDemo resets the event, lays the schedule out back to back from now
// and starts the first durational timer (or the first timer when none has
// a duration). Durationless timers take the slot where the preceding
// timers end, except unflagged ones without a schedule, which stay
// unscheduled so they remain manual.
func (m *TimerManager) StartDemo(ctx context.Context, eventID, templateEventID string, mapping map[string]string) (*Timer, error) {
	if err := m.ResetFromTemplate(ctx, eventID, templateEventID, mapping); err != nil {
		return nil, err
	}
	timers, err := m.store.FindTimersByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(timers) == 0 {
		return nil, domainf("event %q has no timers", eventID)
	}

	cursor := m.clock.Now()
	var first *Timer
	for _, t := range timers {
		if t.DurationMinutes == 0 && !t.IsManual && t.ScheduledStartAt.IsZero() {
			continue
		}
		slot := cursor
		if _, err := m.store.UpdateTimer(ctx, t.ID, TimerPatch{ScheduledStartAt: &slot}); err != nil {
			return nil, err
		}
		if t.IsDurational() {
			cursor = cursor.AddMinutes(t.DurationMinutes)
			if first == nil {
				first = t
			}
		}
	}
	if first == nil {
		first = timers[0]
	}
	res, err := m.Start(ctx, first.ID, eventID)
	if err != nil {
		return nil, err
	}
	m.log.Info("demo started for event %s with timer %s", eventID, first.ID)
	return res.Timer, nil
}

// JumpToTimer fast-forwards the event to timerID: earlier timers are force
// completed, later ones are put back to pending, and the timer is started
// so that its first action fires lead from now.
func (m *TimerManager) JumpToTimer(ctx context.Context, timerID string, lead time.Duration) (*Timer, error) {
	t, err := m.store.FindTimer(ctx, timerID)
	if err != nil {
		return nil, err
	}
	timers, err := m.store.FindTimersByEvent(ctx, t.EventID)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	var zero naive.Instant
	for _, o := range timers {
		switch {
		case o.Ordinal < t.Ordinal && o.Status != StatusCompleted:
			if _, err := m.store.UpdateTimer(ctx, o.ID, TimerPatch{
				Status:      ptr(StatusCompleted),
				CompletedAt: &now,
			}); err != nil {
				return nil, err
			}
		case o.Ordinal > t.Ordinal && o.Status != StatusPending:
			if _, err := m.store.UpdateTimer(ctx, o.ID, TimerPatch{
				Status:      ptr(StatusPending),
				StartedAt:   &zero,
				CompletedAt: &zero,
			}); err != nil {
				return nil, err
			}
			if err := m.actions.resetActions(ctx, o.ID); err != nil {
				return nil, err
			}
		}
	}

	if err := m.actions.resetActions(ctx, t.ID); err != nil {
		return nil, err
	}
	actions, err := m.store.FindActionsByTimer(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	startedAt := now
	if len(actions) > 0 {
		startedAt = StartForTrigger(now.Add(lead), t.DurationMinutes, actions[0].TriggerOffsetMinutes)
	}
	jumped, err := m.store.UpdateTimer(ctx, t.ID, TimerPatch{
		Status:      ptr(StatusRunning),
		StartedAt:   &startedAt,
		CompletedAt: &zero,
	})
	if err != nil {
		return nil, err
	}
	if _, err := m.store.UpdateEvent(ctx, t.EventID, EventPatch{CurrentTimerID: &t.ID, CompletedAt: &zero}); err != nil {
		return nil, err
	}

	m.log.Info("event %s jumped to timer %s", t.EventID, t.ID)
	m.notify.ActionUpdated(ctx, ActionUpdate{TimerID: t.ID, Action: TagJump, StartedAt: &startedAt})
	m.notify.TimerUpdated(ctx, TimerUpdate{TimerID: t.ID, EventID: t.EventID, Action: TagJump})
	return jumped, nil
}

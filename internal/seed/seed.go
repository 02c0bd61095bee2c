// Package seed loads run-of-show plans and demo mappings from JSON files
// and inserts them into a store.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
)

// ErrInvalidPlan wraps every validation failure.
var ErrInvalidPlan = errors.New("invalid plan")

// Plan is the top-level seed file.
type Plan struct {
	Events []EventPlan `json:"events"`
}

type EventPlan struct {
	ID     string      `json:"id,omitempty"`
	Name   string      `json:"name"`
	Timers []TimerPlan `json:"timers"`
}

type TimerPlan struct {
	ID               string        `json:"id,omitempty"`
	Name             string        `json:"name"`
	DurationMinutes  int           `json:"durationMinutes"`
	ScheduledStartAt naive.Instant `json:"scheduledStartAt"`
	Manual           bool          `json:"manual"`
	Actions          []ActionPlan  `json:"actions"`
}

type ActionPlan struct {
	ID                   string             `json:"id,omitempty"`
	Type                 runshow.ActionType `json:"type"`
	TriggerOffsetMinutes int                `json:"triggerOffsetMinutes"`
	URLs                 []string           `json:"urls"`
	DisplayDurationSec   int                `json:"displayDurationSec,omitempty"`
}

// Inserter is the write side a plan is applied to. Both store
// implementations satisfy it.
type Inserter interface {
	InsertEvent(ctx context.Context, e *runshow.Event) error
	InsertTimer(ctx context.Context, t *runshow.Timer) error
	InsertAction(ctx context.Context, a *runshow.Action) error
}

// Result counts what Apply inserted.
type Result struct {
	EventIDs []string `json:"eventIds"`
	Timers   int      `json:"timers"`
	Actions  int      `json:"actions"`
}

func readJSON(fs afero.Fs, path string, v any) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadPlan reads and validates a plan file.
func LoadPlan(fs afero.Fs, path string) (*Plan, error) {
	var p Plan
	if err := readJSON(fs, path, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPlan, fmt.Sprintf(format, args...))
}

// Validate checks names, types, durations and id uniqueness.
func (p *Plan) Validate() error {
	if len(p.Events) == 0 {
		return invalid("no events")
	}
	seen := make(map[string]bool)
	dup := func(kind, id string) error {
		if id == "" {
			return nil
		}
		key := kind + "/" + id
		if seen[key] {
			return invalid("duplicate %s id %q", kind, id)
		}
		seen[key] = true
		return nil
	}
	for i, ev := range p.Events {
		if ev.Name == "" {
			return invalid("event %d has no name", i)
		}
		if err := dup("event", ev.ID); err != nil {
			return err
		}
		for j, tm := range ev.Timers {
			if tm.Name == "" {
				return invalid("event %q timer %d has no name", ev.Name, j)
			}
			if tm.DurationMinutes < 0 {
				return invalid("timer %q has a negative duration", tm.Name)
			}
			if err := dup("timer", tm.ID); err != nil {
				return err
			}
			for k, a := range tm.Actions {
				if !a.Type.Valid() {
					return invalid("timer %q action %d: unknown type %q", tm.Name, k, a.Type)
				}
				if len(a.URLs) == 0 {
					return invalid("timer %q action %d has no urls", tm.Name, k)
				}
				if a.DisplayDurationSec < 0 {
					return invalid("timer %q action %d has a negative display duration", tm.Name, k)
				}
				if err := dup("action", a.ID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func idOr(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// Apply inserts the plan in file order. Timers and actions get dense
// ordinals starting at 1; missing ids are generated. Apply stops at the
// first failed insert and does not roll back earlier ones.
func Apply(ctx context.Context, ins Inserter, p *Plan) (*Result, error) {
	res := &Result{}
	for _, ev := range p.Events {
		evID := idOr(ev.ID)
		if err := ins.InsertEvent(ctx, &runshow.Event{ID: evID, Name: ev.Name}); err != nil {
			return res, fmt.Errorf("event %q: %w", ev.Name, err)
		}
		res.EventIDs = append(res.EventIDs, evID)
		for i, tp := range ev.Timers {
			t := &runshow.Timer{
				ID:               idOr(tp.ID),
				EventID:          evID,
				Ordinal:          i + 1,
				Name:             tp.Name,
				DurationMinutes:  tp.DurationMinutes,
				ScheduledStartAt: tp.ScheduledStartAt,
				IsManual:         tp.Manual,
				Status:           runshow.StatusPending,
			}
			if err := ins.InsertTimer(ctx, t); err != nil {
				return res, fmt.Errorf("timer %q: %w", tp.Name, err)
			}
			res.Timers++
			for j, ap := range tp.Actions {
				a := &runshow.Action{
					ID:                   idOr(ap.ID),
					TimerID:              t.ID,
					Ordinal:              j + 1,
					Type:                 ap.Type,
					TriggerOffsetMinutes: ap.TriggerOffsetMinutes,
					URLs:                 ap.URLs,
					DisplayDurationSec:   ap.DisplayDurationSec,
					Status:               runshow.StatusPending,
				}
				if err := ins.InsertAction(ctx, a); err != nil {
					return res, fmt.Errorf("timer %q action %d: %w", tp.Name, j+1, err)
				}
				res.Actions++
			}
		}
	}
	return res, nil
}

// LoadMapping reads a demo mapping file. The mapping must name both
// events and pair at least one timer; 1:1-ness is checked by the engine
// against the stored timers.
func LoadMapping(fs afero.Fs, path string) (*runshow.DemoMapping, error) {
	var m runshow.DemoMapping
	if err := readJSON(fs, path, &m); err != nil {
		return nil, err
	}
	switch {
	case m.TemplateEventID == "" || m.EventID == "":
		return nil, fmt.Errorf("%s: %w: mapping needs templateEventId and eventId", path, ErrInvalidPlan)
	case m.TemplateEventID == m.EventID:
		return nil, fmt.Errorf("%s: %w: template and demo event are the same", path, ErrInvalidPlan)
	case len(m.Timers) == 0:
		return nil, fmt.Errorf("%s: %w: mapping pairs no timers", path, ErrInvalidPlan)
	}
	return &m, nil
}

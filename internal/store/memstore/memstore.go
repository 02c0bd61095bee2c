// Package memstore is an in-memory runshow.Store. It backs the engine
// tests and the daemon's "memory" store mode.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
)

// Store keeps copies of every row; callers never share pointers with it.
type Store struct {
	mu      sync.RWMutex
	events  map[string]runshow.Event
	timers  map[string]runshow.Timer
	actions map[string]runshow.Action
}

func New() *Store {
	return &Store{
		events:  make(map[string]runshow.Event),
		timers:  make(map[string]runshow.Timer),
		actions: make(map[string]runshow.Action),
	}
}

func cloneAction(a runshow.Action) *runshow.Action {
	a.URLs = append([]string(nil), a.URLs...)
	return &a
}

// InsertEvent adds an event.
func (s *Store) InsertEvent(_ context.Context, e *runshow.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return fmt.Errorf("event %q already exists", e.ID)
	}
	s.events[e.ID] = *e
	return nil
}

// InsertTimer adds a timer. Ordinals must be unique within the event.
func (s *Store) InsertTimer(_ context.Context, t *runshow.Timer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[t.EventID]; !ok {
		return runshow.NotFound("event", t.EventID)
	}
	if _, ok := s.timers[t.ID]; ok {
		return fmt.Errorf("timer %q already exists", t.ID)
	}
	for _, o := range s.timers {
		if o.EventID == t.EventID && o.Ordinal == t.Ordinal {
			return fmt.Errorf("event %q already has a timer with ordinal %d", t.EventID, t.Ordinal)
		}
	}
	if t.Status == "" {
		t.Status = runshow.StatusPending
	}
	s.timers[t.ID] = *t
	return nil
}

// InsertAction adds an action.
func (s *Store) InsertAction(_ context.Context, a *runshow.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[a.TimerID]; !ok {
		return runshow.NotFound("timer", a.TimerID)
	}
	if _, ok := s.actions[a.ID]; ok {
		return fmt.Errorf("action %q already exists", a.ID)
	}
	if a.Status == "" {
		a.Status = runshow.StatusPending
	}
	s.actions[a.ID] = *cloneAction(*a)
	return nil
}

// ListEvents returns every event ordered by id.
func (s *Store) ListEvents(_ context.Context) ([]*runshow.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*runshow.Event, 0, len(s.events))
	for _, e := range s.events {
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindEvent(_ context.Context, id string) (*runshow.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, runshow.NotFound("event", id)
	}
	return &e, nil
}

func (s *Store) UpdateEvent(_ context.Context, id string, p runshow.EventPatch) (*runshow.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, runshow.NotFound("event", id)
	}
	p.Apply(&e)
	s.events[id] = e
	return &e, nil
}

func (s *Store) FindTimer(_ context.Context, id string) (*runshow.Timer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.timers[id]
	if !ok {
		return nil, runshow.NotFound("timer", id)
	}
	return &t, nil
}

func (s *Store) FindTimersByEvent(_ context.Context, eventID string) ([]*runshow.Timer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*runshow.Timer
	for _, t := range s.timers {
		if t.EventID == eventID {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (s *Store) FindNextTimer(ctx context.Context, eventID string, afterOrdinal int) (*runshow.Timer, error) {
	timers, err := s.FindTimersByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for _, t := range timers {
		if t.Ordinal > afterOrdinal {
			return t, nil
		}
	}
	return nil, nil
}

func (s *Store) UpdateTimer(_ context.Context, id string, p runshow.TimerPatch) (*runshow.Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return nil, runshow.NotFound("timer", id)
	}
	p.Apply(&t)
	s.timers[id] = t
	return &t, nil
}

func (s *Store) TransitionTimer(_ context.Context, id string, from runshow.Status, p runshow.TimerPatch) (*runshow.Timer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return nil, false, runshow.NotFound("timer", id)
	}
	if t.Status != from {
		return &t, false, nil
	}
	p.Apply(&t)
	s.timers[id] = t
	return &t, true, nil
}

func (s *Store) FindAction(_ context.Context, id string) (*runshow.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, runshow.NotFound("action", id)
	}
	return cloneAction(a), nil
}

func (s *Store) FindActionsByTimer(_ context.Context, timerID string) ([]*runshow.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*runshow.Action
	for _, a := range s.actions {
		if a.TimerID == timerID {
			out = append(out, cloneAction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (s *Store) UpdateAction(_ context.Context, id string, p runshow.ActionPatch) (*runshow.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, runshow.NotFound("action", id)
	}
	p.Apply(&a)
	s.actions[id] = a
	return cloneAction(a), nil
}

var _ runshow.Store = (*Store)(nil)

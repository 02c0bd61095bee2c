package runshow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tizano/tanstack-wedding-timers-sub000/internal/store/memstore"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
)

// published is one captured notification.
type published struct {
	channel string
	name    string
	payload any
}

// recordingPublisher captures notifications and can be told to fail.
type recordingPublisher struct {
	mu   sync.Mutex
	got  []published
	fail error
}

func (p *recordingPublisher) Publish(_ context.Context, channel, name string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.got = append(p.got, published{channel, name, payload})
	return nil
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.got...)
}

func (p *recordingPublisher) timerUpdates(action string) []runshow.TimerUpdate {
	var out []runshow.TimerUpdate
	for _, e := range p.all() {
		if u, ok := e.payload.(runshow.TimerUpdate); ok && (action == "" || u.Action == action) {
			out = append(out, u)
		}
	}
	return out
}

type engine struct {
	store   *memstore.Store
	clock   *naive.FixedClock
	pub     *recordingPublisher
	log     *logger.MockLogger
	actions *runshow.ActionManager
	timers  *runshow.TimerManager
}

// t0 is the reference instant used across the engine tests.
var t0 = naive.Compose(2025, 1, 1, 10, 0, 0)

func newEngine(t *testing.T) *engine {
	t.Helper()
	e := &engine{
		store: memstore.New(),
		clock: naive.NewFixedClock(t0),
		pub:   &recordingPublisher{},
		log:   logger.NewMockLogger(),
	}
	n := runshow.NewNotifier(e.pub, e.log)
	e.actions = runshow.NewActionManager(e.store, e.clock, n, e.log)
	e.timers = runshow.NewTimerManager(e.store, e.clock, e.actions, n, e.log)
	return e
}

func (e *engine) event(t *testing.T, id string) {
	t.Helper()
	if err := e.store.InsertEvent(context.Background(), &runshow.Event{ID: id, Name: id}); err != nil {
		t.Fatalf("insert event: %v", err)
	}
}

func (e *engine) timer(t *testing.T, tm runshow.Timer) {
	t.Helper()
	if err := e.store.InsertTimer(context.Background(), &tm); err != nil {
		t.Fatalf("insert timer: %v", err)
	}
}

func (e *engine) action(t *testing.T, a runshow.Action) {
	t.Helper()
	if a.Type == "" {
		a.Type = runshow.ActionVideo
	}
	if err := e.store.InsertAction(context.Background(), &a); err != nil {
		t.Fatalf("insert action: %v", err)
	}
}

func (e *engine) getTimer(t *testing.T, id string) *runshow.Timer {
	t.Helper()
	tm, err := e.store.FindTimer(context.Background(), id)
	if err != nil {
		t.Fatalf("find timer %s: %v", id, err)
	}
	return tm
}

func (e *engine) getAction(t *testing.T, id string) *runshow.Action {
	t.Helper()
	a, err := e.store.FindAction(context.Background(), id)
	if err != nil {
		t.Fatalf("find action %s: %v", id, err)
	}
	return a
}

func (e *engine) getEvent(t *testing.T, id string) *runshow.Event {
	t.Helper()
	ev, err := e.store.FindEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("find event %s: %v", id, err)
	}
	return ev
}

func wantErr(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v; want %v", err, kind)
	}
}

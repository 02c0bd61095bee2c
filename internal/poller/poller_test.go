package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tizano/tanstack-wedding-timers-sub000/internal/store/memstore"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
)

// fakeChecker records the order of checks per event.
type fakeChecker struct {
	mu       sync.Mutex
	calls    []string
	dueErr   error
	panicFor string
}

func (f *fakeChecker) CheckAndStartIfDue(_ context.Context, eventID string) (*runshow.Timer, error) {
	if eventID == f.panicFor {
		panic("boom")
	}
	f.mu.Lock()
	f.calls = append(f.calls, "due:"+eventID)
	f.mu.Unlock()
	return nil, f.dueErr
}

func (f *fakeChecker) CheckAndStartPunctual(_ context.Context, eventID string) (*runshow.Timer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "punctual:"+eventID)
	f.mu.Unlock()
	return &runshow.Timer{ID: eventID + "-p"}, nil
}

func (f *fakeChecker) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeChecker) count(prefix string) int {
	n := 0
	for _, c := range f.snapshot() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPoller_FiresBothChecksInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := &fakeChecker{}
	p := New(ctx, fc, nil)

	p.Add(Entry{EventID: "e1", TriggerAt: time.Now().Add(50 * time.Millisecond)})
	waitFor(t, func() bool { return len(fc.snapshot()) >= 2 })

	calls := fc.snapshot()
	if calls[0] != "due:e1" || calls[1] != "punctual:e1" {
		t.Fatalf("unexpected call order: %v", calls)
	}
	// One-shot: nothing more.
	time.Sleep(150 * time.Millisecond)
	if n := len(fc.snapshot()); n != 2 {
		t.Fatalf("one-shot entry fired %d checks", n)
	}
}

func TestPoller_IntervalRequeues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := &fakeChecker{}
	p := New(ctx, fc, nil)

	if err := p.Track("e1", "", 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return fc.count("due:e1") >= 3 })
}

func TestPoller_RemoveStopsPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := &fakeChecker{}
	p := New(ctx, fc, nil)

	p.Add(Entry{EventID: "e1", TriggerAt: time.Now().Add(time.Second), Interval: time.Second})
	time.Sleep(50 * time.Millisecond)
	p.Remove("e1")
	time.Sleep(1200 * time.Millisecond)
	if n := len(fc.snapshot()); n != 0 {
		t.Fatalf("removed event was checked %d times", n)
	}
}

func TestPoller_ShutdownViaContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeChecker{}
	p := New(ctx, fc, nil)
	p.Add(Entry{EventID: "e1", TriggerAt: time.Now().Add(300 * time.Millisecond)})
	cancel()

	done := make(chan struct{})
	go func() { p.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancel")
	}
	time.Sleep(400 * time.Millisecond)
	if n := len(fc.snapshot()); n != 0 {
		t.Fatalf("checks ran after cancel: %v", fc.snapshot())
	}
}

func TestPoller_PanicIsRecovered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := &fakeChecker{panicFor: "bad"}
	ml := logger.NewMockLogger()
	p := New(ctx, fc, ml)

	now := time.Now()
	p.Add(Entry{EventID: "bad", TriggerAt: now.Add(20 * time.Millisecond)})
	p.Add(Entry{EventID: "good", TriggerAt: now.Add(60 * time.Millisecond)})
	waitFor(t, func() bool { return fc.count("due:good") == 1 })

	errs := ml.Errors()
	if len(errs) == 0 || !strings.Contains(errs[0], "PANIC [poll bad]") {
		t.Fatalf("expected a logged panic, got %v", errs)
	}
}

func TestPoller_CheckErrorsAreLogged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := &fakeChecker{dueErr: errors.New("store down")}
	ml := logger.NewMockLogger()
	p := New(ctx, fc, ml)

	p.Add(Entry{EventID: "e1", TriggerAt: time.Now()})
	waitFor(t, func() bool { return fc.count("punctual:e1") == 1 })
	waitFor(t, func() bool { return len(ml.Errors()) == 1 })
	if !strings.Contains(ml.Errors()[0], "store down") {
		t.Fatalf("unexpected error log: %v", ml.Errors())
	}
}

func TestPoller_TrackValidation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := New(ctx, &fakeChecker{}, nil)

	if err := p.Track("e1", "", 0); !errors.Is(err, ErrNoCadence) {
		t.Fatalf("expected ErrNoCadence, got %v", err)
	}
	if err := p.Track("e1", "not a cron", 0); err == nil {
		t.Fatal("expected an invalid cron error")
	}
	if err := p.Track("e1", "0 * * * * *", 0); err == nil {
		t.Fatal("six-field cron accepted")
	}
}

func TestReschedule(t *testing.T) {
	p := &Poller{l: logger.NewNopLogger()}
	from := time.Date(2025, 6, 14, 15, 0, 30, 0, time.UTC)

	tests := []struct {
		name   string
		entry  Entry
		want   time.Time
		wantOK bool
	}{
		{"cron every minute", Entry{CronExpr: "* * * * *"}, time.Date(2025, 6, 14, 15, 1, 0, 0, time.UTC), true},
		{"cron wins over interval", Entry{CronExpr: "*/5 * * * *", Interval: time.Second}, time.Date(2025, 6, 14, 15, 5, 0, 0, time.UTC), true},
		{"interval", Entry{Interval: 30 * time.Second}, from.Add(30 * time.Second), true},
		{"one-shot", Entry{}, time.Time{}, false},
		{"bad cron", Entry{CronExpr: "bogus"}, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.reschedule(tt.entry, from)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.TriggerAt.Equal(tt.want) {
				t.Fatalf("next = %v, want %v", got.TriggerAt, tt.want)
			}
		})
	}
}

func TestValidCron(t *testing.T) {
	for expr, want := range map[string]bool{
		"* * * * *":        true,
		"*/5 9-17 * * 1-5": true,
		"":                 false,
		"* * * *":          false,
		"61 * * * *":       false,
	} {
		if got := ValidCron(expr); got != want {
			t.Errorf("ValidCron(%q) = %v, want %v", expr, got, want)
		}
	}
}

func TestPoller_StartsDueTimers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memstore.New()
	now := naive.Compose(2025, 6, 14, 15, 0, 0)
	clock := naive.NewFixedClock(now)
	n := runshow.NewNotifier(nil, nil)
	tm := runshow.NewTimerManager(store, clock, runshow.NewActionManager(store, clock, n, nil), n, nil)

	mustInsert := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	mustInsert(store.InsertEvent(ctx, &runshow.Event{ID: "e1", Name: "wedding"}))
	mustInsert(store.InsertTimer(ctx, &runshow.Timer{
		ID: "ceremony", EventID: "e1", Ordinal: 0, DurationMinutes: 30,
		ScheduledStartAt: now.Add(-time.Minute),
	}))
	mustInsert(store.InsertTimer(ctx, &runshow.Timer{
		ID: "toast", EventID: "e1", Ordinal: 1,
		ScheduledStartAt: now.Add(-2 * time.Minute),
	}))

	p := New(ctx, tm, nil)
	if err := p.Track("e1", "", time.Hour); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		c, _ := store.FindTimer(ctx, "ceremony")
		toast, _ := store.FindTimer(ctx, "toast")
		return c.Status == runshow.StatusRunning && toast.Status != runshow.StatusPending
	})
}

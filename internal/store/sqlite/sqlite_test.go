package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "timers.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.InsertEvent(ctx, &runshow.Event{ID: "e1", Name: "Wedding"}); err != nil {
		t.Fatal(err)
	}
	timers := []runshow.Timer{
		{ID: "t2", EventID: "e1", Ordinal: 2, Name: "Dinner", DurationMinutes: 90},
		{ID: "t1", EventID: "e1", Ordinal: 1, Name: "Ceremony", DurationMinutes: 30,
			ScheduledStartAt: naive.MustParse("2025-06-14T15:00:00")},
		{ID: "t3", EventID: "e1", Ordinal: 3, Name: "Dance", IsManual: true},
	}
	for i := range timers {
		if err := s.InsertTimer(ctx, &timers[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.InsertAction(ctx, &runshow.Action{
		ID: "a1", TimerID: "t1", Ordinal: 1, Type: runshow.ActionGallery,
		TriggerOffsetMinutes: -5, URLs: []string{"a.jpg", "b.jpg"}, DisplayDurationSec: 8,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertAction(ctx, &runshow.Action{ID: "a0", TimerID: "t1", Ordinal: 0, Type: runshow.ActionSound}); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	seed(t, s)
	if _, err := s.FindTimer(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
}

func TestRoundTrip(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	tm, err := s.FindTimer(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if tm.Name != "Ceremony" || tm.Status != runshow.StatusPending || tm.IsManual {
		t.Fatalf("unexpected timer: %+v", tm)
	}
	if got := tm.ScheduledStartAt.String(); got != "2025-06-14T15:00:00.000" {
		t.Fatalf("scheduled start = %q", got)
	}
	if !tm.StartedAt.IsZero() || !tm.CompletedAt.IsZero() {
		t.Fatal("NULL instants must read back as zero")
	}
	if t3, _ := s.FindTimer(ctx, "t3"); !t3.IsManual {
		t.Fatal("is_manual lost")
	}

	a, err := s.FindAction(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Type != runshow.ActionGallery || len(a.URLs) != 2 || a.URLs[1] != "b.jpg" || a.DisplayDurationSec != 8 {
		t.Fatalf("unexpected action: %+v", a)
	}
	if a0, _ := s.FindAction(ctx, "a0"); a0.URLs == nil || len(a0.URLs) != 0 {
		t.Fatalf("nil urls should read back empty, got %#v", a0.URLs)
	}
}

func TestOrdering(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	timers, err := s.FindTimersByEvent(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, tm := range timers {
		ids = append(ids, tm.ID)
	}
	if len(ids) != 3 || ids[0] != "t1" || ids[1] != "t2" || ids[2] != "t3" {
		t.Fatalf("timers out of order: %v", ids)
	}

	next, err := s.FindNextTimer(ctx, "e1", 1)
	if err != nil || next == nil || next.ID != "t2" {
		t.Fatalf("FindNextTimer(1) = %v, %v", next, err)
	}
	last, err := s.FindNextTimer(ctx, "e1", 3)
	if err != nil || last != nil {
		t.Fatalf("FindNextTimer(3) = %v, %v; want nil, nil", last, err)
	}

	actions, err := s.FindActionsByTimer(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 || actions[0].ID != "a0" {
		t.Fatalf("actions out of order: %+v", actions)
	}
}

func TestNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.FindEvent(ctx, "x"); !errors.Is(err, runshow.ErrNotFound) {
		t.Fatalf("FindEvent: %v", err)
	}
	if _, err := s.FindTimer(ctx, "x"); !errors.Is(err, runshow.ErrNotFound) {
		t.Fatalf("FindTimer: %v", err)
	}
	if _, err := s.UpdateAction(ctx, "x", runshow.ActionPatch{}); !errors.Is(err, runshow.ErrNotFound) {
		t.Fatalf("UpdateAction: %v", err)
	}
	if err := s.InsertTimer(ctx, &runshow.Timer{ID: "t", EventID: "missing"}); !errors.Is(err, runshow.ErrNotFound) {
		t.Fatalf("InsertTimer into missing event: %v", err)
	}
}

func TestDuplicateOrdinalRejected(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	err := s.InsertTimer(context.Background(), &runshow.Timer{ID: "dup", EventID: "e1", Ordinal: 1, Name: "dup"})
	if err == nil {
		t.Fatal("expected unique (event_id, ordinal) violation")
	}
}

func TestUpdates(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	cur := "t1"
	done := naive.MustParse("2025-06-14T23:59:59.500")
	ev, err := s.UpdateEvent(ctx, "e1", runshow.EventPatch{CurrentTimerID: &cur, CompletedAt: &done})
	if err != nil {
		t.Fatal(err)
	}
	if ev.CurrentTimerID != "t1" {
		t.Fatalf("current = %q", ev.CurrentTimerID)
	}
	got, _ := s.FindEvent(ctx, "e1")
	if !got.CompletedAt.Equal(done) {
		t.Fatalf("completedAt = %s; want %s", got.CompletedAt, done)
	}

	none := ""
	var zero naive.Instant
	if _, err := s.UpdateEvent(ctx, "e1", runshow.EventPatch{CurrentTimerID: &none, CompletedAt: &zero}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.FindEvent(ctx, "e1")
	if got.CurrentTimerID != "" || !got.CompletedAt.IsZero() {
		t.Fatalf("event not cleared: %+v", got)
	}

	d := 45
	if _, err := s.UpdateTimer(ctx, "t2", runshow.TimerPatch{DurationMinutes: &d}); err != nil {
		t.Fatal(err)
	}
	if t2, _ := s.FindTimer(ctx, "t2"); t2.DurationMinutes != 45 || t2.Name != "Dinner" {
		t.Fatalf("partial update clobbered fields: %+v", t2)
	}

	at := naive.MustParse("2025-06-14T15:04:00")
	st := runshow.StatusCompleted
	a, err := s.UpdateAction(ctx, "a1", runshow.ActionPatch{ExecutedAt: &at, Status: &st})
	if err != nil {
		t.Fatal(err)
	}
	if !a.Executed() || len(a.URLs) != 2 {
		t.Fatalf("action update: %+v", a)
	}
}

func TestTransitionTimer(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	running := runshow.StatusRunning
	now := naive.MustParse("2025-06-14T15:00:00")
	tm, ok, err := s.TransitionTimer(ctx, "t1", runshow.StatusPending, runshow.TimerPatch{Status: &running, StartedAt: &now})
	if err != nil || !ok {
		t.Fatalf("first transition = %v, %v", ok, err)
	}
	if tm.Status != runshow.StatusRunning || !tm.StartedAt.Equal(now) {
		t.Fatalf("transition result: %+v", tm)
	}

	tm, ok, err = s.TransitionTimer(ctx, "t1", runshow.StatusPending, runshow.TimerPatch{Status: &running})
	if err != nil || ok {
		t.Fatalf("stale transition = %v, %v; want not applied", ok, err)
	}
	if tm.Status != runshow.StatusRunning {
		t.Fatalf("stale transition should return the current row, got %+v", tm)
	}

	if _, _, err := s.TransitionTimer(ctx, "nope", runshow.StatusPending, runshow.TimerPatch{}); !errors.Is(err, runshow.ErrNotFound) {
		t.Fatalf("missing timer: %v", err)
	}
}

func TestTransitionTimer_SingleWinner(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	running := runshow.StatusRunning
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.TransitionTimer(ctx, "t2", runshow.StatusPending, runshow.TimerPatch{Status: &running})
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", wins)
	}
}

func TestEngineOnSQLite(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	clock := naive.NewFixedClock(naive.MustParse("2025-06-14T15:00:00"))
	actions := runshow.NewActionManager(s, clock, nil, nil)
	timers := runshow.NewTimerManager(s, clock, actions, nil, nil)

	if _, err := timers.Start(ctx, "t1", "e1"); err != nil {
		t.Fatal(err)
	}
	res, err := timers.Complete(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if res.NextTimerID != "t2" || !res.AutoStarted {
		t.Fatalf("complete = %+v", res)
	}
	ev, _ := s.FindEvent(ctx, "e1")
	if ev.CurrentTimerID != "t2" {
		t.Fatalf("current = %q; want t2", ev.CurrentTimerID)
	}
}

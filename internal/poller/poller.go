package poller

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
)

const maxSleepCap = 60 * time.Second

// ErrNoCadence is returned by Track when neither a cron expression nor an
// interval is given.
var ErrNoCadence = errors.New("poller: no cron expression or interval")

// Poller runs the due checks for tracked events on their cadence.
type Poller struct {
	addChan    chan Entry
	removeChan chan string
	ctx        context.Context
	checker    Checker
	l          logger.Logger
	done       chan struct{}
	now        func() time.Time
}

// New creates and starts a Poller. The loop exits when ctx is cancelled.
func New(ctx context.Context, checker Checker, l logger.Logger) *Poller {
	return newPoller(ctx, checker, l, time.Now)
}

func newPoller(ctx context.Context, checker Checker, l logger.Logger, now func() time.Time) *Poller {
	p := &Poller{
		addChan:    make(chan Entry, 64),
		removeChan: make(chan string, 64),
		ctx:        ctx,
		checker:    checker,
		l:          logger.OrNop(l),
		done:       make(chan struct{}),
		now:        now,
	}
	go p.run()
	return p
}

// Add queues an entry as given.
func (p *Poller) Add(e Entry) {
	select {
	case p.addChan <- e:
	case <-p.ctx.Done():
	}
}

// Track queues eventID for an immediate first check followed by checks on
// the given cadence.
func (p *Poller) Track(eventID, cronExpr string, interval time.Duration) error {
	if cronExpr == "" && interval <= 0 {
		return ErrNoCadence
	}
	if cronExpr != "" && !ValidCron(cronExpr) {
		return fmt.Errorf("poller: invalid cron expression %q", cronExpr)
	}
	p.Add(Entry{EventID: eventID, TriggerAt: p.now(), CronExpr: cronExpr, Interval: interval})
	return nil
}

// Remove stops polling eventID.
func (p *Poller) Remove(eventID string) {
	select {
	case p.removeChan <- eventID:
	case <-p.ctx.Done():
	}
}

// Wait blocks until the loop has exited.
func (p *Poller) Wait() {
	<-p.done
}

func (p *Poller) run() {
	defer close(p.done)
	h := &entryHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			return nil
		}
		dur := (*h)[0].TriggerAt.Sub(p.now())
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()
	for {
		select {
		case <-p.ctx.Done():
			return

		case e := <-p.addChan:
			heapPush(h, e)
			timerCh = resetTimer()

		case id := <-p.removeChan:
			heapRemove(h, id)
			timerCh = resetTimer()

		case <-timerCh:
			now := p.now()
			for h.Len() > 0 && !(*h)[0].TriggerAt.After(now) {
				if p.ctx.Err() != nil {
					return
				}
				e := heapPop(h)
				p.check(e.EventID)
				if next, ok := p.reschedule(e, p.now()); ok {
					heapPush(h, next)
				}
			}
			timerCh = resetTimer()
		}
	}
}

// check runs both due checks for one event. A panic in either is logged and
// does not stop the loop.
func (p *Poller) check(eventID string) {
	defer func() {
		if r := recover(); r != nil {
			p.l.Error("PANIC [poll %s]: %v\n%s", eventID, r, debug.Stack())
		}
	}()
	if t, err := p.checker.CheckAndStartIfDue(p.ctx, eventID); err != nil {
		p.l.Error("event %s: due check: %v", eventID, err)
	} else if t != nil {
		p.l.Info("event %s: started due timer %s", eventID, t.ID)
	}
	if t, err := p.checker.CheckAndStartPunctual(p.ctx, eventID); err != nil {
		p.l.Error("event %s: punctual check: %v", eventID, err)
	} else if t != nil {
		p.l.Info("event %s: started punctual timer %s", eventID, t.ID)
	}
}

// reschedule computes the entry's next occurrence after from. It reports
// false for one-shot entries and unparseable cron expressions.
func (p *Poller) reschedule(e Entry, from time.Time) (Entry, bool) {
	switch {
	case e.CronExpr != "":
		next, err := nextCronOccurrence(e.CronExpr, from)
		if err != nil {
			p.l.Error("event %s: cron %q: %v", e.EventID, e.CronExpr, err)
			return Entry{}, false
		}
		e.TriggerAt = next
	case e.Interval > 0:
		e.TriggerAt = from.Add(e.Interval)
	default:
		return Entry{}, false
	}
	return e, true
}

// nextCronOccurrence returns the next time expr fires strictly after start.
func nextCronOccurrence(expr string, start time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, start, false)
}

// ValidCron reports whether expr is a valid 5-field cron expression
// (minute hour day-of-month month day-of-week). gronx alone also accepts a
// leading seconds field.
func ValidCron(expr string) bool {
	if len(strings.Fields(expr)) != 5 {
		return false
	}
	return gronx.IsValid(expr)
}

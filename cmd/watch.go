package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	"github.com/tizano/tanstack-wedding-timers-sub000/cmd/common"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/server"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/viewer"
)

var watchFlags = withClientFlags(
	cli.DurationFlag{Name: "fallback", Usage: "re-fetch period when no pushes arrive", Value: viewer.DefaultFallback},
	cli.BoolFlag{Name: "debug, d", Usage: "log every push"},
)

// progress is where a running durational timer stands at a given moment.
type progress struct {
	timerID string
	name    string
	total   time.Duration
	elapsed time.Duration
}

// runningTimers returns the progress of every running durational timer in
// snap, as seen `since` after the snapshot was taken.
func runningTimers(snap *runshow.EventSnapshot, since time.Duration) []progress {
	var out []progress
	for _, tv := range snap.Timers {
		t := tv.Timer
		if t.Status != runshow.StatusRunning || !t.IsDurational() || t.StartedAt.IsZero() {
			continue
		}
		total := time.Duration(t.DurationMinutes) * time.Minute
		elapsed := total - time.Duration(tv.RemainingMs)*time.Millisecond + since
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed > total {
			elapsed = total
		}
		out = append(out, progress{timerID: t.ID, name: t.Name, total: total, elapsed: elapsed})
	}
	return out
}

// board keeps one countdown bar per running timer.
type board struct {
	mu        sync.Mutex
	p         *mpb.Progress
	bars      map[string]*mpb.Bar
	snap      *runshow.EventSnapshot
	fetchedAt time.Time
	now       func() time.Time
}

func newBoard(p *mpb.Progress) *board {
	return &board{p: p, bars: make(map[string]*mpb.Bar), now: time.Now}
}

func (b *board) set(snap *runshow.EventSnapshot) {
	b.mu.Lock()
	b.snap = snap
	b.fetchedAt = b.now()
	b.mu.Unlock()
	b.tick()
}

// tick moves every bar to the current elapsed time. Bars of timers that
// stopped running are completed.
func (b *board) tick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snap == nil {
		return
	}
	seen := make(map[string]bool)
	for _, pr := range runningTimers(b.snap, b.now().Sub(b.fetchedAt)) {
		seen[pr.timerID] = true
		bar, ok := b.bars[pr.timerID]
		if !ok {
			bar = common.InitCountdownBar(b.p, pr.name, pr.total)
			b.bars[pr.timerID] = bar
		}
		bar.SetCurrent(int64(pr.elapsed / time.Second))
	}
	for id, bar := range b.bars {
		if !seen[id] {
			bar.Abort(false)
			delete(b.bars, id)
		}
	}
}

// snapshotFetcher re-fetches the event and subscribes to the channels of
// timers it has not seen yet.
func snapshotFetcher(eventID string, b *board, debug bool) viewer.RefetchFunc {
	subscribed := make(map[string]bool)
	return func(ctx context.Context, c *viewer.Client, u viewer.Update) {
		if !u.Fallback && (debug || u.Event == runshow.EventActionUpdated) {
			fmt.Fprintf(os.Stderr, "%s %s %s %s\n", u.UpdatedAt, u.Event, u.Action, firstNonEmpty(u.ActionID, u.TimerID))
		}
		cctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		var snap runshow.EventSnapshot
		if err := c.Call(cctx, "event.get", server.EventParam{EventID: eventID}, &snap); err != nil {
			fmt.Fprintf(os.Stderr, "event.get: %v\n", err)
			return
		}
		var fresh []string
		for _, tv := range snap.Timers {
			if ch := runshow.TimerChannel(tv.Timer.ID); !subscribed[ch] {
				subscribed[ch] = true
				fresh = append(fresh, ch)
			}
		}
		if len(fresh) > 0 {
			if err := c.Subscribe(cctx, fresh...); err != nil {
				fmt.Fprintf(os.Stderr, "subscribe: %v\n", err)
			}
		}
		b.set(&snap)
	}
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

func watch(ctx *cli.Context) error {
	if err := requireArgs(ctx, "event id"); err != nil {
		return err
	}
	eventID := ctx.Args().First()
	tok, err := clientToken(ctx)
	if err != nil {
		return common.RuntimeErr("watch", "token", err)
	}
	u, err := wsURL(baseURL(ctx))
	if err != nil {
		return common.RuntimeErr("watch", "url", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := mpb.NewWithContext(sigCtx, mpb.WithOutput(common.Out), mpb.WithWidth(48), mpb.WithRefreshRate(200*time.Millisecond))
	b := newBoard(p)

	dctx, cancel := context.WithTimeout(sigCtx, callTimeout)
	c, err := viewer.Dial(dctx, viewer.Options{
		URL:      u,
		Token:    tok,
		Channels: []string{runshow.EventChannel(eventID)},
		Fallback: ctx.Duration("fallback"),
		Refetch:  snapshotFetcher(eventID, b, ctx.Bool("debug")),
	})
	cancel()
	if err != nil {
		stop()
		p.Wait()
		return common.RuntimeErr("watch", "dial", err)
	}
	defer c.Close()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-sigCtx.Done():
				return
			case <-ticker.C:
				b.tick()
			}
		}
	}()

	err = c.Run(sigCtx)
	stop()
	p.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return common.RuntimeErr("watch", "run", err)
}

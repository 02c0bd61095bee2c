package runshow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
)

// Realtime event names.
const (
	EventTimerUpdated  = "TIMER_UPDATED"
	EventActionUpdated = "ACTION_UPDATED"
)

// Action tags carried in notification payloads.
const (
	TagStarted   = "started"
	TagCompleted = "completed"
	TagUpdated   = "updated"
	TagReset     = "reset"
	TagJump      = "jump"
)

// StampLayout is fixed-width so stamps also sort lexicographically.
const StampLayout = "2006-01-02T15:04:05.000000Z07:00"

// EventChannel is the channel carrying TIMER_UPDATED for an event.
func EventChannel(eventID string) string { return "event:" + eventID }

// TimerChannel is the channel carrying ACTION_UPDATED for a timer.
func TimerChannel(timerID string) string { return "timer:" + timerID }

// Publisher is the realtime transport. Implementations fan the payload
// out to every subscriber of channel.
type Publisher interface {
	Publish(ctx context.Context, channel, eventName string, payload any) error
}

// TimerUpdate is the TIMER_UPDATED payload.
type TimerUpdate struct {
	TimerID     string `json:"timerId,omitempty"`
	EventID     string `json:"eventId"`
	Action      string `json:"action"`
	NextTimerID string `json:"nextTimerId,omitempty"`
	UpdatedAt   string `json:"updatedAt"`
}

// ActionUpdate is the ACTION_UPDATED payload.
type ActionUpdate struct {
	ActionID  string         `json:"actionId,omitempty"`
	TimerID   string         `json:"timerId"`
	Action    string         `json:"action"`
	StartedAt *naive.Instant `json:"startedAt,omitempty"`
	UpdatedAt string         `json:"updatedAt"`
}

// Stamper hands out strictly increasing UTC stamps, so receivers can
// deduplicate by comparing the last seen stamp.
type Stamper struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewStamper(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

// Next returns the next stamp.
func (s *Stamper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// Notifier sends lifecycle transitions after state has been committed.
// Publish failures are logged and swallowed.
type Notifier struct {
	pub   Publisher
	log   logger.Logger
	stamp *Stamper
}

// NewNotifier wraps pub. A nil pub makes every notification a no-op.
func NewNotifier(pub Publisher, l logger.Logger) *Notifier {
	return &Notifier{pub: pub, log: logger.OrNop(l), stamp: NewStamper(nil)}
}

func (n *Notifier) publish(ctx context.Context, channel, name string, payload any) {
	if n == nil || n.pub == nil {
		return
	}
	if err := n.pub.Publish(ctx, channel, name, payload); err != nil {
		n.log.Warning("%v", fmt.Errorf("%w: %s on %s: %v", ErrTransport, name, channel, err))
	}
}

func (n *Notifier) nextStamp() string {
	if n == nil || n.stamp == nil {
		return time.Now().UTC().Format(StampLayout)
	}
	return n.stamp.Next().Format(StampLayout)
}

// TimerUpdated publishes TIMER_UPDATED on the event channel.
func (n *Notifier) TimerUpdated(ctx context.Context, u TimerUpdate) {
	u.UpdatedAt = n.nextStamp()
	n.publish(ctx, EventChannel(u.EventID), EventTimerUpdated, u)
}

// ActionUpdated publishes ACTION_UPDATED on the timer channel.
func (n *Notifier) ActionUpdated(ctx context.Context, u ActionUpdate) {
	u.UpdatedAt = n.nextStamp()
	n.publish(ctx, TimerChannel(u.TimerID), EventActionUpdated, u)
}

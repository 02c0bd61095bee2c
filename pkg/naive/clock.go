package naive

import (
	"sync"
	"time"
)

// Clock supplies "now" as a naive instant.
type Clock interface {
	Now() Instant
}

// WallClock reads the system clock in Location and reinterprets the
// reading as naive.
type WallClock struct {
	Location *time.Location
}

// NewWallClock returns a clock reading wall time in loc. A nil loc means
// the host's local zone.
func NewWallClock(loc *time.Location) *WallClock {
	if loc == nil {
		loc = time.Local
	}
	return &WallClock{Location: loc}
}

func (c *WallClock) Now() Instant {
	return FromWall(time.Now().In(c.Location))
}

// FixedClock is a settable clock for tests and demo tooling.
type FixedClock struct {
	mu  sync.Mutex
	now Instant
}

func NewFixedClock(now Instant) *FixedClock {
	return &FixedClock{now: now}
}

func (c *FixedClock) Now() Instant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *FixedClock) Set(now Instant) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Diff returns i - now, truncated to millisecond resolution.
func Diff(c Clock, i Instant) time.Duration {
	return i.Sub(c.Now()).Truncate(time.Millisecond)
}

// DiffMillis is Diff expressed in signed milliseconds.
func DiffMillis(c Clock, i Instant) int64 {
	return Diff(c, i).Milliseconds()
}

// IsPast reports whether i lies strictly before now.
func IsPast(c Clock, i Instant) bool {
	return Diff(c, i) < 0
}

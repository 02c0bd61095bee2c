// Package viewer is the read-only client side of the realtime protocol.
//
// A viewer subscribes to event and timer channels, drops notifications
// whose updatedAt stamp is not strictly newer than the last one seen on
// that channel, and re-fetches authoritative state both on accepted pushes
// and on a fallback interval, since delivery is at-least-once and may be
// lost entirely.
package viewer

import (
	"sync"
	"time"
)

// Reconciler remembers the newest updatedAt stamp seen per channel.
type Reconciler struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewReconciler() *Reconciler {
	return &Reconciler{last: make(map[string]time.Time)}
}

// Observe records updatedAt for channel and reports whether it is strictly
// newer than the last accepted stamp. Unparseable stamps are rejected.
func (r *Reconciler) Observe(channel, updatedAt string) bool {
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.last[channel]; ok && !ts.After(prev) {
		return false
	}
	r.last[channel] = ts
	return true
}

// Last returns the newest accepted stamp for channel.
func (r *Reconciler) Last(channel string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.last[channel]
	return ts, ok
}

// Forget drops the stamp for channel so the next push is accepted.
func (r *Reconciler) Forget(channel string) {
	r.mu.Lock()
	delete(r.last, channel)
	r.mu.Unlock()
}

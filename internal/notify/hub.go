// Package notify fans realtime updates out to connected jrpc2 clients.
//
// Each websocket connection is served by its own *jrpc2.Server with push
// enabled. Connections register with the Hub and subscribe to channels such
// as "event:<id>" or "timer:<id>"; Publish sends a server push to every
// connection subscribed to the channel or to the wildcard "*".
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/creachadair/jrpc2"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
)

// Wildcard subscribes a connection to every channel.
const Wildcard = "*"

// Message is the params object of every push notification.
type Message struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

// Hub tracks connected servers and their channel subscriptions.
type Hub struct {
	mu   sync.RWMutex
	subs map[*jrpc2.Server]map[string]struct{}
	log  logger.Logger
}

func NewHub(l logger.Logger) *Hub {
	return &Hub{
		subs: make(map[*jrpc2.Server]map[string]struct{}),
		log:  logger.OrNop(l),
	}
}

// Register adds a connection with no subscriptions.
func (h *Hub) Register(srv *jrpc2.Server) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[srv]; !ok {
		h.subs[srv] = make(map[string]struct{})
	}
}

// Unregister drops a connection and all of its subscriptions.
func (h *Hub) Unregister(srv *jrpc2.Server) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, srv)
}

// Subscribe adds channels to the connection's set, registering it if
// needed, and returns the resulting subscription list.
func (h *Hub) Subscribe(srv *jrpc2.Server, channels ...string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[srv]
	if !ok {
		set = make(map[string]struct{})
		h.subs[srv] = set
	}
	for _, c := range channels {
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Unsubscribe removes channels from the connection's set. With no channels
// it clears every subscription but keeps the connection registered.
func (h *Hub) Unsubscribe(srv *jrpc2.Server, channels ...string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[srv]
	if !ok {
		return nil
	}
	if len(channels) == 0 {
		h.subs[srv] = make(map[string]struct{})
		return nil
	}
	for _, c := range channels {
		delete(set, c)
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Publish pushes eventName to every connection subscribed to channel.
// Connections that fail to receive are dropped; their errors are joined
// and wrapped in runshow.ErrTransport.
func (h *Hub) Publish(ctx context.Context, channel, eventName string, payload any) error {
	h.mu.RLock()
	var targets []*jrpc2.Server
	for srv, set := range h.subs {
		_, direct := set[channel]
		_, all := set[Wildcard]
		if direct || all {
			targets = append(targets, srv)
		}
	}
	h.mu.RUnlock()

	msg := Message{Channel: channel, Payload: payload}
	var (
		failed []*jrpc2.Server
		errs   []error
	)
	for _, srv := range targets {
		if err := srv.Notify(ctx, eventName, msg); err != nil {
			failed = append(failed, srv)
			errs = append(errs, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	h.mu.Lock()
	for _, srv := range failed {
		delete(h.subs, srv)
	}
	h.mu.Unlock()
	h.log.Debug("dropped %d unreachable subscriber(s) on %s", len(failed), channel)
	return fmt.Errorf("%w: %s to %d subscriber(s): %w", runshow.ErrTransport, eventName, len(failed), errors.Join(errs...))
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Subscribers returns how many connections would receive a push on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		_, direct := set[channel]
		_, all := set[Wildcard]
		if direct || all {
			n++
		}
	}
	return n
}

var _ runshow.Publisher = (*Hub)(nil)

package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
)

// DefaultFallback is the re-fetch period used when Options.Fallback is zero.
const DefaultFallback = 30 * time.Second

// ErrDisconnected is returned by Run when the server closes the connection.
var ErrDisconnected = errors.New("viewer: connection closed")

// Update describes why a re-fetch is requested. Fallback updates carry no
// channel or payload.
type Update struct {
	Channel   string `json:"channel,omitempty"`
	Event     string `json:"event,omitempty"`
	EventID   string `json:"eventId,omitempty"`
	TimerID   string `json:"timerId,omitempty"`
	ActionID  string `json:"actionId,omitempty"`
	Action    string `json:"action,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// RefetchFunc loads authoritative state after an update.
type RefetchFunc func(ctx context.Context, c *Client, u Update)

// Options configure Dial.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://127.0.0.1:7780/jsonrpc/ws.
	URL   string
	Token string
	// Channels are subscribed right after connecting.
	Channels []string
	Fallback time.Duration
	Refetch  RefetchFunc
	Logger   logger.Logger
	// HTTPClient is used for the websocket handshake.
	HTTPClient *http.Client
}

// Client is a subscribed viewer connection.
type Client struct {
	rpc      *jrpc2.Client
	rec      *Reconciler
	refetch  RefetchFunc
	fallback time.Duration
	log      logger.Logger
	pushes   chan Update
	stopped  chan struct{}
	stopOnce sync.Once
	channels []string
}

// wsChannel adapts a websocket connection to the jrpc2 channel interface.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// Dial connects, subscribes to opts.Channels and returns the client. The
// connection outlives ctx; call Close to end it.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	hdr := http.Header{}
	if opts.Token != "" {
		hdr.Set("Authorization", "Bearer "+opts.Token)
	}
	conn, _, err := cws.Dial(ctx, opts.URL, &cws.DialOptions{HTTPHeader: hdr, HTTPClient: opts.HTTPClient})
	if err != nil {
		return nil, err
	}
	c := &Client{
		rec:      NewReconciler(),
		refetch:  opts.Refetch,
		fallback: opts.Fallback,
		log:      logger.OrNop(opts.Logger),
		pushes:   make(chan Update, 64),
		stopped:  make(chan struct{}),
	}
	if c.fallback <= 0 {
		c.fallback = DefaultFallback
	}
	c.rpc = jrpc2.NewClient(&wsChannel{conn: conn, ctx: context.Background()}, &jrpc2.ClientOptions{
		OnNotify: c.onNotify,
		OnStop: func(*jrpc2.Client, error) {
			c.stopOnce.Do(func() { close(c.stopped) })
		},
	})
	if len(opts.Channels) > 0 {
		if err := c.Subscribe(ctx, opts.Channels...); err != nil {
			c.rpc.Close()
			return nil, err
		}
	}
	return c, nil
}

// Reconciler exposes the client's stamp tracker.
func (c *Client) Reconciler() *Reconciler { return c.rec }

// Subscribe adds channels to the connection's subscriptions. Stamps seen
// earlier on those channels are dropped, so the first push after a
// resubscribe is always accepted.
func (c *Client) Subscribe(ctx context.Context, channels ...string) error {
	var res struct {
		Channels []string `json:"channels"`
	}
	if err := c.rpc.CallResult(ctx, "realtime.subscribe", map[string]any{"channels": channels}, &res); err != nil {
		return err
	}
	for _, ch := range channels {
		c.rec.Forget(ch)
	}
	c.channels = res.Channels
	return nil
}

// Channels returns the subscriptions reported by the last Subscribe.
func (c *Client) Channels() []string { return c.channels }

// Call invokes any RPC method on the shared connection.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	return c.rpc.CallResult(ctx, method, params, result)
}

func (c *Client) onNotify(req *jrpc2.Request) {
	var msg struct {
		Channel string          `json:"channel"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := req.UnmarshalParams(&msg); err != nil {
		c.log.Warning("malformed push %s: %v", req.Method(), err)
		return
	}
	var u Update
	if err := json.Unmarshal(msg.Payload, &u); err != nil {
		c.log.Warning("malformed %s payload on %s: %v", req.Method(), msg.Channel, err)
		return
	}
	u.Channel = msg.Channel
	u.Event = req.Method()
	u.Fallback = false
	if !c.rec.Observe(u.Channel, u.UpdatedAt) {
		last, _ := c.rec.Last(u.Channel)
		c.log.Debug("dropping stale %s on %s (%s, last %s)", u.Event, u.Channel, u.UpdatedAt, last.Format(time.RFC3339Nano))
		return
	}
	select {
	case c.pushes <- u:
	default:
		c.log.Warning("push queue full, dropping %s on %s", u.Event, u.Channel)
	}
}

// Run re-fetches on every accepted push and on the fallback interval until
// ctx ends or the connection closes. One re-fetch runs right away.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.fallback)
	defer ticker.Stop()

	c.fire(ctx, Update{Fallback: true})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopped:
			return ErrDisconnected
		case u := <-c.pushes:
			c.fire(ctx, u)
		case <-ticker.C:
			c.fire(ctx, Update{Fallback: true})
		}
	}
}

func (c *Client) fire(ctx context.Context, u Update) {
	if c.refetch != nil {
		c.refetch(ctx, c, u)
	}
}

// Close ends the connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/tizano/tanstack-wedding-timers-sub000/internal/notify"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
)

// Custom JSON-RPC error codes for lifecycle failures.
const (
	codeNotFound      = jrpc2.Code(-32001)
	codeConflict      = jrpc2.Code(-32009)
	codeDomain        = jrpc2.Code(-32010)
	codeInvalidParams = jrpc2.Code(-32602)
)

// EventLister is implemented by stores that can enumerate events.
type EventLister interface {
	ListEvents(ctx context.Context) ([]*runshow.Event, error)
}

// RPCConfig holds configuration for the JSON-RPC endpoint.
type RPCConfig struct {
	Secret   string // Auth token (required -- empty means RPC disabled)
	Version  string
	Commit   string
	JumpLead time.Duration        // default lead for the jump operations
	Demo     *runshow.DemoMapping // default demo mapping, may be nil
	Origins  []string             // extra websocket origin patterns
}

// RPCServer manages the JSON-RPC 2.0 bridge, the websocket method set and
// the method handlers.
type RPCServer struct {
	bridge    jhttp.Bridge
	wsMethods handler.Map
	secret    string
	version   string
	commit    string
	lead      time.Duration
	demo      *runshow.DemoMapping
	origins   []string
	timers    *runshow.TimerManager
	actions   *runshow.ActionManager
	events    EventLister
	hub       *notify.Hub
	log       logger.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
}

// ChannelsParam is the input for realtime.subscribe and realtime.unsubscribe.
type ChannelsParam struct {
	Channels []string `json:"channels"`
}

// ChannelsResult lists the connection's subscriptions after the call.
type ChannelsResult struct {
	Channels []string `json:"channels"`
}

// EventParam names an event.
type EventParam struct {
	EventID string `json:"eventId"`
}

// TimerParam names a timer, optionally scoped to its event.
type TimerParam struct {
	TimerID string `json:"timerId"`
	EventID string `json:"eventId,omitempty"`
}

// ActionParam names an action.
type ActionParam struct {
	ActionID string `json:"actionId"`
}

// UpdateTimerParams is the input for timer.update.
type UpdateTimerParams struct {
	TimerID string `json:"timerId"`
	runshow.TimerPatch
	Cascade          bool `json:"cascade,omitempty"`
	OriginalDuration *int `json:"originalDuration,omitempty"`
}

// JumpParams is the input for action.jumpBeforeNext and demo.jumpToTimer.
type JumpParams struct {
	TimerID       string `json:"timerId"`
	SecondsBefore *int   `json:"secondsBefore,omitempty"`
}

// DemoParams is the input for demo.reset and demo.start. Fields left
// empty fall back to the configured mapping.
type DemoParams struct {
	EventID         string            `json:"eventId,omitempty"`
	TemplateEventID string            `json:"templateEventId,omitempty"`
	Timers          map[string]string `json:"timers,omitempty"`
}

// CompleteActionResult is the response for action.complete.
type CompleteActionResult struct {
	*runshow.CompleteActionResult
	Timer *runshow.CompleteTimerResult `json:"timerResult,omitempty"`
}

// EventListResult is the response for event.list.
type EventListResult struct {
	Events []*runshow.Event `json:"events"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}

// NewRPCServer creates a new RPCServer with method handlers and HTTP bridge.
// events may be nil, in which case event.list is not offered.
func NewRPCServer(cfg *RPCConfig, timers *runshow.TimerManager, actions *runshow.ActionManager, events EventLister, hub *notify.Hub, l logger.Logger) *RPCServer {
	rs := &RPCServer{
		secret:  cfg.Secret,
		version: cfg.Version,
		commit:  cfg.Commit,
		lead:    cfg.JumpLead,
		demo:    cfg.Demo,
		origins: cfg.Origins,
		timers:  timers,
		actions: actions,
		events:  events,
		hub:     hub,
		log:     logger.OrNop(l),
		done:    make(chan struct{}),
	}
	if rs.lead <= 0 {
		rs.lead = runshow.DefaultJumpLead
	}

	methods := handler.Map{
		"system.getVersion":     handler.New(rs.systemGetVersion),
		"event.get":             handler.New(rs.eventGet),
		"timer.get":             handler.New(rs.timerGet),
		"timer.start":           handler.New(rs.timerStart),
		"timer.startManual":     handler.New(rs.timerStartManual),
		"timer.complete":        handler.New(rs.timerComplete),
		"timer.update":          handler.New(rs.timerUpdate),
		"timer.actions":         handler.New(rs.timerActions),
		"timer.checkDue":        handler.New(rs.timerCheckDue),
		"timer.checkPunctual":   handler.New(rs.timerCheckPunctual),
		"action.next":           handler.New(rs.actionNext),
		"action.current":        handler.New(rs.actionCurrent),
		"action.start":          handler.New(rs.actionStart),
		"action.complete":       handler.New(rs.actionComplete),
		"action.resetAll":       handler.New(rs.actionResetAll),
		"action.jumpBeforeNext": handler.New(rs.actionJumpBeforeNext),
		"demo.reset":            handler.New(rs.demoReset),
		"demo.start":            handler.New(rs.demoStart),
		"demo.jumpToTimer":      handler.New(rs.demoJumpToTimer),
	}
	if events != nil {
		methods["event.list"] = handler.New(rs.eventList)
	}

	// Subscriptions only make sense on a persistent connection.
	rs.wsMethods = make(handler.Map, len(methods)+2)
	for name, h := range methods {
		rs.wsMethods[name] = h
	}
	rs.wsMethods["realtime.subscribe"] = handler.New(rs.realtimeSubscribe)
	rs.wsMethods["realtime.unsubscribe"] = handler.New(rs.realtimeUnsubscribe)

	rs.bridge = jhttp.NewBridge(methods, nil)
	return rs
}

// rpcError maps lifecycle error kinds onto JSON-RPC error codes.
func rpcError(err error) error {
	var code jrpc2.Code
	switch {
	case err == nil:
		return nil
	case errors.Is(err, runshow.ErrNotFound):
		code = codeNotFound
	case errors.Is(err, runshow.ErrConflict):
		code = codeConflict
	case errors.Is(err, runshow.ErrDomain):
		code = codeDomain
	default:
		code = jrpc2.InternalError
	}
	return &jrpc2.Error{Code: code, Message: err.Error()}
}

func missing(param string) error {
	return &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: " + param}
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{Version: rs.version, Commit: rs.commit}, nil
}

func (rs *RPCServer) realtimeSubscribe(ctx context.Context, p *ChannelsParam) (*ChannelsResult, error) {
	if len(p.Channels) == 0 {
		return nil, missing("channels")
	}
	srv := jrpc2.ServerFromContext(ctx)
	return &ChannelsResult{Channels: rs.hub.Subscribe(srv, p.Channels...)}, nil
}

func (rs *RPCServer) realtimeUnsubscribe(ctx context.Context, p *ChannelsParam) (*ChannelsResult, error) {
	srv := jrpc2.ServerFromContext(ctx)
	left := rs.hub.Unsubscribe(srv, p.Channels...)
	if left == nil {
		left = []string{}
	}
	return &ChannelsResult{Channels: left}, nil
}

func (rs *RPCServer) eventList(ctx context.Context) (*EventListResult, error) {
	events, err := rs.events.ListEvents(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	if events == nil {
		events = []*runshow.Event{}
	}
	return &EventListResult{Events: events}, nil
}

// eventGet returns the full snapshot viewers re-fetch after a push.
func (rs *RPCServer) eventGet(ctx context.Context, p *EventParam) (*runshow.EventSnapshot, error) {
	if p.EventID == "" {
		return nil, missing("eventId")
	}
	snap, err := rs.timers.Snapshot(ctx, p.EventID)
	return snap, rpcError(err)
}

func (rs *RPCServer) timerGet(ctx context.Context, p *TimerParam) (*runshow.TimerView, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	v, err := rs.timers.View(ctx, p.TimerID)
	return v, rpcError(err)
}

func (rs *RPCServer) timerStart(ctx context.Context, p *TimerParam) (*runshow.StartTimerResult, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	if p.EventID == "" {
		return nil, missing("eventId")
	}
	res, err := rs.timers.Start(ctx, p.TimerID, p.EventID)
	return res, rpcError(err)
}

func (rs *RPCServer) timerStartManual(ctx context.Context, p *TimerParam) (*runshow.StartTimerResult, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	if p.EventID == "" {
		return nil, missing("eventId")
	}
	res, err := rs.timers.StartPunctualOrManual(ctx, p.TimerID, p.EventID)
	return res, rpcError(err)
}

func (rs *RPCServer) timerComplete(ctx context.Context, p *TimerParam) (*runshow.CompleteTimerResult, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	res, err := rs.timers.Complete(ctx, p.TimerID)
	return res, rpcError(err)
}

func (rs *RPCServer) timerUpdate(ctx context.Context, p *UpdateTimerParams) (*runshow.Timer, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	t, err := rs.timers.UpdateFields(ctx, p.TimerID, p.TimerPatch, runshow.UpdateOptions{
		Cascade:          p.Cascade,
		OriginalDuration: p.OriginalDuration,
	})
	return t, rpcError(err)
}

func (rs *RPCServer) timerActions(ctx context.Context, p *TimerParam) ([]runshow.ActionTiming, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	_, _, timings, err := rs.actions.Timings(ctx, p.TimerID)
	if err != nil {
		return nil, rpcError(err)
	}
	if timings == nil {
		timings = []runshow.ActionTiming{}
	}
	return timings, nil
}

func (rs *RPCServer) timerCheckDue(ctx context.Context, p *EventParam) (*runshow.Timer, error) {
	if p.EventID == "" {
		return nil, missing("eventId")
	}
	t, err := rs.timers.CheckAndStartIfDue(ctx, p.EventID)
	return t, rpcError(err)
}

func (rs *RPCServer) timerCheckPunctual(ctx context.Context, p *EventParam) (*runshow.Timer, error) {
	if p.EventID == "" {
		return nil, missing("eventId")
	}
	t, err := rs.timers.CheckAndStartPunctual(ctx, p.EventID)
	return t, rpcError(err)
}

func (rs *RPCServer) actionNext(ctx context.Context, p *TimerParam) (*runshow.ScheduledAction, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	a, err := rs.actions.NextAction(ctx, p.TimerID)
	return a, rpcError(err)
}

func (rs *RPCServer) actionCurrent(ctx context.Context, p *TimerParam) (*runshow.ScheduledAction, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	a, err := rs.actions.CurrentAction(ctx, p.TimerID)
	return a, rpcError(err)
}

func (rs *RPCServer) actionStart(ctx context.Context, p *ActionParam) (*runshow.StartActionResult, error) {
	if p.ActionID == "" {
		return nil, missing("actionId")
	}
	res, err := rs.actions.Start(ctx, p.ActionID)
	return res, rpcError(err)
}

// actionComplete completes the action and, with it, a timer whose last
// pending action this was.
func (rs *RPCServer) actionComplete(ctx context.Context, p *ActionParam) (*CompleteActionResult, error) {
	if p.ActionID == "" {
		return nil, missing("actionId")
	}
	res, tres, err := rs.timers.CompleteAction(ctx, p.ActionID)
	if err != nil {
		return nil, rpcError(err)
	}
	return &CompleteActionResult{CompleteActionResult: res, Timer: tres}, nil
}

func (rs *RPCServer) actionResetAll(ctx context.Context, p *TimerParam) (*EmptyResult, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	if err := rs.actions.ResetAll(ctx, p.TimerID); err != nil {
		return nil, rpcError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) leadFor(p *JumpParams) (time.Duration, error) {
	if p.SecondsBefore == nil {
		return rs.lead, nil
	}
	if *p.SecondsBefore < 0 {
		return 0, &jrpc2.Error{Code: codeInvalidParams, Message: "secondsBefore must not be negative"}
	}
	return time.Duration(*p.SecondsBefore) * time.Second, nil
}

func (rs *RPCServer) actionJumpBeforeNext(ctx context.Context, p *JumpParams) (*runshow.JumpResult, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	lead, err := rs.leadFor(p)
	if err != nil {
		return nil, err
	}
	res, err := rs.actions.JumpToBeforeNext(ctx, p.TimerID, lead)
	return res, rpcError(err)
}

// demoMapping merges the request with the configured mapping.
func (rs *RPCServer) demoMapping(p *DemoParams) (*runshow.DemoMapping, error) {
	m := runshow.DemoMapping{EventID: p.EventID, TemplateEventID: p.TemplateEventID, Timers: p.Timers}
	if rs.demo != nil {
		if m.EventID == "" {
			m.EventID = rs.demo.EventID
		}
		if m.TemplateEventID == "" {
			m.TemplateEventID = rs.demo.TemplateEventID
		}
		if len(m.Timers) == 0 {
			m.Timers = rs.demo.Timers
		}
	}
	switch {
	case m.EventID == "":
		return nil, missing("eventId")
	case m.TemplateEventID == "":
		return nil, missing("templateEventId")
	}
	return &m, nil
}

func (rs *RPCServer) demoReset(ctx context.Context, p *DemoParams) (*EmptyResult, error) {
	m, err := rs.demoMapping(p)
	if err != nil {
		return nil, err
	}
	if err := rs.timers.ResetFromTemplate(ctx, m.EventID, m.TemplateEventID, m.Timers); err != nil {
		return nil, rpcError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) demoStart(ctx context.Context, p *DemoParams) (*runshow.Timer, error) {
	m, err := rs.demoMapping(p)
	if err != nil {
		return nil, err
	}
	t, err := rs.timers.StartDemo(ctx, m.EventID, m.TemplateEventID, m.Timers)
	return t, rpcError(err)
}

func (rs *RPCServer) demoJumpToTimer(ctx context.Context, p *JumpParams) (*runshow.Timer, error) {
	if p.TimerID == "" {
		return nil, missing("timerId")
	}
	lead, err := rs.leadFor(p)
	if err != nil {
		return nil, err
	}
	t, err := rs.timers.JumpToTimer(ctx, p.TimerID, lead)
	return t, rpcError(err)
}

// Close shuts down the jrpc2 bridge and every open websocket session.
func (rs *RPCServer) Close() {
	rs.closeOnce.Do(func() {
		close(rs.done)
		rs.bridge.Close()
	})
}

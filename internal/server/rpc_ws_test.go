package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
)

// newTestWS starts an httptest server over the env's handler and returns
// the websocket URL.
func newTestWS(t *testing.T, e *testEnv) string {
	t.Helper()
	srv := httptest.NewServer(e.web.Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/jsonrpc/ws"
}

func dialWS(t *testing.T, ctx context.Context, wsURL string) *cws.Conn {
	t.Helper()
	conn, _, err := cws.Dial(ctx, wsURL, &cws.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + testSecret},
		},
	})
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close(cws.StatusNormalClosure, "") })
	return conn
}

// wsRoundTrip writes a request and reads messages until the response with
// the same id arrives, returning it and any pushes seen on the way.
func wsRoundTrip(t *testing.T, ctx context.Context, conn *cws.Conn, id int, method string, params any) (map[string]any, []map[string]any) {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "method": method, "id": id}
	if params != nil {
		req["params"] = params
	}
	data, _ := json.Marshal(req)
	if err := conn.Write(ctx, cws.MessageText, data); err != nil {
		t.Fatalf("WebSocket write failed: %v", err)
	}
	var pushes []map[string]any
	for {
		_, respData, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("WebSocket read failed: %v", err)
		}
		var msg map[string]any
		if err := json.Unmarshal(respData, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got, ok := msg["id"].(float64); ok && int(got) == id {
			return msg, pushes
		}
		pushes = append(pushes, msg)
	}
}

func TestWebSocketEndpoint_AuthRequired(t *testing.T) {
	wsURL := newTestWS(t, newTestEnv(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := cws.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatal("expected error for unauthorized WebSocket connection")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWebSocketEndpoint_QueryToken(t *testing.T) {
	wsURL := newTestWS(t, newTestEnv(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := cws.Dial(ctx, wsURL+"?access_token="+testSecret, nil)
	if err != nil {
		t.Fatalf("dial with query token: %v", err)
	}
	defer conn.Close(cws.StatusNormalClosure, "")

	resp, _ := wsRoundTrip(t, ctx, conn, 1, "system.getVersion", nil)
	if r, ok := resp["result"].(map[string]any); !ok || r["version"] != "1.0.0" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestWebSocketEndpoint_SubscribeAndPush(t *testing.T) {
	e := newTestEnv(t)
	wsURL := newTestWS(t, e)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialWS(t, ctx, wsURL)

	resp, _ := wsRoundTrip(t, ctx, conn, 1, "realtime.subscribe", map[string]any{
		"channels": []string{runshow.EventChannel("e1"), runshow.TimerChannel("e1-t1")},
	})
	r, ok := resp["result"].(map[string]any)
	if !ok || len(r["channels"].([]any)) != 2 {
		t.Fatalf("subscribe = %v", resp)
	}
	if n := e.hub.Subscribers(runshow.EventChannel("e1")); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	// Start the timer over the same connection; the push may arrive before
	// or after the response.
	resp, pushes := wsRoundTrip(t, ctx, conn, 2, "timer.start", map[string]any{"timerId": "e1-t1", "eventId": "e1"})
	if resp["error"] != nil {
		t.Fatalf("timer.start failed: %v", resp["error"])
	}
	for len(pushes) == 0 {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for push: %v", err)
		}
		var msg map[string]any
		_ = json.Unmarshal(data, &msg)
		pushes = append(pushes, msg)
	}

	push := pushes[0]
	if push["method"] != runshow.EventTimerUpdated {
		t.Fatalf("unexpected push method: %v", push)
	}
	params := push["params"].(map[string]any)
	if params["channel"] != "event:e1" {
		t.Fatalf("unexpected channel: %v", params["channel"])
	}
	payload := params["payload"].(map[string]any)
	if payload["timerId"] != "e1-t1" || payload["action"] != runshow.TagStarted || payload["updatedAt"] == "" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestWebSocketEndpoint_Unsubscribe(t *testing.T) {
	e := newTestEnv(t)
	wsURL := newTestWS(t, e)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialWS(t, ctx, wsURL)

	wsRoundTrip(t, ctx, conn, 1, "realtime.subscribe", map[string]any{"channels": []string{"*"}})
	resp, _ := wsRoundTrip(t, ctx, conn, 2, "realtime.unsubscribe", map[string]any{})
	r := resp["result"].(map[string]any)
	if len(r["channels"].([]any)) != 0 {
		t.Fatalf("expected no channels left, got %v", r)
	}
	if e.hub.Subscribers("event:e1") != 0 {
		t.Fatal("wildcard subscription survived unsubscribe")
	}
}

func TestWebSocketEndpoint_HubRegistration(t *testing.T) {
	e := newTestEnv(t)
	wsURL := newTestWS(t, e)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := cws.Dial(ctx, wsURL, &cws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + testSecret}},
	})
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	// A round trip guarantees the server side is registered.
	wsRoundTrip(t, ctx, conn, 1, "system.getVersion", nil)
	if e.hub.Count() != 1 {
		t.Fatalf("expected 1 registered connection, got %d", e.hub.Count())
	}

	conn.Close(cws.StatusNormalClosure, "")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.hub.Count() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected 0 registered connections after disconnect, got %d", e.hub.Count())
}

func TestWebSocketEndpoint_CloseStopsSessions(t *testing.T) {
	e := newTestEnv(t)
	wsURL := newTestWS(t, e)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialWS(t, ctx, wsURL)
	wsRoundTrip(t, ctx, conn, 1, "system.getVersion", nil)

	e.rpc.Close()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected the session to end after Close")
	}
}

package server

import (
	"context"
	"net/http"

	"github.com/creachadair/jrpc2"
	cws "github.com/coder/websocket"
)

// wsChannel adapts a coder/websocket.Conn to the jrpc2 Channel interface.
// Each WebSocket connection gets one wsChannel feeding its own jrpc2 server.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

// Send writes a JSON-RPC message to the WebSocket connection.
func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

// Recv reads a JSON-RPC message from the WebSocket connection.
func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

// Close shuts down the WebSocket connection with a normal closure status.
func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// serveWS upgrades the request and serves JSON-RPC on it until the peer
// goes away. The connection is registered with the hub for pushes for as
// long as it is open.
func (rs *RPCServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, &cws.AcceptOptions{OriginPatterns: rs.origins})
	if err != nil {
		rs.log.Warning("websocket accept failed: %v", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	srv := jrpc2.NewServer(rs.wsMethods, &jrpc2.ServerOptions{AllowPush: true})
	rs.hub.Register(srv)
	srv.Start(&wsChannel{conn: conn, ctx: ctx})
	go func() {
		select {
		case <-rs.done:
			srv.Stop()
		case <-ctx.Done():
		}
	}()
	rs.log.Debug("websocket client connected from %s", r.RemoteAddr)

	err = srv.Wait()
	rs.hub.Unregister(srv)
	rs.log.Debug("websocket client %s disconnected: %v", r.RemoteAddr, err)
}

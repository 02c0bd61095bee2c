// Package server exposes the timer engine as JSON-RPC 2.0 over HTTP and
// websockets.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
)

// WebServer exposes the JSON-RPC surface over HTTP: plain POST requests at
// /jsonrpc through the jrpc2 bridge and persistent connections with push
// notifications at /jsonrpc/ws.
type WebServer struct {
	addr   string
	l      logger.Logger
	rpc    *RPCServer
	server *http.Server
	mu     sync.Mutex
}

func NewWebServer(l logger.Logger, addr string, rpc *RPCServer) *WebServer {
	return &WebServer{addr: addr, l: logger.OrNop(l), rpc: rpc}
}

// Handler returns the routed endpoints: /jsonrpc, /jsonrpc/ws and /healthz.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/jsonrpc", requireToken(s.rpc.secret, s.rpc.bridge))
	mux.Handle("/jsonrpc/ws", requireToken(s.rpc.secret, http.HandlerFunc(s.rpc.serveWS)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *WebServer) newHTTPServer() *http.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.server
}

// Serve serves on an existing listener until Shutdown.
func (s *WebServer) Serve(ln net.Listener) error {
	srv := s.newHTTPServer()
	s.l.Info("listening on %s", ln.Addr())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the web server and the RPC bridge.
func (s *WebServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rpc.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

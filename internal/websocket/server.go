// Package websocket serves the daemon's JSON-RPC methods over WebSocket and
// exposes /metrics on the same HTTP mux. It answers requests only; it never
// pushes unsolicited frames.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leonletto/carlot/internal/metrics"
	"github.com/leonletto/carlot/internal/transport"
)

// Server represents the WebSocket RPC server.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader
	router     *transport.Router
	clients    *ClientRegistry
	metrics    *metrics.Metrics
	mu         sync.RWMutex
	shutdown   bool
	wg         sync.WaitGroup
}

// NewServer creates a new WebSocket RPC server.
// Addr format: "host:port" (e.g., "localhost:9999"); port 0 picks a free
// port at Start. m may be nil, in which case /metrics is not mounted.
func NewServer(addr string, router *transport.Router, m *metrics.Metrics) *Server {
	s := &Server{
		addr:    addr,
		router:  router,
		clients: NewClientRegistry(),
		metrics: m,
		upgrader: websocket.Upgrader{
			// Every method except health needs a session token, and the
			// seeding methods refuse WebSocket callers outright.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	s.mux = http.NewServeMux()
	if m != nil {
		s.mux.Handle("/metrics", m.Handler())
	}
	s.mux.HandleFunc("/", s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler (WebSocket endpoint plus /metrics) so it
// can be served on additional listeners such as a tailnet.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Clients returns the registry of open connections.
func (s *Server) Clients() *ClientRegistry {
	return s.clients
}

// Start binds the listen address and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return fmt.Errorf("server is shutting down")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("websocket: server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the WebSocket server and waits for all connections to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.clients.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Printf("websocket: timed out waiting for connections to close")
	}

	return nil
}

// Addr returns the address the server is listening on. After Start this is
// the bound address, with any port 0 resolved.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Port returns the port number the server is listening on.
// Returns 0 if the port cannot be parsed from the address.
func (s *Server) Port() int {
	_, portStr, err := net.SplitHostPort(s.Addr())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// handleWebSocket handles the WebSocket upgrade and connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Hold the read lock across both the shutdown check and wg.Add so Stop
	// cannot call wg.Wait between them.
	s.mu.RLock()
	if s.shutdown {
		s.mu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wg.Done()
		log.Printf("websocket: upgrade error: %v", err)
		return
	}

	go s.handleConnection(context.Background(), conn)
}

// handleConnection manages a single WebSocket connection.
func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wsConn := NewConnection(conn, s.router)
	s.clients.Add(wsConn)
	s.metricsGauge(1)
	defer func() {
		s.clients.Remove(wsConn)
		s.metricsGauge(-1)
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- wsConn.ReadLoop(ctx)
	}()
	go func() {
		errCh <- wsConn.WriteLoop(ctx)
	}()

	if err := <-errCh; err != nil {
		log.Printf("websocket: connection %s closed: %v", conn.RemoteAddr(), err)
	}
	_ = wsConn.Close()
}

func (s *Server) metricsGauge(delta float64) {
	if s.metrics != nil {
		s.metrics.WebSocketConnections.Add(delta)
	}
}

package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/threshold-alarm/internal/api/protocol"
	"github.com/oshokin/threshold-alarm/internal/hub"
	"github.com/oshokin/threshold-alarm/internal/logger"
)

// Engine is the part of the engine used by WebSocket connections.
type Engine interface {
	protocol.Controller
	Subscribe(ctx context.Context, sub hub.Subscriber) error
	Unsubscribe(ctx context.Context, id string)
}

// Options tunes connection handling.
type Options struct {
	// BufferSize is the outbox length per connection.
	BufferSize int
	// WriteTimeout bounds a single socket write.
	WriteTimeout time.Duration
	// PongWait is how long a connection may stay silent before it is closed.
	PongWait time.Duration
	// MaxMessageSize limits inbound frames.
	MaxMessageSize int64
}

const (
	defaultBufferSize     = 64
	defaultWriteTimeout   = 5 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 << 10
)

// Server upgrades HTTP requests and runs one session per connection.
type Server struct {
	// engine executes commands and owns the hub.
	engine Engine
	// upgrader performs the WebSocket handshake.
	upgrader websocket.Upgrader
	// opts holds resolved connection settings.
	opts Options
	// conns tracks open connections so Close can end them.
	conns map[string]*websocket.Conn
	// closed rejects new connections after Close.
	closed bool
	// wg tracks running sessions.
	wg sync.WaitGroup
	// mu guards conns and closed.
	mu sync.Mutex
}

// NewServer creates a WebSocket server driving engine.
func NewServer(engine Engine, opts Options) *Server {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}

	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}

	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}

	return &Server{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The dashboard may be served from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		opts:  opts,
		conns: make(map[string]*websocket.Conn),
	}
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)

		return
	}

	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(r.Context(), "WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)

		return
	}

	outbox := protocol.NewOutbox(s.opts.BufferSize)
	ctx := logger.WithKV(logger.WithName(context.WithoutCancel(r.Context()), "ws"),
		"client_id", outbox.ID(), "remote_addr", r.RemoteAddr)

	s.track(outbox.ID(), conn)
	defer s.untrack(outbox.ID())

	sess := &session{
		conn:   conn,
		outbox: outbox,
		engine: s.engine,
		opts:   s.opts,
	}

	sess.run(ctx)
}

// Close ends every open connection and waits for their sessions to finish.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true

	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}

func (s *Server) track(id string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[id] = conn
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, id)
}

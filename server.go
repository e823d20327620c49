package plume

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"
)

// ErrServerClosed is returned by Serve after Shutdown or Close.
var ErrServerClosed = errors.New("smtp: server closed")

// ServerConfig configures a Server. Session-level knobs are carried through
// to every connection's SessionConfig.
type ServerConfig struct {
	// Addr is the listen address. Defaults to ":25".
	Addr string
	// Hostname is required; it is announced in greetings.
	Hostname string
	// TLSConfig enables STARTTLS on accepted connections.
	TLSConfig *tls.Config
	// MaxConnections caps concurrent connections. Zero means unlimited.
	MaxConnections int
	// MaxMessageSize, MaxRecipients and ReadTimeout are per-session limits.
	MaxMessageSize int64
	MaxRecipients  int
	ReadTimeout    time.Duration
	Logger         *slog.Logger
}

// Server accepts connections and runs one Session per connection. The
// handler factory is called once per connection so every session gets its
// own logical handler copy; sharing across connections is then the
// handler's explicit choice.
type Server[S any, H Handler[S]] struct {
	config  ServerConfig
	factory func() H

	listener net.Listener

	connMu      sync.Mutex
	connections map[net.Conn]struct{}

	shutdownWg sync.WaitGroup
	closed     atomic.Bool
}

// NewServer creates a server that builds a handler per connection via
// factory. The type parameter S is supplied by the caller; H is inferred.
func NewServer[S any, H Handler[S]](config ServerConfig, factory func() H) (*Server[S, H], error) {
	if config.Hostname == "" {
		return nil, errors.New("smtp: hostname is required")
	}
	if config.Addr == "" {
		config.Addr = ":25"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 5 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Server[S, H]{
		config:      config,
		factory:     factory,
		connections: make(map[net.Conn]struct{}),
	}, nil
}

// ListenAndServe starts the server on the configured address.
func (s *Server[S, H]) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("smtp: failed to listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on the listener and handles them.
func (s *Server[S, H]) Serve(listener net.Listener) error {
	if s.config.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.config.MaxConnections)
	}
	s.listener = listener

	s.config.Logger.Info("SMTP server started",
		slog.String("addr", listener.Addr().String()),
		slog.String("hostname", s.config.Hostname),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			s.config.Logger.Error("accept error", slog.Any("error", err))
			continue
		}

		s.shutdownWg.Add(1)
		go s.handleConnection(conn)
	}
}

// Shutdown stops accepting connections, notifies connected clients with a
// 421 reply, and waits for active sessions up to the context deadline.
func (s *Server[S, H]) Shutdown(ctx context.Context) error {
	s.closed.Store(true)

	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.sendShutdownResponse()

	done := make(chan struct{})
	go func() {
		s.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.connMu.Lock()
		for conn := range s.connections {
			_ = conn.Close()
		}
		s.connMu.Unlock()
		return ctx.Err()
	}
}

// Close immediately closes the server and all connections.
func (s *Server[S, H]) Close() error {
	s.closed.Store(true)

	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.sendShutdownResponse()

	s.connMu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.connMu.Unlock()
	return nil
}

// sendShutdownResponse sends a 421 reply to all connected clients and closes
// them. Per RFC 5321, servers should send 421 before closing connections.
func (s *Server[S, H]) sendShutdownResponse() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	resp := Response{
		Code:    CodeServiceUnavailable,
		Message: s.config.Hostname + " Service shutting down",
	}
	for conn := range s.connections {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_, _ = conn.Write([]byte(resp.String() + "\r\n"))
		_ = conn.Close()
	}
}

func (s *Server[S, H]) handleConnection(conn net.Conn) {
	defer s.shutdownWg.Done()

	s.connMu.Lock()
	s.connections[conn] = struct{}{}
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		delete(s.connections, conn)
		s.connMu.Unlock()
		_ = conn.Close()
	}()

	logger := s.config.Logger.With(slog.String("remote", conn.RemoteAddr().String()))
	logger.Info("client connected")

	session := NewSession[S](NewNetStream(conn), s.factory(), SessionConfig{
		Hostname:       s.config.Hostname,
		TLSConfig:      s.config.TLSConfig,
		MaxMessageSize: s.config.MaxMessageSize,
		MaxRecipients:  s.config.MaxRecipients,
		ReadTimeout:    s.config.ReadTimeout,
		Logger:         s.config.Logger,
	})
	if err := session.Serve(); err != nil {
		logger.Warn("session ended with error", slog.Any("error", err))
		return
	}
	logger.Info("client disconnected")
}

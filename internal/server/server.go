package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/linkctl/internal/link"
	"github.com/danmuck/linkctl/internal/observability"
	"github.com/danmuck/linkctl/internal/protocol"
	"github.com/danmuck/linkctl/internal/transport"
)

var ErrServerClosed = errors.New("server: closed")

// Server accepts sockets and drives each through a server-role connection.
// All connections share the method registry and the shutdown signal; one
// connection failing never affects its siblings or the accept loop.
type Server struct {
	registry *Registry
	limits   protocol.Limits
	shutdown chan struct{}

	mu        sync.Mutex
	listeners map[net.Listener]struct{}

	closeOnce sync.Once
	conns     sync.WaitGroup
	log       zerolog.Logger
}

func New(registry *Registry) *Server {
	return NewWithLimits(registry, protocol.DefaultLimits())
}

func NewWithLimits(registry *Registry, limits protocol.Limits) *Server {
	return &Server{
		registry:  registry,
		limits:    limits,
		shutdown:  make(chan struct{}),
		listeners: make(map[net.Listener]struct{}),
		log:       log.With().Str("role", "server").Logger(),
	}
}

// Serve accepts connections until the listener fails or Shutdown runs.
func (s *Server) Serve(l net.Listener) error {
	if !s.trackListener(l) {
		return ErrServerClosed
	}
	defer s.untrackListener(l)

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return ErrServerClosed
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			return err
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.ServeConn(conn)
		}()
	}
}

// ServeConn runs one already-established socket to completion.
func (s *Server) ServeConn(sock transport.Socket) {
	observability.RecordConnectionOpened("server")
	st := newConnState(s)
	c := link.NewWithLimits(sock, st, s.limits)
	_ = c.Run()
	// Handlers may still be finishing against the canceled conn context.
	st.handlers.Wait()
}

// Shutdown stops the accept loops, signals every live connection, and waits
// for them to unwind or the context to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.shutdown)
		s.mu.Lock()
		for l := range s.listeners {
			_ = l.Close()
		}
		s.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) trackListener(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdown:
		return false
	default:
	}
	s.listeners[l] = struct{}{}
	return true
}

func (s *Server) untrackListener(l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, l)
}

package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// ErrNilHandler is returned by Listen when no connection handler is given
var ErrNilHandler = errors.New("handler cannot be nil")

// ConnHandler serves one accepted connection and owns closing it
type ConnHandler interface {
	Handle(conn net.Conn)
}

// HandlerFunc adapts a function to ConnHandler
type HandlerFunc func(conn net.Conn)

// Handle calls f(conn)
func (f HandlerFunc) Handle(conn net.Conn) { f(conn) }

// Server accepts drill connections and hands each one to its own goroutine
type Server struct {
	listener net.Listener
	handler  ConnHandler
	logger   *zap.SugaredLogger
	retry    *backoff.Backoff

	closeOnce sync.Once
}

// Listen binds addr. A bind failure is returned to the caller, which is
// expected to abort startup.
func Listen(addr string, handler ConnHandler, logger *zap.SugaredLogger) (*Server, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &Server{
		listener: ln,
		handler:  handler,
		logger:   logger,
		retry: &backoff.Backoff{
			Min:    5 * time.Millisecond,
			Max:    time.Second,
			Factor: 2,
		},
	}, nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until ctx is cancelled or the listener is
// closed. Spawned connection goroutines are not waited for.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.Close()
	})
	defer stop()

	s.logger.Infow("Drill server listening", "addr", s.Addr().String())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				s.logger.Infow("Drill server stopped")
				return nil
			}

			delay := s.retry.Duration()
			s.logger.Warnw("Accept failed", "error", err, "retry_in", delay.String())
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		s.retry.Reset()

		s.logger.Debugw("Accepted connection", "remote", conn.RemoteAddr().String())
		go s.handler.Handle(conn)
	}
}

// Close stops accepting new connections. Connections already handed off
// keep running.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.listener.Close()
	})
	return err
}

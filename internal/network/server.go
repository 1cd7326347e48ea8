package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"w24fs/internal/logger"
	"w24fs/internal/metrics"
	"w24fs/internal/mirror"
	"w24fs/internal/protocol"
	"w24fs/internal/router"
	"w24fs/internal/transaction"
	"w24fs/internal/types"
)

// Server accepts client connections for one node. A primary (Proxy set)
// routes each connection by its ordinal; a mirror serves everything locally.
type Server struct {
	Port      int
	TxManager *transaction.Manager
	Proxy     *mirror.Proxy

	accepted atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(port int, txMgr *transaction.Manager, proxy *mirror.Proxy) *Server {
	return &Server{
		Port:      port,
		TxManager: txMgr,
		Proxy:     proxy,
		conns:     make(map[net.Conn]struct{}),
	}
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts on listener until Shutdown. Each connection gets the next
// ordinal, starting at 1, before its goroutine starts.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return net.ErrClosed
	}
	s.listener = listener
	s.mu.Unlock()
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("Accept error: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		ordinal := s.accepted.Add(1)
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn, ordinal)
		}()
	}
}

// Addr is the bound listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Accepted is the number of connections accepted so far.
func (s *Server) Accepted() uint64 {
	return s.accepted.Load()
}

// Shutdown stops accepting and waits for open connections to finish. When
// ctx expires first the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	metrics.ConnectionOpened()
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	metrics.ConnectionClosed()
}

func (s *Server) handleConnection(conn net.Conn, ordinal uint64) {
	defer conn.Close()

	route := types.RouteLocal
	if s.Proxy != nil {
		route = router.Route(ordinal)
	}
	metrics.RecordConnection(route.String())
	logger.Info("Connection %d from %s -> %s", ordinal, conn.RemoteAddr(), route)

	for {
		buf, err := protocol.ReadFrame(conn, protocol.MaxCommandSize)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Error("Connection %d read error: %v", ordinal, err)
			}
			return
		}

		cmd := protocol.Parse(string(buf))
		if cmd.Op == types.OpQuit {
			logger.Info("Connection %d quit", ordinal)
			return
		}

		if err := s.dispatch(conn, ordinal, route, cmd); err != nil {
			logger.Error("Connection %d write error: %v", ordinal, err)
			return
		}
	}
}

// dispatch answers one command. Only a failed write to the client is
// returned; everything else becomes response text.
func (s *Server) dispatch(conn net.Conn, ordinal uint64, route types.RouteDecision, cmd types.Command) error {
	if route == types.RouteLocal {
		resp, err := s.TxManager.Submit(context.Background(), ordinal, cmd)
		if err != nil {
			resp.Frames = protocol.Terminate(cmd, []string{"Server shutting down"})
		}
		return writeFrames(conn, resp.Frames)
	}

	// primary-side pre-validation: malformed commands never reach a mirror
	if reason := protocol.Rejection(cmd); reason != "" {
		metrics.RecordCommand(cmd.Op.String(), "rejected", 0)
		return protocol.WriteString(conn, reason)
	}

	n, err := s.Proxy.Forward(context.Background(), route, cmd, conn)
	if err == nil {
		return nil
	}
	if !errors.Is(err, mirror.ErrMirrorUnavailable) && !errors.Is(err, mirror.ErrUnknownTarget) {
		return err
	}
	logger.Error("Connection %d: %v", ordinal, err)
	if n == 0 {
		if werr := protocol.WriteString(conn, mirror.FailureMessage(route)); werr != nil {
			return werr
		}
		n++
	}
	if cmd.Op == types.OpListAlpha && n < 2 {
		return protocol.WriteString(conn, protocol.EndOfData)
	}
	return nil
}

func writeFrames(w io.Writer, frames []string) error {
	for _, f := range frames {
		if err := protocol.WriteString(w, f); err != nil {
			return err
		}
	}
	return nil
}

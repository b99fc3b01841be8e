// Package mpdserver implements a small MPD-compatible daemon that serves a
// table of audio outputs. It speaks enough of the protocol for output
// clients: outputs, enableoutput, disableoutput, toggleoutput, idle, noidle,
// password, ping and command lists.
package mpdserver

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolVersion is announced in the greeting
const ProtocolVersion = "0.23.5"

// Server implements MPD protocol server
type Server struct {
	mu       sync.Mutex
	listener net.Listener
	addr     string
	running  bool
	done     chan struct{}
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup

	outputs  *outputTable
	password string
	logger   *slog.Logger
	metrics  *Metrics

	// Idle state of every connected client
	idleMu   sync.RWMutex
	sessions map[*clientSession]bool
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records server activity in m
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithPassword requires clients to authenticate before any output command
func WithPassword(password string) Option {
	return func(s *Server) {
		s.password = password
	}
}

// NewServer creates a new MPD protocol server serving outputs. Output ids
// are their positions in the slice.
func NewServer(addr string, outputs []Output, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		outputs:  newOutputTable(outputs),
		conns:    make(map[net.Conn]struct{}),
		sessions: make(map[*clientSession]bool),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return s
}

// Start starts the MPD server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start MPD server: %w", err)
	}

	s.listener = listener
	s.running = true
	s.done = make(chan struct{})

	s.logger.Info("MPD server listening", "addr", listener.Addr().String(), "outputs", s.outputs.len())

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every client connection, then waits for all
// connection goroutines to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	s.running = false
	close(s.done)
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("MPD server stopped")
	return err
}

// Outputs returns a copy of the current output table
func (s *Server) Outputs() []Output {
	return s.outputs.snapshot()
}

// SetOutputs replaces the output table and notifies idle clients
func (s *Server) SetOutputs(outputs []Output) {
	s.outputs.replace(outputs)
	s.NotifySubsystemChange("output")
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			s.logger.Warn("accept error", "error", err)
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn)
	}
}

// untrack forgets and closes a client connection
func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

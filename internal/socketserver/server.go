package socketserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/tokengate/internal/challenge"
	"github.com/codefionn/tokengate/internal/consts"
	"github.com/codefionn/tokengate/internal/logger"
	"github.com/codefionn/tokengate/internal/metrics"
	"github.com/codefionn/tokengate/internal/ratelimiter"
)

// ErrStopped is returned by Start once the server has been stopped. A stopped
// server cannot be restarted.
var ErrStopped = errors.New("server stopped")

// Dispatch modes.
const (
	DispatchSerial     = "serial"
	DispatchConcurrent = "concurrent"
)

// Listener names accepted by Addr.
const (
	Issue    = metrics.PortIssue
	Validate = metrics.PortValidate
)

// Config describes where the server listens and how it dispatches.
type Config struct {
	Host         string
	IssuePort    int
	ValidatePort int
	Dispatch     string
	// MaxConnections bounds concurrent handlers in concurrent mode.
	MaxConnections int
	// ReadTimeout and WriteTimeout set per-connection deadlines; zero disables them.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Handlers binds a handler to each port.
type Handlers struct {
	Issue    challenge.Handler
	Validate challenge.Handler
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics reports connection counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithRateLimiter drops connections from hosts that exceed l.
func WithRateLimiter(l *ratelimiter.HostLimiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

type accepted struct {
	conn net.Conn
	name string
}

// Server owns the issuing and validating listeners.
type Server struct {
	cfg      Config
	handlers map[string]challenge.Handler
	metrics  *metrics.Metrics
	limiter  *ratelimiter.HostLimiter
	log      *logger.Logger

	listeners map[string]net.Listener
	byPort    map[int]string // bound local port to listener name
	queue     chan accepted
	slots     chan struct{}
	baseCtx   context.Context

	// Connection tracking
	connMu sync.Mutex
	conns  map[uint64]net.Conn
	connID atomic.Uint64

	// Control
	mu       sync.Mutex
	running  bool
	ready    atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	loops    sync.WaitGroup
	inflight sync.WaitGroup
}

// NewServer creates a server. Listeners are bound by Start.
func NewServer(cfg Config, handlers Handlers, opts ...Option) (*Server, error) {
	if handlers.Issue == nil || handlers.Validate == nil {
		return nil, fmt.Errorf("both port handlers are required")
	}
	if cfg.Host == "" {
		cfg.Host = consts.DefaultHost
	}
	switch strings.ToLower(cfg.Dispatch) {
	case "", DispatchSerial:
		cfg.Dispatch = DispatchSerial
	case DispatchConcurrent:
		cfg.Dispatch = DispatchConcurrent
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q", cfg.Dispatch)
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = consts.DefaultMaxConnections
	}

	s := &Server{
		cfg: cfg,
		handlers: map[string]challenge.Handler{
			Issue:    handlers.Issue,
			Validate: handlers.Validate,
		},
		log:       logger.Global().WithPrefix("server"),
		listeners: make(map[string]net.Listener),
		byPort:    make(map[int]string),
		queue:     make(chan accepted, consts.AcceptQueueSize),
		slots:     make(chan struct{}, cfg.MaxConnections),
		conns:     make(map[uint64]net.Conn),
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s, nil
}

// Start binds both listeners and starts accepting. If either bind fails, the
// other listener is closed and the error is returned. Cancelling ctx stops
// the server for good.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server is already running")
	}
	select {
	case <-s.stopChan:
		return ErrStopped
	default:
	}

	var lc net.ListenConfig
	for _, p := range []struct {
		name string
		port int
	}{{Issue, s.cfg.IssuePort}, {Validate, s.cfg.ValidatePort}} {
		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(p.port))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			s.closeListeners()
			s.listeners = make(map[string]net.Listener)
			s.byPort = make(map[int]string)
			return fmt.Errorf("failed to listen on %s port %s: %w", p.name, addr, err)
		}
		s.listeners[p.name] = ln
		s.byPort[portOf(ln.Addr())] = p.name
	}

	s.running = true
	s.baseCtx = context.WithoutCancel(ctx)

	for name, ln := range s.listeners {
		s.loops.Add(1)
		go s.acceptLoop(ln, name)
	}
	s.loops.Add(1)
	go s.dispatchLoop()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopChan:
		}
	}()

	s.ready.Store(true)
	s.log.Info("Listening: issue=%s validate=%s dispatch=%s",
		s.listeners[Issue].Addr(), s.listeners[Validate].Addr(), s.cfg.Dispatch)
	return nil
}

// Stop closes both listeners and waits up to five seconds for in-flight
// handlers before closing their connections. It is safe to call repeatedly.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown is Stop with a caller supplied deadline for in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.log.Info("Stopping server...")
		s.ready.Store(false)
		close(s.stopChan)

		s.mu.Lock()
		s.closeListeners()
		s.mu.Unlock()

		done := make(chan struct{})
		go func() {
			s.loops.Wait()
			s.drainQueue()
			s.inflight.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			n := s.closeTracked()
			s.log.Warn("Closed %d in-flight connections after shutdown timeout", n)
			<-done
			err = ctx.Err()
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.log.Info("Server stopped")
	})
	return err
}

// Ready reports whether both listeners are accepting.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Addr returns the bound address of the Issue or Validate listener, or nil.
func (s *Server) Addr(name string) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ln, ok := s.listeners[name]; ok {
		return ln.Addr()
	}
	return nil
}

// closeListeners must be called with s.mu held.
func (s *Server) closeListeners() {
	for name, ln := range s.listeners {
		if err := ln.Close(); err != nil && !isClosedError(err) {
			s.log.Error("Error closing %s listener: %v", name, err)
		}
	}
}

func (s *Server) acceptLoop(ln net.Listener, name string) {
	defer s.loops.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedError(err) {
				s.log.Debug("%s listener closed, exiting accept loop", name)
				return
			}
			s.log.Error("Error accepting connection on %s port: %v", name, err)
			select {
			case <-s.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		select {
		case s.queue <- accepted{conn: conn, name: name}:
		case <-s.stopChan:
			conn.Close()
			return
		}
	}
}

func (s *Server) dispatchLoop() {
	defer s.loops.Done()

	for {
		select {
		case <-s.stopChan:
			s.drainQueue()
			return
		case a := <-s.queue:
			s.dispatch(a)
		}
	}
}

// drainQueue closes connections that were accepted but never dispatched.
func (s *Server) drainQueue() {
	for {
		select {
		case a := <-s.queue:
			a.conn.Close()
		default:
			return
		}
	}
}

func (s *Server) dispatch(a accepted) {
	name, ok := s.byPort[portOf(a.conn.LocalAddr())]
	if !ok {
		s.drop(a.conn, a.name, metrics.DropUnknownPort)
		return
	}
	s.metrics.ConnectionsTotal.WithLabelValues(name).Inc()

	if !s.limiter.AllowAddr(a.conn.RemoteAddr(), time.Now()) {
		s.drop(a.conn, name, metrics.DropRateLimited)
		return
	}

	if s.cfg.Dispatch == DispatchSerial {
		s.serve(name, a.conn)
		return
	}

	select {
	case s.slots <- struct{}{}:
	default:
		s.drop(a.conn, name, metrics.DropOverCapacity)
		return
	}
	s.inflight.Add(1)
	go func() {
		defer func() {
			<-s.slots
			s.inflight.Done()
		}()
		s.serve(name, a.conn)
	}()
}

func (s *Server) drop(conn net.Conn, name, reason string) {
	s.metrics.ConnectionsDropped.WithLabelValues(name, reason).Inc()
	s.log.Debug("Dropped connection from %s on %s port: %s", conn.RemoteAddr(), name, reason)
	conn.Close()
}

// serve runs the port handler on conn. Errors and panics end only this
// connection.
func (s *Server) serve(name string, conn net.Conn) {
	id := s.track(conn)
	s.metrics.InFlight.Inc()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.HandlerPanics.WithLabelValues(name).Inc()
			s.log.Error("Recovered panic in %s handler (conn_%d): %v", name, id, r)
		}
		conn.Close()
		s.metrics.InFlight.Dec()
		s.untrack(id)
	}()

	if err := s.setDeadlines(conn); err != nil {
		s.log.Debug("conn_%d: %v", id, err)
		return
	}

	if err := s.handlers[name].ServeConn(s.baseCtx, conn); err != nil {
		s.log.Debug("conn_%d on %s port from %s closed: %v", id, name, conn.RemoteAddr(), err)
		return
	}
	s.log.Debug("conn_%d on %s port from %s served", id, name, conn.RemoteAddr())
}

func (s *Server) setDeadlines(conn net.Conn) error {
	now := time.Now()
	if s.cfg.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(now.Add(s.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
	}
	if s.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(now.Add(s.cfg.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	return nil
}

func (s *Server) track(conn net.Conn) uint64 {
	id := s.connID.Add(1)
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[id] = conn
	return id
}

func (s *Server) untrack(id uint64) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, id)
}

// closeTracked force-closes every connection still being handled.
func (s *Server) closeTracked() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	return len(s.conns)
}

func portOf(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	if addr == nil {
		return -1
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return -1
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return -1
	}
	return n
}

// isClosedError checks if an error indicates a closed listener
func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// Package admin serves operator endpoints (health and prometheus metrics) on a
// separate address from the protocol ports.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/codefionn/tokengate/internal/consts"
	"github.com/codefionn/tokengate/internal/logger"
	"github.com/codefionn/tokengate/internal/pprof"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"
)

// Server provides the HTTP interface for operators
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	ready    func() bool
	router   *httprouter.Router
	server   *http.Server
	listener net.Listener
}

// NewServer creates an admin server for addr. ready reports whether the
// protocol listeners are up; nil means always ready.
func NewServer(addr string, gatherer prometheus.Gatherer, ready func() bool) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	s := &Server{
		addr:     addr,
		gatherer: gatherer,
		ready:    ready,
		router:   httprouter.New(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// EnableProfiling adds the /debug/pprof routes.
func (s *Server) EnableProfiling() {
	pprof.Register(s.router)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "starting")
		return
	}
	fmt.Fprintln(w, "ok")
}

// Start binds the listener; serving happens in Serve.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on admin address %s: %w", s.addr, err)
	}
	s.listener = netutil.LimitListener(ln, consts.AdminMaxConnections)
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: consts.Timeout5Seconds,
		ErrorLog:          logger.NewStdLogger(logger.Global().WithPrefix("admin"), slog.LevelWarn),
	}
	logger.Info("Admin server listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve blocks until ctx is cancelled, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	if s.server == nil {
		return errors.New("admin server not started")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

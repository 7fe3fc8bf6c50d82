// Package server exposes the bookmark store, the unit registry and the
// import pipeline over HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/shelf/am"
	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/pipeline"
	"github.com/teranos/shelf/store"
	"github.com/teranos/shelf/unit"
)

// ServerState is the lifecycle position of a Server
type ServerState int32

const (
	ServerStateIdle ServerState = iota
	ServerStateRunning
	ServerStateDraining
	ServerStateStopped
)

func (s ServerState) String() string {
	switch s {
	case ServerStateIdle:
		return "idle"
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Server serves the shelf HTTP API
type Server struct {
	cfg          *am.Config
	registry     *unit.Registry
	orchestrator *pipeline.Orchestrator
	store        *store.Store
	gatherer     prometheus.Gatherer
	logger       *zap.SugaredLogger

	uploadLimiter *rate.Limiter // nil when uploads are not rate limited
	httpServer    *http.Server
	state         atomic.Int32
}

// Option customizes a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) { s.logger = logger.OrNop(log) }
}

// WithGatherer sets the registry served on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a server. cfg may be nil, in which case defaults apply.
func New(cfg *am.Config, reg *unit.Registry, orch *pipeline.Orchestrator, st *store.Store, opts ...Option) *Server {
	if cfg == nil {
		cfg = &am.Config{}
	}
	s := &Server{
		cfg:          cfg,
		registry:     reg,
		orchestrator: orch,
		store:        st,
		gatherer:     prometheus.DefaultGatherer,
		logger:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if rpm := cfg.Upload.RequestsPerMinute; rpm > 0 {
		s.uploadLimiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), max(cfg.Upload.Burst, 1))
	}
	return s
}

// State returns the current lifecycle state
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

func (s *Server) setState(next ServerState) {
	s.state.Store(int32(next))
	s.logger.Infow("Server state changed", logger.FieldState, next.String())
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests for up to server.shutdown_timeout_seconds.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()
	s.setState(ServerStateRunning)
	s.logger.Infow("Server ready", logger.FieldAddress, ln.Addr().String())

	select {
	case err := <-errCh:
		s.setState(ServerStateStopped)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	s.setState(ServerStateDraining)
	timeout := time.Duration(s.cfg.Server.ShutdownTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	<-errCh
	s.setState(ServerStateStopped)
	if err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.GetServerAddress()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

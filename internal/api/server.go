package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/homedash-core/internal/audit"
	"github.com/nerrad567/homedash-core/internal/auth"
	"github.com/nerrad567/homedash-core/internal/control"
	"github.com/nerrad567/homedash-core/internal/device"
	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
	"github.com/nerrad567/homedash-core/internal/infrastructure/logging"
	"github.com/nerrad567/homedash-core/internal/infrastructure/metrics"
	"github.com/nerrad567/homedash-core/internal/realtime"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Auth    *auth.Service
	Users   auth.UserRepository
	Bridge  *realtime.Bridge
	Catalog *device.Catalog
	Audit   audit.Repository         // optional
	History device.HistoryRepository // optional
	Metrics *metrics.Metrics         // optional
	Web     http.Handler             // optional web shell served at /
	Checks  map[string]HealthCheck
	Version string
}

// Server is the HTTP API server for homedash.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	auth      *auth.Service
	users     auth.UserRepository
	bridge    *realtime.Bridge
	catalog   *device.Catalog
	auditRepo audit.Repository
	auditCh   chan *audit.Entry
	auditStop context.CancelFunc
	auditDone chan struct{}
	history   device.HistoryRepository
	metrics   *metrics.Metrics
	web       http.Handler
	checks    map[string]HealthCheck
	version   string
	tickets   *ticketStore
	hub       *Hub
	server    *http.Server
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called, but its hub and
// audit writer are live immediately so store status can be broadcast
// from the start. Close must be called to stop the audit writer.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Auth == nil:
		return nil, fmt.Errorf("auth service is required")
	case deps.Bridge == nil:
		return nil, fmt.Errorf("realtime bridge is required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("device catalog is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     withWSDefaults(deps.WS),
		logger:    deps.Logger,
		auth:      deps.Auth,
		users:     deps.Users,
		bridge:    deps.Bridge,
		catalog:   deps.Catalog,
		auditRepo: deps.Audit,
		auditCh:   make(chan *audit.Entry, auditChanSize),
		history:   deps.History,
		metrics:   deps.Metrics,
		web:       deps.Web,
		checks:    deps.Checks,
		version:   deps.Version,
		tickets:   newTicketStore(),
	}
	s.hub = NewHub(s.logger, s.metrics)

	// The audit writer runs until Close so in-flight requests still land.
	if s.auditRepo != nil {
		var auditCtx context.Context
		auditCtx, s.auditStop = context.WithCancel(context.Background())
		s.auditDone = make(chan struct{})
		go s.drainAuditLog(auditCtx, s.auditDone)
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts ticket cleanup and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent of the server's background goroutines
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Hub returns the WebSocket hub, for broadcasting store status.
func (s *Server) Hub() *Hub {
	return s.hub
}

// StoreStatusChanged broadcasts store reachability to every client on
// the store.status channel.
func (s *Server) StoreStatusChanged(connected bool) {
	if s.metrics != nil {
		s.metrics.StoreConnected(connected)
	}
	s.hub.Broadcast(ChannelStoreStatus, map[string]any{"connected": connected})
}

// surfaceDeps are the collaborators every control surface is built with.
func (s *Server) surfaceDeps() control.Deps {
	return control.Deps{
		Bridge:  s.bridge,
		Catalog: s.catalog,
		Logger:  s.logger,
	}
}

// Close gracefully shuts down the API server.
//
// WebSocket clients are disconnected first, closing their surfaces; then
// in-flight requests get up to 10 seconds to finish. Queued audit entries
// are flushed last.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.closeAll()
	defer s.flushAudit()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// flushAudit stops the audit writer and waits for the queue to drain.
func (s *Server) flushAudit() {
	if s.auditStop == nil {
		return
	}
	s.auditStop()
	<-s.auditDone
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

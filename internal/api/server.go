// Package api provides the HTTP REST API for TaskVault.
//
// It exposes registration, login, token refresh and revocation, todo CRUD,
// and the admin surface (user management, cascading account deletion, and
// audit trail review).
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/taskvault/taskvault/internal/audit"
	"github.com/taskvault/taskvault/internal/auth"
	"github.com/taskvault/taskvault/internal/infrastructure/config"
	"github.com/taskvault/taskvault/internal/infrastructure/logging"
	"github.com/taskvault/taskvault/internal/todo"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	Issuer      *auth.Issuer
	Users       auth.UserRepository
	Tokens      auth.TokenRepository
	Todos       todo.Repository
	Audit       audit.Recorder
	Coordinator *auth.Coordinator
	Version     string
}

// Server is the HTTP API server for TaskVault.
//
// It manages the HTTP listener, routes, middleware, and the asynchronous
// audit queue. The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	issuer      *auth.Issuer
	users       auth.UserRepository
	tokens      auth.TokenRepository
	todos       todo.Repository
	audit       audit.Recorder
	coordinator *auth.Coordinator
	version     string
	server      *http.Server
	auditCh     chan *audit.Entry
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Issuer == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if deps.Todos == nil {
		return nil, fmt.Errorf("todo repository is required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("deletion coordinator is required")
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		issuer:      deps.Issuer,
		users:       deps.Users,
		tokens:      deps.Tokens,
		todos:       deps.Todos,
		audit:       deps.Audit,
		coordinator: deps.Coordinator,
		version:     deps.Version,
		auditCh:     make(chan *audit.Entry, auditQueueSize),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the audit queue drain goroutine, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.drainAuditQueue(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections. The audit queue is flushed
// before the drain goroutine exits.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
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

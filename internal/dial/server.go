package dial

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dialcast/dialcast/internal/app"
	"github.com/dialcast/dialcast/internal/device"
	"github.com/dialcast/dialcast/internal/infrastructure/config"
	"github.com/dialcast/dialcast/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the DIAL server.
type Deps struct {
	Config    config.DIALConfig
	Logger    *logging.Logger
	Registry  *app.Registry
	Identity  device.Identity
	LocalAddr device.AddressProvider
	Version   string
}

// Server is the DIAL HTTP server. It is created with New() and started
// with Start(); all exported methods are safe for concurrent use.
type Server struct {
	cfg       config.DIALConfig
	logger    *logging.Logger
	registry  *app.Registry
	identity  device.Identity
	localAddr device.AddressProvider
	version   string
	server    *http.Server
}

// New creates a DIAL server with the given dependencies. The server does
// not listen until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("application registry is required")
	}
	if deps.LocalAddr == nil {
		deps.LocalAddr = device.LocalIP
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		identity:  deps.Identity,
		localAddr: deps.LocalAddr,
		version:   deps.Version,
	}, nil
}

// Handler returns the fully routed HTTP handler. Exposed so tests can
// drive the server through httptest without opening a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("DIAL server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("DIAL server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("DIAL server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down DIAL server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("dial health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("dial server not started")
	}
	return nil
}

// Package api provides the HTTP surface of Parley Core: the REST API used
// by chat clients (auth, groups, friends) and the webhook endpoints the
// MQTT broker calls to authenticate connections and authorize topic actions.
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

	"github.com/parley-im/parley-core/internal/acl"
	"github.com/parley-im/parley-core/internal/audit"
	"github.com/parley-im/parley-core/internal/auth"
	"github.com/parley-im/parley-core/internal/infrastructure/config"
	"github.com/parley-im/parley-core/internal/infrastructure/influxdb"
	"github.com/parley-im/parley-core/internal/infrastructure/logging"
	"github.com/parley-im/parley-core/internal/notify"
	"github.com/parley-im/parley-core/internal/social"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Sessions *auth.Sessions
	Codec    *auth.TokenCodec
	Users    auth.UserRepository
	Groups   social.GroupRepository
	Friends  social.FriendRepository
	ACL      *acl.Engine
	Notifier *notify.Notifier
	Audit    *audit.Recorder
	AuditLog audit.Repository
	Metrics  *influxdb.Client // optional: nil disables event metrics
	Version  string
}

// Server is the HTTP server for Parley Core.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	sessions *auth.Sessions
	codec    *auth.TokenCodec
	users    auth.UserRepository
	groups   social.GroupRepository
	friends  social.FriendRepository
	acl      *acl.Engine
	notifier *notify.Notifier
	audit    *audit.Recorder
	auditLog audit.Repository
	metrics  *influxdb.Client
	version  string
	server   *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Groups == nil || deps.Friends == nil {
		return nil, fmt.Errorf("group and friend repositories are required")
	}
	if deps.ACL == nil {
		return nil, fmt.Errorf("acl engine is required")
	}
	// Notifier, Audit and Metrics are optional; their absence degrades to
	// no-ops rather than failing startup.

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		sessions: deps.Sessions,
		codec:    deps.Codec,
		users:    deps.Users,
		groups:   deps.Groups,
		friends:  deps.Friends,
		acl:      deps.ACL,
		notifier: deps.Notifier,
		audit:    deps.Audit,
		auditLog: deps.AuditLog,
		metrics:  deps.Metrics,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
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
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests to complete.
func (s *Server) Close() error {
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

// HealthCheck verifies the API server is running.
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

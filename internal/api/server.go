package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/audit"
	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/device"
	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-telemetry/internal/ingest"
	"github.com/nerrad567/gray-logic-telemetry/internal/notify"
	"github.com/nerrad567/gray-logic-telemetry/internal/pipeline"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RuleRepository is the rule management surface. Satisfied by *notify.SQLiteRuleStore.
type RuleRepository interface {
	Create(ctx context.Context, rule *notify.Rule) error
	Update(ctx context.Context, rule *notify.Rule) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*notify.Rule, error)
	List(ctx context.Context, userID string) ([]notify.Rule, error)
}

// PreferenceRepository reads and writes user preferences.
// Satisfied by *notify.SQLitePreferenceStore.
type PreferenceRepository interface {
	GetUserPreferences(ctx context.Context, userID string) (notify.Preferences, error)
	SetUserPreferences(ctx context.Context, p *notify.Preferences) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config         config.APIConfig
	Hub            config.HubConfig
	Security       config.SecurityConfig
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler // Prometheus scrape handler; /metrics is not mounted when nil
	Authenticator  auth.Authenticator

	Ingestor     *ingest.Ingestor
	Pipeline     *pipeline.Pipeline
	Cache        *pipeline.Cache // latest processed record per device/type
	ChannelHub   *hub.Hub
	Notifier     *notify.Orchestrator
	Rules        RuleRepository
	Preferences  PreferenceRepository
	Devices      *device.Registry
	AuditRepo    audit.Repository
	HealthChecks map[string]HealthChecker
	Version      string
}

// Server is the HTTP API server for the telemetry core.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	hubCfg       config.HubConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	metrics      *metrics.Metrics
	metricsH     http.Handler
	authn        auth.Authenticator
	ingestor     *ingest.Ingestor
	pipeline     *pipeline.Pipeline
	cache        *pipeline.Cache
	hub          *hub.Hub
	notifier     *notify.Orchestrator
	rules        RuleRepository
	prefs        PreferenceRepository
	devices      *device.Registry
	auditRepo    audit.Repository
	auditCh      chan *audit.AuditLog
	healthChecks map[string]HealthChecker
	limiter      *clientLimiter
	version      string
	startTime    time.Time
	server       *http.Server
	cancel       context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, authenticator, ingestor, hub, notifier)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}
	if deps.ChannelHub == nil {
		return nil, fmt.Errorf("channel hub is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notification orchestrator is required")
	}
	// Pipeline, rules, preferences, devices and audit are optional; their
	// routes answer 503 when absent.

	s := &Server{
		cfg:          deps.Config,
		hubCfg:       deps.Hub,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		metricsH:     deps.MetricsHandler,
		authn:        deps.Authenticator,
		ingestor:     deps.Ingestor,
		pipeline:     deps.Pipeline,
		cache:        deps.Cache,
		hub:          deps.ChannelHub,
		notifier:     deps.Notifier,
		rules:        deps.Rules,
		prefs:        deps.Preferences,
		devices:      deps.Devices,
		auditRepo:    deps.AuditRepo,
		healthChecks: deps.HealthChecks,
		version:      deps.Version,
		startTime:    time.Now(),
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}
	if deps.Security.RateLimit.Enabled {
		s.limiter = newClientLimiter(deps.Security.RateLimit.RequestsPerMinute, deps.Security.RateLimit.Burst)
	}
	return s, nil
}

// Handler returns the fully wired router. Exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the audit writer and limiter cleanup, builds the router and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}
	if s.limiter != nil {
		go s.limiter.cleanupLoop(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (audit writer, limiter cleanup)
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
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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

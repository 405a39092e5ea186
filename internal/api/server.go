package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/poweredup/internal/audit"
	"github.com/nerrad567/poweredup/internal/bridges/poweredup"
	"github.com/nerrad567/poweredup/internal/catalog"
	"github.com/nerrad567/poweredup/internal/control"
	"github.com/nerrad567/poweredup/internal/hub"
	"github.com/nerrad567/poweredup/internal/infrastructure/config"
	"github.com/nerrad567/poweredup/internal/infrastructure/database"
	"github.com/nerrad567/poweredup/internal/infrastructure/logging"
)

const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	gracefulShutdownTimeout = 10 * time.Second

	// defaultCommandTimeout bounds one command's transport writes.
	defaultCommandTimeout = 5 * time.Second
)

// Session is the hub session as seen by the API.
// poweredup.SessionAdapter satisfies it.
type Session interface {
	control.Hub

	Connected() bool
	Stats() hub.Stats
	Properties() hub.Properties
	Ports() []hub.PortRecord
	Port(port uint8) (hub.PortRecord, error)
	PortDevice(port uint8) (control.Device, error)
}

// ConnectionStatus reports a broker link. *mqtt.Client satisfies it.
type ConnectionStatus interface {
	IsConnected() bool
}

// BridgeStats reports MQTT bridge counters. *poweredup.Bridge satisfies it.
type BridgeStats interface {
	Stats() poweredup.Stats
}

// TelemetryCounts reports telemetry write counters.
// *telemetry.Recorder satisfies it.
type TelemetryCounts interface {
	Counts() (samples, statuses uint64)
}

// CommandLog records commands and serves the command history.
// *audit.SQLiteRepository satisfies it.
type CommandLog interface {
	RecordCommand(ctx context.Context, cmd control.Command, ack control.Ack) error
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	HubID   string
	Version string

	// Session is the connected hub. Required.
	Session Session

	// Optional components. Missing ones are omitted from responses.
	Catalog    catalog.Repository
	CommandLog CommandLog
	MQTT       ConnectionStatus
	Bridge     BridgeStats
	Telemetry  TelemetryCounts
	DB         *database.DB

	// ExternalHub is used instead of a server-owned hub when set, so the
	// bridge can feed samples into it before the server starts.
	ExternalHub *Hub

	// CommandTimeout bounds a single command. Default: 5s.
	CommandTimeout time.Duration
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	logger         *logging.Logger
	hubID          string
	version        string
	session        Session
	catalog        catalog.Repository
	commandLog     CommandLog
	mqtt           ConnectionStatus
	bridge         BridgeStats
	telemetry      TelemetryCounts
	db             *database.DB
	commandTimeout time.Duration
	startTime      time.Time
	server         *http.Server
	hub            *Hub
	cancel         context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, hub id, session) and optional components
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Session == nil {
		return nil, errors.New("hub session is required")
	}
	if deps.HubID == "" {
		return nil, errors.New("hub id is required")
	}

	timeout := deps.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	return &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		logger:         deps.Logger,
		hubID:          deps.HubID,
		version:        deps.Version,
		session:        deps.Session,
		catalog:        deps.Catalog,
		commandLog:     deps.CommandLog,
		mqtt:           deps.MQTT,
		bridge:         deps.Bridge,
		telemetry:      deps.Telemetry,
		db:             deps.DB,
		commandTimeout: timeout,
		startTime:      time.Now(),
		hub:            deps.ExternalHub,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub unless one was injected, builds the router,
// and launches the HTTP listener in a background goroutine. The server can
// be stopped with Close().
//
// Parameters:
//   - ctx: Parent of the server's background goroutines
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.hubID, s.logger)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck returns nil once the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}

	return nil
}

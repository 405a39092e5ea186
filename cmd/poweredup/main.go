// Command poweredup connects to one LEGO Powered Up hub over Bluetooth LE
// and exposes it over MQTT, InfluxDB telemetry, a SQLite port catalog and
// an HTTP/WebSocket API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/poweredup/internal/api"
	"github.com/nerrad567/poweredup/internal/audit"
	"github.com/nerrad567/poweredup/internal/bridges/poweredup"
	"github.com/nerrad567/poweredup/internal/catalog"
	"github.com/nerrad567/poweredup/internal/hub"
	"github.com/nerrad567/poweredup/internal/infrastructure/config"
	"github.com/nerrad567/poweredup/internal/infrastructure/database"
	"github.com/nerrad567/poweredup/internal/infrastructure/influxdb"
	"github.com/nerrad567/poweredup/internal/infrastructure/logging"
	"github.com/nerrad567/poweredup/internal/infrastructure/mqtt"
	"github.com/nerrad567/poweredup/internal/telemetry"
	"github.com/nerrad567/poweredup/internal/transport/ble"
	"github.com/nerrad567/poweredup/migrations"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, waits for a shutdown signal or the end of the
// hub session, and tears down in reverse order.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting poweredup",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "hub_id", cfg.Bridge.HubID)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	session, err := connectHub(ctx, cfg.Hub, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("disconnecting hub")
		session.Disconnect()
	}()
	adapter := poweredup.SessionAdapter{Session: session}
	hubLog := log.ForHub(cfg.Bridge.HubID, session.Properties().Address)

	go waitPorts(ctx, session, cfg.Hub, hubLog)

	repo := catalog.NewSQLiteRepository(db.DB)
	go catalog.Sync(ctx, session, cfg.Bridge.HubID, repo, hubLog.Component("catalog"))

	commandLog := audit.NewSQLiteRepository(db.DB)

	var (
		sampleSinks []poweredup.SampleSink
		noticeSinks []poweredup.NoticeSink
		recorder    *telemetry.Recorder
	)
	if influxClient != nil {
		recorder = telemetry.NewRecorder(influxClient, cfg.Bridge.HubID)
		sampleSinks = append(sampleSinks, recorder)
		go recorder.Run(ctx, session, time.Duration(cfg.Bridge.HealthInterval)*time.Second)
	}

	var wsHub *api.Hub
	if cfg.API.Enabled {
		wsHub = api.NewHub(cfg.WebSocket, cfg.Bridge.HubID, log.Component("websocket"))
		go wsHub.Run(ctx)
		sampleSinks = append(sampleSinks, wsHub)
		noticeSinks = append(noticeSinks, wsHub)
	}

	bridgeOpts := poweredup.BridgeOptions{
		HubID:          cfg.Bridge.HubID,
		Version:        version,
		Session:        adapter,
		Subscriptions:  cfg.Hub.Subscriptions,
		HealthInterval: time.Duration(cfg.Bridge.HealthInterval) * time.Second,
		SampleSinks:    sampleSinks,
		NoticeSinks:    noticeSinks,
		CommandLog:     commandLog,
		Logger:         hubLog.Component("bridge"),
	}
	if mqttClient != nil {
		bridgeOpts.MQTT = mqttClient
	}
	bridge, err := poweredup.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := bridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.Component("api"),
			HubID:       cfg.Bridge.HubID,
			Version:     version,
			Session:     adapter,
			Catalog:     repo,
			CommandLog:  commandLog,
			Bridge:      bridge,
			DB:          db,
			ExternalHub: wsHub,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if recorder != nil {
			deps.Telemetry = recorder
		}
		server, newErr := api.New(deps)
		if newErr != nil {
			return fmt.Errorf("creating API server: %w", newErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-session.Done():
		log.Warn("hub disconnected, shutting down")
	}

	log.Info("poweredup stopped")
	return nil
}

// connectHub discovers the configured hub, connects over BLE and starts a
// session on the link.
func connectHub(ctx context.Context, cfg config.HubConfig, log *logging.Logger) (*hub.Session, error) {
	adapter, err := ble.Open(ble.Config{
		ScanTimeout:    cfg.ScanTimeoutDuration(),
		ConnectTimeout: cfg.ConnectTimeoutDuration(),
		EventBuffer:    cfg.EventBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("opening bluetooth adapter: %w", err)
	}
	adapter.SetLogger(log.Component("ble"))

	filter := hubFilter(cfg)
	log.Info("scanning for hub", "name", filter.Name, "address", filter.Address)
	found, err := adapter.Discover(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("discovering hub: %w", err)
	}
	if len(found) == 0 {
		return nil, errors.New("discovering hub: no hub found")
	}
	target := found[0]
	log.Info("hub found",
		"name", target.Name,
		"address", target.Address,
		"kind", target.Kind.String(),
		"rssi", target.RSSI,
	)

	conn, err := adapter.Connect(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("connecting to hub %s: %w", target.Address, err)
	}

	session, err := hub.Connect(ctx, conn, sessionOptions(cfg, target, log))
	if err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("starting hub session: %w", err)
	}
	return session, nil
}

// hubFilter builds the discovery filter from the hub settings.
func hubFilter(cfg config.HubConfig) hub.Filter {
	return hub.Filter{Name: cfg.Name, Address: cfg.Address}
}

// sessionOptions seeds a session from a discovery result.
func sessionOptions(cfg config.HubConfig, d hub.Discovered, log *logging.Logger) hub.Options {
	return hub.Options{
		Logger:      log.ForHub(d.Name, d.Address),
		TopicBuffer: cfg.TopicBuffer,
		Name:        d.Name,
		Kind:        d.Kind,
		Address:     d.Address,
	}
}

// waitPorts logs when each subscribed port finishes negotiation, or warns
// when it does not within the ready timeout.
func waitPorts(ctx context.Context, session *hub.Session, cfg config.HubConfig, log *logging.Logger) {
	timeout := cfg.ReadyTimeoutDuration()
	if timeout <= 0 {
		return
	}
	seen := make(map[uint8]bool)
	for _, sub := range cfg.Subscriptions {
		if seen[sub.Port] {
			continue
		}
		seen[sub.Port] = true
		go func(port uint8) {
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			rec, err := session.WaitReady(waitCtx, port)
			if err != nil {
				log.Warn("port not ready", "port", port, "timeout", timeout, "error", err)
				return
			}
			log.Info("port ready", "port", port, "io_type", rec.IOType.String(), "modes", rec.ModeCount)
		}(sub.Port)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

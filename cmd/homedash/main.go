// homedash core - home device dashboard service
//
// This is the main entry point for the homedash core. It serves the
// control views for the house lights, the ceiling fan and the DHT22
// sensor over a WebSocket and a small REST API, backed by a realtime
// key-value store (MQTT retained topics or process memory).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/nerrad567/homedash-core/internal/api"
	"github.com/nerrad567/homedash-core/internal/audit"
	"github.com/nerrad567/homedash-core/internal/auth"
	"github.com/nerrad567/homedash-core/internal/device"
	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
	"github.com/nerrad567/homedash-core/internal/infrastructure/database"
	"github.com/nerrad567/homedash-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homedash-core/internal/infrastructure/logging"
	"github.com/nerrad567/homedash-core/internal/infrastructure/metrics"
	"github.com/nerrad567/homedash-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homedash-core/internal/panel"
	"github.com/nerrad567/homedash-core/internal/realtime"
	"github.com/nerrad567/homedash-core/internal/store"
	"github.com/nerrad567/homedash-core/internal/telemetry"
	"github.com/nerrad567/homedash-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// tokenPurgeInterval is how often expired refresh tokens are deleted.
	tokenPurgeInterval = time.Hour

	// historyPruneInterval is how often old state history is deleted.
	historyPruneInterval = time.Hour

	// startupCheckTimeout bounds the health checks run before serving.
	startupCheckTimeout = 10 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = runMigrate(ctx, os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var errMigrateUsage = errors.New("usage: homedash migrate up|down|status")

// runMigrate manages the database schema without starting the service.
// "down" rolls back only the most recent migration.
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errMigrateUsage
	}
	switch args[0] {
	case "up", "down", "status":
	default:
		return errMigrateUsage
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	switch args[0] {
	case "up":
		return db.Migrate(ctx, migrations.FS, ".")
	case "down":
		return db.MigrateDown(ctx, migrations.FS, ".")
	}

	applied, pending, err := db.MigrationStatus(ctx, migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, r := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting homedash core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"store", cfg.Store.Backend,
		"rooms", len(cfg.Devices.Rooms),
		"fans", len(cfg.Devices.Fans),
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	m := metrics.New()
	checks := map[string]api.HealthCheck{"database": db.HealthCheck}

	// Identity provider
	users := auth.NewUserRepository(db.DB)
	if _, err := auth.SeedOwner(ctx, users, cfg.Security.Seed, log.Logger); err != nil {
		return fmt.Errorf("seeding owner account: %w", err)
	}
	authService := auth.NewService(users, auth.NewTokenRepository(db.DB), auth.ServiceConfig{
		Secret:     cfg.Security.JWT.Secret,
		AccessTTL:  time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute,
		RefreshTTL: time.Duration(cfg.Security.JWT.RefreshTokenTTL) * time.Minute,
	}, log.With("component", "auth").Logger)
	authService.SetObserver(m)
	go authService.PurgeLoop(ctx, tokenPurgeInterval)

	// Realtime store
	backend, mqttClient, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if mqttClient != nil {
		checks["mqtt"] = mqttClient.HealthCheck
	}

	guard, err := store.NewGuard(cfg.Store.Rules)
	if err != nil {
		return fmt.Errorf("loading store rules: %w", err)
	}
	bridge := realtime.NewBridge(store.Protect(backend, guard), cfg.StoreWriteTimeout())
	bridge.SetLogger(log.With("component", "realtime"))
	bridge.SetObserver(m)

	catalog, err := device.NewCatalog(cfg.Devices)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	// Telemetry: Prometheus gauges always, local and InfluxDB history
	// when enabled.
	sinks := []telemetry.Sink{m}

	var history device.HistoryRepository
	if cfg.History.Enabled {
		h := device.NewSQLiteHistory(db.DB)
		h.SetOnError(func(err error) {
			log.Error("state history write error", "error", err)
		})
		go h.PruneLoop(ctx, cfg.HistoryRetention(), historyPruneInterval)
		history = h
		sinks = append(sinks, h)
		log.Info("state history enabled", "retention_days", cfg.History.RetentionDays)
	}
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
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
		checks["influxdb"] = influxClient.HealthCheck
		sinks = append(sinks, influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// The recorder reads every catalogued path for as long as it runs, so
	// it gets a bridge of its own and bridge.Listeners keeps counting only
	// the paths open surfaces show. Both bridges share the store's
	// per-path subscriptions.
	recorderBridge := realtime.NewBridge(backend, cfg.StoreWriteTimeout())
	recorderBridge.SetLogger(log.With("component", "telemetry"))
	recorder := telemetry.NewRecorder(recorderBridge, catalog, sinks...)
	recorder.SetLogger(log.With("component", "telemetry"))
	recorderCtx, stopRecorder := context.WithCancel(ctx)
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		if err := recorder.Run(recorderCtx); err != nil {
			log.Error("telemetry recorder stopped", "error", err)
		}
	}()
	// The recorder writes to the sinks, so it stops before they close.
	defer func() {
		stopRecorder()
		<-recorderDone
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Auth:    authService,
		Users:   users,
		Bridge:  bridge,
		Catalog: catalog,
		Audit:   audit.NewSQLiteRepository(db.DB),
		History: history,
		Metrics: m,
		Web:     panel.Handler(cfg.API.WebDir),
		Checks:  checks,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if mqttClient != nil {
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			server.StoreStatusChanged(true)
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
			server.StoreStatusChanged(false)
		})
		server.StoreStatusChanged(mqttClient.IsConnected())
	} else {
		server.StoreStatusChanged(true)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API server, telemetry
	// recorder, InfluxDB, store, database.
	log.Info("homedash core stopped")
	return nil
}

// openStore builds the configured store backend. The MQTT client is nil
// for the memory backend.
func openStore(cfg *config.Config, log *logging.Logger) (store.Backend, *mqtt.Client, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		mem := store.NewMemory()
		mem.SetLogger(log.With("component", "store"))
		log.Info("using in-memory store")
		return mem, nil, func() {
			if err := mem.Close(); err != nil {
				log.Error("error closing store", "error", err)
			}
		}, nil

	default:
		client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Prefix: cfg.Store.TopicPrefix})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
		}
		client.SetLogger(log.With("component", "mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"prefix", cfg.Store.TopicPrefix,
		)

		backend := store.NewMQTT(client, cfg.StoreSettleWindow())
		backend.SetLogger(log.With("component", "store"))
		return backend, client, func() {
			log.Info("disconnecting from MQTT")
			if err := client.Close(); err != nil {
				log.Error("error closing MQTT", "error", err)
			}
		}, nil
	}
}

// getConfigPath returns the configuration file path.
// Uses HOMEDASH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEDASH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck runs every check in name order and returns the first failure.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - checks: Named dependency checks
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthCheck) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

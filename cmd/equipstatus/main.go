// Equipment Status Service
//
// This is the main entry point for the equipment status service. It records
// the operational state reported by manufacturing equipment (Running,
// Stopped, Transitioning) and answers "what is each machine doing now" and
// "what did it do between these two times".
//
// Reports arrive over HTTP and, optionally, MQTT and NATS. The history is
// kept in SQLite, PostgreSQL or Badger and may be mirrored to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/equipment-status/internal/api"
	"github.com/nerrad567/equipment-status/internal/equipment"
	"github.com/nerrad567/equipment-status/internal/infrastructure/config"
	"github.com/nerrad567/equipment-status/internal/infrastructure/database"
	"github.com/nerrad567/equipment-status/internal/infrastructure/influxdb"
	"github.com/nerrad567/equipment-status/internal/infrastructure/kvstore"
	"github.com/nerrad567/equipment-status/internal/infrastructure/logging"
	"github.com/nerrad567/equipment-status/internal/infrastructure/mqtt"
	"github.com/nerrad567/equipment-status/internal/infrastructure/natsbus"
	"github.com/nerrad567/equipment-status/internal/infrastructure/postgres"
	"github.com/nerrad567/equipment-status/internal/ingest"
	"github.com/nerrad567/equipment-status/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting equipment status service",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.FromEnvironment()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Nothing left to report to
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	states, err := equipment.NewStateSet(cfg.Equipment.States...)
	if err != nil {
		return fmt.Errorf("building state set: %w", err)
	}
	location, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("loading default timezone: %w", err)
	}
	log.Info("equipment states configured", "states", states.Members(), "default_timezone", location.String())

	var opts equipment.StoreOptions
	if cfg.Equipment.SeedSampleData {
		opts.Seed = equipment.SampleStates(time.Now(), states)
	}

	store, closeStore, err := openStore(ctx, cfg, opts, log)
	if err != nil {
		return err
	}
	defer closeStore()
	log.Info("equipment store ready", "driver", cfg.Storage.Driver, "seed", cfg.Equipment.SeedSampleData)

	service := equipment.NewService(store, equipment.NewValidator(states, location))
	service.SetLogger(log)

	components := make(map[string]api.HealthChecker)

	// InfluxDB mirror (optional)
	if cfg.InfluxDB.Enabled {
		mirror, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			recorded, failed := mirror.Stats()
			log.Info("closing InfluxDB mirror", "recorded", recorded, "failed_batches", failed)
			if closeErr := mirror.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		mirror.SetLogger(log)
		service.SetMirror(mirror)
		components["influxdb"] = mirror
		log.Info("InfluxDB mirror enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	reports := ingest.NewHandler(service)
	reports.SetLogger(log)

	// MQTT ingest (optional)
	if cfg.MQTT.Enabled {
		mqttClient, err := startMQTTIngest(cfg.MQTT, reports, log)
		if err != nil {
			return err
		}
		defer func() {
			received, failed := mqttClient.Stats()
			log.Info("disconnecting from MQTT", "received", received, "failed", failed)
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		components["mqtt"] = mqttClient
	} else {
		log.Info("MQTT ingest disabled")
	}

	// NATS ingest (optional)
	if cfg.NATS.Enabled {
		bus, err := natsbus.Connect(cfg.NATS, log)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer func() {
			log.Info("draining NATS connection")
			if closeErr := bus.Close(); closeErr != nil {
				log.Error("error closing NATS", "error", closeErr)
			}
		}()
		if err := bus.Handle(cfg.NATS.Subject, cfg.NATS.QueueGroup, reports.HandleNATS); err != nil {
			return fmt.Errorf("subscribing to %s: %w", cfg.NATS.Subject, err)
		}
		components["nats"] = bus
		log.Info("NATS ingest started", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	} else {
		log.Info("NATS ingest disabled")
	}

	if err := healthCheck(ctx, service, components); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log,
		Service:    service,
		Components: components,
		Version:    version,
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

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API server, NATS, MQTT,
	// InfluxDB, store, logger.
	return nil
}

// openStore opens the backend selected by storage.driver, applies its
// schema and builds the equipment store on top of it.
//
// Returns:
//   - equipment.Store: Ready store, seeded if opts asks for it
//   - func(): Releases the backend; never nil on success
//   - error: If the backend cannot be opened or prepared
func openStore(ctx context.Context, cfg *config.Config, opts equipment.StoreOptions, log *logging.Logger) (equipment.Store, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		closeDB := func() {
			log.Info("closing PostgreSQL pool")
			db.Close()
		}
		applied, err := db.Migrate(ctx, migrations.Postgres, migrations.PostgresDir)
		if err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("running PostgreSQL migrations: %w", err)
		}
		log.Info("database ready", "backend", "postgres", "migrations_applied_now", applied)
		store, err := equipment.NewPostgresStore(ctx, db.Pool, opts)
		if err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("preparing PostgreSQL store: %w", err)
		}
		return store, closeDB, nil

	case config.DriverBadger:
		db, err := kvstore.Open(cfg.Badger, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening Badger: %w", err)
		}
		closeDB := func() {
			log.Info("closing Badger")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing Badger", "error", closeErr)
			}
		}
		store, err := equipment.NewBadgerStore(ctx, db.DB, opts)
		if err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("preparing Badger store: %w", err)
		}
		return store, closeDB, nil

	default:
		db, err := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		closeDB := func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}
		if err := db.Migrate(ctx); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		applied, pending, err := db.GetMigrationStatus(ctx)
		if err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("reading migration status: %w", err)
		}
		log.Info("database ready", "path", db.Path(), "migrations_applied", len(applied), "migrations_pending", len(pending))

		store, err := equipment.NewSQLiteStore(ctx, db.DB, opts)
		if err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("preparing SQLite store: %w", err)
		}
		return store, closeDB, nil
	}
}

// startMQTTIngest connects to the broker and subscribes the report handler.
func startMQTTIngest(cfg config.MQTTConfig, reports *ingest.Handler, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)

	topic := cfg.Ingest.Topic
	if topic == "" {
		topic = mqtt.Topics{}.AllEquipmentReports()
	}
	if err := client.Subscribe(topic, byte(cfg.QoS), reports.MQTTHandler(topic)); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	log.Info("MQTT ingest started",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"topic", topic,
	)
	return client, nil
}

// healthCheck verifies the store and every enabled component are healthy.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, service *equipment.Service, components map[string]api.HealthChecker) error {
	if err := service.HealthCheck(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	for name, component := range components {
		if err := component.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nerrad567/gray-logic-gate/internal/actuator"
	"github.com/nerrad567/gray-logic-gate/internal/api"
	"github.com/nerrad567/gray-logic-gate/internal/audit"
	"github.com/nerrad567/gray-logic-gate/internal/auth"
	"github.com/nerrad567/gray-logic-gate/internal/control"
	"github.com/nerrad567/gray-logic-gate/internal/gate"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gate/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gate/internal/panel"
	"github.com/nerrad567/gray-logic-gate/migrations"
)

// run is the server lifecycle, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Gate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	if cfg.DevMode {
		log.Warn("dev mode enabled, the relay may not be driven")
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	users := auth.NewSQLiteUserStore(db)
	if _, err := auth.SeedAdmin(ctx, users, cfg.Security.SeedAdmin.Username, cfg.Security.SeedAdmin.Password, log.Logger, os.Stderr); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}

	// MQTT is needed only when the relay is a smart plug. Gate state events
	// share that connection.
	var mqttClient *mqtt.Client
	if cfg.UsesMQTT() {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// InfluxDB is optional; a failed connection disables telemetry only.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			log.Warn("InfluxDB unavailable, actuation telemetry disabled", "error", err)
			influxClient = nil
		} else {
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
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	svc, err := buildService(ctx, cfg, db, users, mqttClient, influxClient, log)
	if err != nil {
		return err
	}

	var panelHandler http.Handler
	if cfg.API.Panel.Enabled {
		panelHandler = panel.Handler(cfg.API.Panel.Dir)
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Metrics:  cfg.Metrics,
		Logger:   log,
		Service:  svc,
		DB:       db,
		MQTT:     mqttClient,
		Influx:   influxClient,
		Panel:    panelHandler,
		Version:  version,
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

	log.Info("initialisation complete, waiting for shutdown signal",
		"gate", cfg.Gate.Name,
		"driver", svc.DriverName(),
		"state", svc.GateState(ctx),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openDatabase opens SQLite and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already returning the migration error
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")
	return db, nil
}

// buildService wires the driver, state machine and control service.
func buildService(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	users *auth.SQLiteUserStore,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	log *logging.Logger,
) (*control.Service, error) {
	deps := actuator.Deps{Logger: log}
	if mqttClient != nil {
		deps.Bus = mqttClient
	}
	driver, err := actuator.New(cfg.Actuator, cfg.DevMode, deps)
	if err != nil {
		return nil, fmt.Errorf("creating actuator driver: %w", err)
	}
	log.Info("actuator driver ready", "transport", driver.Name())

	machine, err := gate.NewMachine(ctx, gate.NewSQLiteStore(db), cfg.Gate.InitialState, log)
	if err != nil {
		return nil, fmt.Errorf("creating gate state machine: %w", err)
	}

	ttl := time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	svcDeps := control.Deps{
		Authenticator: auth.NewAuthenticator(users, cfg.Security.JWT.Secret, ttl),
		Authorizer:    auth.NewAuthorizer(cfg.Security.JWT.Secret),
		Users:         users,
		Machine:       machine,
		Driver:        driver,
		Audit:         audit.NewSQLiteRepository(db),
		Logger:        log,
		GateName:      cfg.Gate.Name,
	}
	// Typed nils would defeat the service's nil checks.
	if influxClient != nil {
		svcDeps.Telemetry = influxClient
	}
	if mqttClient != nil {
		svcDeps.Events = mqttClient
	}

	svc, err := control.New(svcDeps)
	if err != nil {
		return nil, fmt.Errorf("creating control service: %w", err)
	}
	return svc, nil
}

// Latch Core - Door Access Service
//
// This is the main entry point for latchd, the daemon that commands a
// single smart-relay door lock over the local network. It owns:
//   - The persistent relay link (supervisor) and command gate (controller)
//   - The HTTP/WebSocket API for operators and panels
//   - The SQLite door event log
//   - Optional MQTT mirroring and InfluxDB metrics
//
// The relay key and JWT secret should come from the environment in
// production: LATCH_RELAY_KEY and LATCH_JWT_SECRET.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/nerrad567/latch-core/migrations"

	"github.com/nerrad567/latch-core/internal/api"
	"github.com/nerrad567/latch-core/internal/auth"
	"github.com/nerrad567/latch-core/internal/bridges/door"
	"github.com/nerrad567/latch-core/internal/events"
	"github.com/nerrad567/latch-core/internal/infrastructure/config"
	"github.com/nerrad567/latch-core/internal/infrastructure/database"
	"github.com/nerrad567/latch-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/latch-core/internal/infrastructure/logging"
	"github.com/nerrad567/latch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/latch-core/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	hashKey := flag.Bool("hash-key", false,
		"read an operator key from stdin and print the hash for security.operators[].key_hash")
	flag.Parse()

	// Installer helper: hash a key and exit without touching any config.
	if *hashKey {
		if err := runHashKey(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Latch Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
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

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	applied, pending, statusErr := db.GetMigrationStatus(ctx)
	if statusErr != nil {
		log.Warn("could not read migration status", "error", statusErr)
	} else {
		log.Info("database migrations complete",
			"applied", len(applied),
			"pending", len(pending),
		)
	}

	// Door event log
	eventRepo := events.NewSQLiteRepository(db.DB)
	recorder := events.NewRecorder(eventRepo, log)

	// Connect to MQTT broker (optional)
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Relay link: supervisor owns the connection, controller owns the
	// command gate and auto-lock timer.
	identity := relay.Identity{
		DeviceID: cfg.Relay.DeviceID,
		Key:      cfg.Relay.Key,
		Addr:     cfg.Relay.Addr(),
		Version:  cfg.Relay.Version,
	}
	relayCfg := relay.Config{
		UnlockDuration:    cfg.Relay.GetUnlockDuration(),
		CommandTimeout:    cfg.Relay.GetCommandTimeout(),
		ConnectTimeout:    cfg.Relay.GetConnectTimeout(),
		RetryDelay:        cfg.Relay.GetRetryDelay(),
		HeartbeatInterval: cfg.Relay.GetHeartbeatInterval(),
		SettleDelay:       cfg.Relay.GetSettleDelay(),
		ReadTimeout:       cfg.Relay.GetReadTimeout(),
		WriteTimeout:      cfg.Relay.GetWriteTimeout(),
	}
	supervisor := relay.NewSupervisor(identity, nil, relayCfg)
	supervisor.SetLogger(log)

	controller := relay.NewController(supervisor, relayCfg)
	controller.SetLogger(log)

	// API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Door:     controller,
		Relay:    supervisor,
		Events:   eventRepo,
		MQTT:     mqttClient,
		DB:       db,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Door bridge rides on MQTT: it mirrors state onto retained topics
	// and accepts unlock/lock commands from automations and panels.
	var bridge *door.Bridge
	if mqttClient != nil {
		bridge, err = door.NewBridge(door.BridgeOptions{
			Controller: controller,
			MQTTClient: &mqttBridgeAdapter{client: mqttClient},
			Topics:     mqtt.NewTopics(cfg.MQTT.TopicPrefix),
			QoS:        byte(cfg.MQTT.QoS),
			Logger:     log,
		})
		if err != nil {
			return fmt.Errorf("creating door bridge: %w", err)
		}
	}

	// Fan every relay event out to the event log, the WebSocket hub, and
	// the optional MQTT and metrics sinks. Wired before Start so the
	// first online transition is never lost.
	sinks := relay.MultiSink{recorder, server.Hub()}
	if bridge != nil {
		sinks = append(sinks, bridge)
	}
	if influxClient != nil {
		sinks = append(sinks, events.NewMetricsSink(influxClient))
	}
	supervisor.SetEventSink(sinks)
	controller.SetEventSink(sinks)

	// Start the relay link. The supervisor retries silently until the
	// device appears, so startup succeeds even with the gateway offline.
	supervisor.Start(ctx)
	defer func() {
		log.Info("stopping relay supervisor")
		supervisor.Stop()
	}()
	defer func() {
		if closeErr := controller.Close(); closeErr != nil {
			log.Error("error closing door controller", "error", closeErr)
		}
	}()
	log.Info("relay supervisor started",
		"device_id", cfg.Relay.DeviceID,
		"addr", cfg.Relay.Addr(),
	)

	// Start the door bridge (if MQTT is up)
	if bridge != nil {
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting door bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping door bridge")
			bridge.Stop()
		}()
		log.Info("door bridge started", "prefix", cfg.MQTT.TopicPrefix)
	}

	// Start the API server
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"tls", cfg.API.TLS.Enabled,
	)

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Door bridge (if enabled)
	// 3. Door controller (cancels any pending auto-lock)
	// 4. Relay supervisor
	// 5. InfluxDB (if enabled)
	// 6. MQTT (if enabled)
	// 7. Database

	log.Info("Latch Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LATCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// runHashKey reads one operator key from r and writes its PHC hash to w.
// Used as `latchd -hash-key` when provisioning operators.
func runHashKey(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading key: %w", err)
		}
		return fmt.Errorf("no key on stdin")
	}

	key := strings.TrimSpace(scanner.Text())
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}

	hash, err := auth.HashKey(key)
	if err != nil {
		return fmt.Errorf("hashing key: %w", err)
	}

	fmt.Fprintln(w, hash)
	return nil
}

// healthCheck verifies infrastructure connections are healthy.
// MQTT and InfluxDB are skipped when disabled.
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

	// Relay link health is intentionally not checked here: the supervisor
	// keeps retrying in the background and the service must come up even
	// when the door gateway is unreachable.

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the door
// bridge's MQTTClient interface. The difference is the Subscribe handler
// signature: the infrastructure client's handlers return an error, the
// bridge's do not.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements door.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements door.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements door.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Parley Core - Messaging Authorization Service
//
// This is the main entry point for the Parley Core application.
// Parley Core is the trust boundary for a self-hosted messaging platform:
//   - Account registration and Argon2id credential verification
//   - JWT access tokens and rotating refresh tokens with breach detection
//   - MQTT topic authorization over group and friendship state
//   - EMQX-compatible webhook endpoints for broker auth hooks
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/parley-im/parley-core/migrations"

	"github.com/parley-im/parley-core/internal/acl"
	"github.com/parley-im/parley-core/internal/api"
	"github.com/parley-im/parley-core/internal/audit"
	"github.com/parley-im/parley-core/internal/auth"
	"github.com/parley-im/parley-core/internal/infrastructure/config"
	"github.com/parley-im/parley-core/internal/infrastructure/database"
	"github.com/parley-im/parley-core/internal/infrastructure/influxdb"
	"github.com/parley-im/parley-core/internal/infrastructure/logging"
	"github.com/parley-im/parley-core/internal/infrastructure/mqtt"
	"github.com/parley-im/parley-core/internal/notify"
	"github.com/parley-im/parley-core/internal/social"
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
	log.Info("starting Parley Core",
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
	log.Info("database migrations complete")

	// Repositories
	users := auth.NewUserRepository(db.DB)
	tokens := auth.NewTokenRepository(db.DB)
	groups := social.NewGroupRepository(db.DB)
	friends := social.NewFriendRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Credential and token plumbing
	hasher := auth.NewHasher()
	codec := auth.NewTokenCodec(
		cfg.Security.JWT.Secret,
		time.Duration(cfg.Security.JWT.AccessTokenTTL)*time.Minute,
	)
	sessions := auth.NewSessions(
		users,
		tokens,
		hasher,
		codec,
		time.Duration(cfg.Security.Refresh.TTLDays)*24*time.Hour,
		log,
	)

	// Seed the initial admin account on an empty database
	if _, seedErr := auth.SeedAdmin(ctx, users, hasher, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Topic authorization engine
	aclEngine := acl.NewEngine(groups, friends, log)

	// Connect to MQTT broker for the system notification plane.
	// Notifications are best effort: a broker that is down at boot must not
	// keep the auth service from starting, so a failed connect degrades to
	// a nil publisher and the notifier drops events.
	mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
	if mqttErr != nil {
		log.Warn("MQTT unavailable, notifications disabled", "error", mqttErr)
	} else {
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

	// Event notifier and audit trail
	var notifier *notify.Notifier
	if mqttClient != nil {
		notifier = notify.NewNotifier(mqttClient, log)
	}
	auditRecorder := audit.NewRecorder(auditRepo, log)

	// A refresh-token replay against a live row is evidence of theft; keep
	// a durable record alongside the metric.
	sessions.SetOnBreach(func(breachCtx context.Context, userID, tokenID string) {
		auditRecorder.Record(breachCtx, audit.ActionTokenBreach, userID, tokenID, nil)
		if influxClient != nil {
			influxClient.WriteAuthEvent("refresh", "deny", "breach", userID)
		}
	})

	// HTTP API and broker webhooks
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Sessions: sessions,
		Codec:    codec,
		Users:    users,
		Groups:   groups,
		Friends:  friends,
		ACL:      aclEngine,
		Notifier: notifier,
		Audit:    auditRecorder,
		AuditLog: auditRepo,
		Metrics:  influxClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	// Periodic sweep of expired refresh tokens
	go sweepExpiredTokens(ctx, cfg, sessions, influxClient, auditRecorder, log)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if connected)
	// 4. Database

	log.Info("Parley Core stopped")
	return nil
}

// sweepExpiredTokens removes expired refresh tokens on a fixed interval
// until the context is cancelled.
func sweepExpiredTokens(ctx context.Context, cfg *config.Config, sessions *auth.Sessions, metrics *influxdb.Client, recorder *audit.Recorder, log *logging.Logger) {
	// Config validation rejects a non-positive interval, but NewTicker
	// panics on one, so guard here as well.
	interval := time.Duration(cfg.Security.Refresh.CleanupInterval) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.CleanupExpired(ctx)
			if err != nil {
				log.Error("refresh token sweep failed", "error", err)
				continue
			}
			if removed == 0 {
				continue
			}
			log.Info("expired refresh tokens removed", "count", removed)
			if metrics != nil {
				metrics.WriteTokenSweep(removed)
			}
			recorder.Record(ctx, audit.ActionTokenSweep, "", "system", map[string]any{
				"removed": removed,
			})
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses PARLEY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PARLEY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled or unavailable.
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

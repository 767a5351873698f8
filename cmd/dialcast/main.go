// DIALCast - DIAL protocol receiver
//
// This is the main entry point for the DIALCast receiver. It serves the
// DIAL HTTP control plane, answers SSDP discovery searches, and optionally
// attaches an MQTT control channel for local automations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dialcast/dialcast/internal/app"
	"github.com/dialcast/dialcast/internal/control"
	"github.com/dialcast/dialcast/internal/device"
	"github.com/dialcast/dialcast/internal/dial"
	"github.com/dialcast/dialcast/internal/infrastructure/config"
	"github.com/dialcast/dialcast/internal/infrastructure/database"
	"github.com/dialcast/dialcast/internal/infrastructure/logging"
	"github.com/dialcast/dialcast/internal/infrastructure/mqtt"
	"github.com/dialcast/dialcast/internal/ssdp"
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
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting DIALCast",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	identity := device.NewIdentity(cfg.Device)
	log.Info("device identity ready",
		"uuid", identity.UUID,
		"friendly_name", identity.FriendlyName,
	)

	// Dial-data persistence
	dataStore, err := app.NewFileDataStore(cfg.DIAL.DataDir)
	if err != nil {
		return fmt.Errorf("opening dial-data store: %w", err)
	}

	// Per-application key/value stores; keep handles for shutdown
	var stores []*database.Store
	defer func() {
		for _, st := range stores {
			if closeErr := st.Close(); closeErr != nil {
				log.Error("error closing application store", "path", st.Path(), "error", closeErr)
			}
		}
	}()
	openStore := func(appName string) (app.KV, error) {
		st, openErr := database.OpenStore(ctx, cfg.DIAL.DataDir, appName)
		if openErr != nil {
			return nil, openErr
		}
		stores = append(stores, st)
		return st, nil
	}

	registry := app.NewRegistry(dataStore, openStore, log)
	registerConfiguredApps(cfg, registry, log)
	log.Info("application registry initialised", "apps", len(registry.Names()))

	// DIAL HTTP server
	dialServer, err := dial.New(dial.Deps{
		Config:    cfg.DIAL,
		Logger:    log.With("component", "dial"),
		Registry:  registry,
		Identity:  identity,
		LocalAddr: device.LocalIP,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating DIAL server: %w", err)
	}
	if err := dialServer.Start(ctx); err != nil {
		return fmt.Errorf("starting DIAL server: %w", err)
	}
	defer func() {
		if closeErr := dialServer.Close(); closeErr != nil {
			log.Error("error closing DIAL server", "error", closeErr)
		}
	}()

	// SSDP discovery responder
	responder, err := ssdp.New(ssdp.Deps{
		Config:    cfg.SSDP,
		Logger:    log.With("component", "ssdp"),
		Identity:  identity,
		LocalAddr: device.LocalIP,
		DIALPort:  cfg.DIAL.Port,
	})
	if err != nil {
		return fmt.Errorf("creating SSDP responder: %w", err)
	}
	if err := responder.Start(ctx); err != nil {
		return fmt.Errorf("starting SSDP responder: %w", err)
	}
	defer func() {
		if closeErr := responder.Close(); closeErr != nil {
			log.Error("error closing SSDP responder", "error", closeErr)
		}
	}()

	// Optional MQTT control channel
	var mqttClient *mqtt.Client
	if cfg.Control.Enabled {
		mqttClient, err = mqtt.Connect(cfg.Control.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Control.MQTT.Broker.Host, cfg.Control.MQTT.Broker.Port),
			"client_id", cfg.Control.MQTT.Broker.ClientID,
		)

		listener, listenerErr := control.New(control.Deps{
			Logger:   log.With("component", "control"),
			Registry: registry,
			Broker:   mqttClient,
			QoS:      byte(cfg.Control.MQTT.QoS),
		})
		if listenerErr != nil {
			return fmt.Errorf("creating control listener: %w", listenerErr)
		}
		if startErr := listener.Start(); startErr != nil {
			return fmt.Errorf("starting control listener: %w", startErr)
		}
	} else {
		log.Info("MQTT control channel disabled")
	}

	if err := healthCheck(ctx, dialServer, responder, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. MQTT (if enabled)
	// 2. SSDP responder (sends byebye)
	// 3. DIAL server
	// 4. Application stores

	log.Info("DIALCast stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DIALCAST_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DIALCAST_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all components are healthy after startup.
func healthCheck(ctx context.Context, dialServer *dial.Server, responder *ssdp.Responder, mqttClient *mqtt.Client) error {
	if err := dialServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if err := responder.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ssdp: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	return nil
}

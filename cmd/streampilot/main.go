// Package main implements the StreamPilot runner: it augments a
// partitioned JetStream consumer application with the federated
// interactive-query plane and the autopilot scaling plane.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streampilot/autopilot"
	"github.com/c360/streampilot/config"
	"github.com/c360/streampilot/endpoint"
	"github.com/c360/streampilot/engine"
	enginejs "github.com/c360/streampilot/engine/jetstream"
	"github.com/c360/streampilot/errors"
	"github.com/c360/streampilot/health"
	"github.com/c360/streampilot/metric"
	"github.com/c360/streampilot/natsclient"
	"github.com/c360/streampilot/query"
	"github.com/c360/streampilot/serde"
	"github.com/c360/streampilot/store"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "streampilot"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML configuration")
	streamName := flag.String("stream", "events", "JetStream stream to consume")
	durablePrefix := flag.String("durable-prefix", appName, "durable consumer name prefix")
	partitions := flag.Int("partitions", 8, "partition count of the stream subject space")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	props := cfg.Properties()

	logger.Info("Starting StreamPilot", "version", Version, "nats", cfg.NATS.URL)

	// Shared connection: responder, engine binding, metrics.
	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithUserInfo(cfg.NATS.Username, cfg.NATS.Password),
		natsclient.WithToken(cfg.NATS.Token),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		_ = client.Close(closeCtx)
	}()

	registry := metric.NewRegistry()
	monitor := health.NewMonitor()

	// Engine binding. The self endpoint is optional: without it this
	// instance consumes and scales but answers no federated queries.
	var self engine.HostInfo
	if endpointStr := props.String(config.ApplicationServer, ""); endpointStr != "" {
		self, err = engine.ParseHostInfo(endpointStr)
		if err != nil {
			return errors.WrapFatal(err, "main", "run", "parse application.server")
		}
	}

	table := enginejs.NewAssignmentTable(*partitions)
	eng, err := enginejs.NewRuntime(client, enginejs.Config{
		Stream:        *streamName,
		DurablePrefix: *durablePrefix,
		Partitions:    *partitions,
		MaxWorkers:    cfg.App.NumStreamThreads + cfg.Autopilot.ThreadLimit,
	}, self, table, func(msg jetstream.Msg) {
		// The processing topology belongs to the embedding application;
		// the runner only acknowledges delivery.
		_ = msg.Ack()
	}, logger)
	if err != nil {
		return err
	}

	if err := eng.Start(ctx, cfg.App.NumStreamThreads); err != nil {
		return err
	}
	defer eng.Shutdown()

	server := endpoint.NewServer(cfg.Management, logger)
	server.ExposeMetrics(registry)
	server.ExposeHealth(monitor)

	manager, err := wireQueryPlane(cfg, props, client, eng, registry, server, logger)
	if err != nil {
		return err
	}
	if manager != nil {
		defer manager.CleanUp()
	}
	if err := wireAutopilot(cfg, props, eng, registry, monitor, server, logger); err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = server.Stop(stopCtx)
	}()

	logger.Info("StreamPilot running", "management", cfg.Management.Listen)
	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

// wireQueryPlane assembles the interactive query plane. Without a self
// endpoint the instance stays out of federated routing entirely.
func wireQueryPlane(
	cfg *config.Config,
	props config.Properties,
	client *natsclient.Client,
	eng *enginejs.Runtime,
	registry *metric.Registry,
	server *endpoint.Server,
	logger *slog.Logger,
) (*store.Manager, error) {
	if !cfg.Management.Exposes(endpoint.ReadOnlyStateStoreID) {
		logger.Info("Interactive query plane disabled: endpoint not exposed")
		return nil, nil
	}

	local, err := store.NewLocalKeyValueStore(eng, props, logger)
	if err != nil {
		// Missing self endpoint removes this instance from query
		// participation; the endpoint must not exist.
		logger.Warn("Interactive query plane disabled", "error", err)
		return nil, nil
	}

	responder := store.NewResponder(client, local, eng, logger)
	if err := responder.Start(); err != nil {
		return nil, err
	}

	prototype := store.NewRemoteKeyValueStore(cfg.NATS.URL, logger)
	manager := store.NewManager(eng, local, []store.RemoteStore{prototype}, nil, logger)

	queryMetrics, err := metric.NewQueryMetrics(registry)
	if err != nil {
		return nil, err
	}

	executor := query.NewExecutor(serde.NewRegistry(), manager, props, queryMetrics, logger)
	server.Expose(endpoint.ReadOnlyStateStoreID, endpoint.NewReadOnlyStateStoreEndpoint(executor, logger))
	return manager, nil
}

// wireAutopilot assembles the scaling plane.
func wireAutopilot(
	cfg *config.Config,
	props config.Properties,
	eng *enginejs.Runtime,
	registry *metric.Registry,
	monitor *health.Monitor,
	server *endpoint.Server,
	logger *slog.Logger,
) error {
	pilotMetrics, err := metric.NewAutopilotMetrics(registry)
	if err != nil {
		return err
	}

	pilot, err := autopilot.New(eng, cfg.Autopilot, props, pilotMetrics, logger)
	if err != nil {
		return err
	}

	if cfg.Autopilot.Enabled {
		grace := cfg.Autopilot.BetweenRuns
		window := autopilot.NewWindowManager(grace, monitor, logger)
		window.Attach(eng)
		if err := pilot.Automate(window); err != nil {
			return err
		}
	}

	server.Expose(endpoint.AutopilotID, endpoint.NewAutopilotEndpoint(pilot, props.GenericTimeout(), logger))
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		return loader.LoadFile(path)
	}
	return loader.Load()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

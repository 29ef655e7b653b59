// Package main implements the emqxlwm2m command line tool. It issues
// LwM2M device management commands (read, write, execute, observe, ...)
// to devices attached through an EMQx LwM2M bridge, with the broker
// traffic carried over NATS subjects.
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

	"github.com/Penlect/emqxlwm2m/config"
	"github.com/Penlect/emqxlwm2m/endpointstore"
	"github.com/Penlect/emqxlwm2m/gateway"
	"github.com/Penlect/emqxlwm2m/metric"
	"github.com/Penlect/emqxlwm2m/natsclient"
	"github.com/Penlect/emqxlwm2m/objectdef"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "emqxlwm2m"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	args := flag.Args()
	if cliCfg.ShowHelp || len(args) == 0 {
		printDetailedHelp()
		if cliCfg.ShowHelp {
			return nil
		}
		return fmt.Errorf("missing command")
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg, cliCfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	return app.dispatch(ctx, args[0], args[1:])
}

// applyFlagOverrides lets command-line flags win over the config file.
func applyFlagOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.NATSUrl != "" {
		cfg.NATS.URL = cliCfg.NATSUrl
	}
	if cliCfg.Timeout > 0 {
		cfg.Engine.DefaultTimeout = config.Duration(cliCfg.Timeout)
	}
	if cliCfg.Wildcard {
		cfg.Gateway.Wildcard = true
	}
}

// app wires the NATS client, gateway and supporting registries behind
// the subcommands. The gateway and endpoint store are created lazily;
// listing endpoints needs no gateway, a read needs no KV store.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	client   *natsclient.Client
	registry *metric.MetricsRegistry
	objects  *objectdef.Registry

	gw    *gateway.Gateway
	store *endpointstore.Store

	timeout time.Duration
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	opts := append(cfg.ClientOptions(), natsclient.WithName(appName))
	client, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	objects := objectdef.NewRegistry()
	if len(cfg.Objects) > 0 {
		if err := objects.LoadPaths(cfg.Objects...); err != nil {
			logger.Warn("Loading object definitions failed", "error", err)
		}
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		registry: metric.NewMetricsRegistry(),
		objects:  objects,
		timeout:  cfg.Engine.DefaultTimeout.Std(),
	}, nil
}

// gateway returns the started gateway, creating it on first use.
func (a *app) gateway(ctx context.Context) (*gateway.Gateway, error) {
	if a.gw != nil {
		return a.gw, nil
	}
	gw, err := gateway.New(gateway.Deps{
		Name:            appName,
		Config:          a.cfg.GatewayConfig(),
		NATSClient:      a.client,
		MetricsRegistry: a.registry,
		Logger:          a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}
	if err := gw.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize gateway: %w", err)
	}
	if err := gw.Start(ctx); err != nil {
		return nil, fmt.Errorf("start gateway: %w", err)
	}
	a.gw = gw
	return gw, nil
}

// endpointStore returns the KV-backed endpoint store, creating the
// bucket on first use.
func (a *app) endpointStore(ctx context.Context) (*endpointstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := endpointstore.NewStore(ctx, a.client)
	if err != nil {
		return nil, fmt.Errorf("open endpoint store: %w", err)
	}
	a.store = store
	return store, nil
}

func (a *app) close() {
	if a.gw != nil {
		if err := a.gw.Stop(5 * time.Second); err != nil {
			a.logger.Warn("Gateway stop failed", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.client.Close(ctx)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/StrathCole/ivindex-go/pkg/client"
	"github.com/StrathCole/ivindex-go/pkg/config"
	"github.com/StrathCole/ivindex-go/pkg/index"
	"github.com/StrathCole/ivindex-go/pkg/logging"
	"github.com/StrathCole/ivindex-go/pkg/metrics"
	"github.com/StrathCole/ivindex-go/pkg/server/aggregator"
	"github.com/StrathCole/ivindex-go/pkg/server/api"
	"github.com/StrathCole/ivindex-go/pkg/server/engine"
	"github.com/StrathCole/ivindex-go/pkg/server/sources"
	"github.com/StrathCole/ivindex-go/pkg/storage"
	"github.com/StrathCole/ivindex-go/pkg/version"

	// Import sources to register them
	_ "github.com/StrathCole/ivindex-go/pkg/server/sources/cex"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	envFile    = flag.String("env", "", "Optional .env file loaded before the config")
	showVer    = flag.Bool("version", false, "Show version and exit")
	once       = flag.Bool("once", false, "Run a single refresh cycle, print the result and exit")
	watch      = flag.String("watch", "", "Print updates streamed by a running server (e.g. ws://localhost:8080/ws) and exit on signal")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("ivindex version %s\n", version.Version)
		os.Exit(0)
	}

	if *watch != "" {
		runWatch(*watch, flag.Args())
		return
	}

	if *envFile != "" {
		if err := config.LoadEnvFile(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
			os.Exit(1)
		}
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting ivindex", "version", version.Version, "underlyings", cfg.Index.Underlyings)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		if err := runOnce(ctx, cfg, logger); err != nil {
			logger.Error("Cycle failed", "error", err)
			os.Exit(1)
		}
		return
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.Init()
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path)
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- runServer(ctx, cfg, logger)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			logger.Error("Component failed", "error", err)
		}
		cancel()
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	logger.Info("Shutdown complete")
}

// components holds everything built from the configuration.
type components struct {
	sources  []sources.Source
	engine   *engine.Engine
	recorder *storage.Recorder
	state    *storage.RedisStateStore
}

func (c *components) close(ctx context.Context, logger *logging.Logger) {
	for _, source := range c.sources {
		if err := source.Stop(); err != nil {
			logger.Warn("Failed to stop source", "source", source.Name(), "error", err)
		}
	}
	if c.recorder != nil {
		if err := c.recorder.Close(ctx); err != nil {
			logger.Warn("Failed to close storage", "error", err)
		}
	}
	if c.state != nil {
		_ = c.state.Close()
	}
}

func build(ctx context.Context, cfg *config.Config, logger *logging.Logger, publishers ...engine.Publisher) (*components, error) {
	c := &components{}

	// Initialize sources
	for _, sourceCfg := range cfg.EnabledSources() {
		logger.Info("Initializing source", "type", sourceCfg.Type, "name", sourceCfg.Name, "weight", sourceCfg.Weight)

		// Add logger to config so sources don't create their own
		if sourceCfg.Config == nil {
			sourceCfg.Config = make(map[string]interface{})
		}
		sourceCfg.Config["logger"] = logger
		if _, ok := sourceCfg.Config["underlyings"]; !ok {
			sourceCfg.Config["underlyings"] = append([]string(nil), cfg.Index.Underlyings...)
		}

		source, err := sources.Create(sourceCfg.Type, sourceCfg.Name, sourceCfg.Config)
		if err != nil {
			logger.Warn("Failed to create source", "type", sourceCfg.Type, "name", sourceCfg.Name, "error", err)
			continue
		}
		if err := source.Initialize(ctx); err != nil {
			logger.Warn("Failed to initialize source", "source", source.Name(), "error", err)
			continue
		}

		c.sources = append(c.sources, source)
		logger.Info("Source ready", "source", source.Name(), "underlyings", source.Underlyings())
	}
	if len(c.sources) == 0 {
		return nil, fmt.Errorf("no sources available")
	}

	// Create aggregator based on configuration
	agg, err := aggregator.NewAggregatorWithConfig(cfg.Server.AggregateMode, logger, &aggregator.AdaptiveConfig{
		Sensitivity: cfg.Server.Adaptive.Sensitivity,
		FinalMode:   cfg.Server.Adaptive.FinalMode,
	})
	if err != nil {
		c.close(ctx, logger)
		return nil, fmt.Errorf("failed to create aggregator: %w", err)
	}

	calc, err := index.NewCalculator(cfg.Index.Params())
	if err != nil {
		c.close(ctx, logger)
		return nil, fmt.Errorf("invalid index parameters: %w", err)
	}

	sinks, err := openSinks(ctx, cfg.Storage, logger)
	if err != nil {
		c.close(ctx, logger)
		return nil, err
	}
	opts := []engine.Option{engine.WithPublishers(publishers...)}
	if len(sinks) > 0 {
		c.recorder = storage.NewRecorder(sinks, cfg.Storage.BatchSize, logger)
		opts = append(opts, engine.WithPublishers(c.recorder))
	}

	if cfg.Storage.Redis.Enabled {
		c.state, err = storage.NewRedisStateStore(ctx, cfg.Storage.Redis)
		if err != nil {
			c.close(ctx, logger)
			return nil, fmt.Errorf("failed to connect state store: %w", err)
		}
		opts = append(opts, engine.WithStateStore(c.state))
	}

	c.engine, err = engine.New(engine.Config{
		Underlyings:  cfg.Index.Underlyings,
		Interval:     cfg.Index.RefreshInterval.ToDuration(),
		FetchTimeout: cfg.Index.FetchTimeout.ToDuration(),
		Weights:      cfg.SourceWeights(),
	}, c.sources, calc, agg, logger, opts...)
	if err != nil {
		c.close(ctx, logger)
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	if err := c.engine.Restore(ctx); err != nil {
		logger.Warn("Failed to restore index state", "error", err)
	}
	return c, nil
}

func openSinks(ctx context.Context, cfg config.StorageConfig, logger *logging.Logger) ([]storage.Sink, error) {
	var sinks []storage.Sink
	fail := func(err error) ([]storage.Sink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	if cfg.Terminal {
		sinks = append(sinks, storage.NewTerminal(os.Stdout))
	}
	if cfg.MySQL.Enabled {
		s, err := storage.NewMySQL(ctx, cfg.MySQL)
		if err != nil {
			return fail(fmt.Errorf("failed to open mysql: %w", err))
		}
		sinks = append(sinks, s)
	}
	if cfg.Postgres.Enabled {
		s, err := storage.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return fail(fmt.Errorf("failed to open postgres: %w", err))
		}
		sinks = append(sinks, s)
	}
	if cfg.Elasticsearch.Enabled {
		s, err := storage.NewElasticSearch(ctx, cfg.Elasticsearch)
		if err != nil {
			return fail(fmt.Errorf("failed to open elasticsearch: %w", err))
		}
		sinks = append(sinks, s)
	}

	for _, s := range sinks {
		logger.Info("Storage sink enabled", "sink", s.Name())
	}
	return sinks, nil
}

func runServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	var publishers []engine.Publisher

	// Start WebSocket server if enabled
	var wsServer *api.WebSocketServer
	if cfg.Server.WebSocket.Enabled {
		wsServer = api.NewWebSocketServer(cfg.Server.WebSocket.Addr, logger)
		publishers = append(publishers, wsServer)
		go func() {
			if err := wsServer.Start(ctx); err != nil {
				logger.Error("WebSocket server error", "error", err)
			}
		}()
	}

	c, err := build(ctx, cfg, logger, publishers...)
	if err != nil {
		if wsServer != nil {
			wsServer.Stop()
		}
		return err
	}

	server := api.NewServer(cfg.Server.HTTP.Addr, c.engine, logger)
	if wsServer != nil && cfg.Server.WebSocket.Addr == "" {
		server.SetWebSocketServer(wsServer)
	}
	if cfg.Server.HTTP.TLS.Enabled {
		server.SetTLS(cfg.Server.HTTP.TLS.Cert, cfg.Server.HTTP.TLS.Key)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	engineErr := make(chan error, 1)
	go func() {
		engineErr <- c.engine.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	case runErr = <-engineErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("Failed to stop HTTP server", "error", err)
	}
	if wsServer != nil {
		wsServer.Stop()
	}
	c.close(shutdownCtx, logger)

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func runOnce(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close(ctx, logger)

	updates := c.engine.RunCycle(ctx)
	if len(updates) == 0 {
		return engine.ErrNoEstimates
	}
	for _, u := range updates {
		fmt.Printf("%-6s %10.4f  sigma2=%.6f  sources=%v  cycle=%s\n",
			u.Underlying, u.Value, u.Sigma2, u.Sources, u.CycleID)
	}
	return nil
}

// runWatch prints streamed updates for the given underlyings until
// interrupted.
func runWatch(url string, underlyings []string) {
	logger := logging.New(os.Stderr, "text")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stream := client.NewStream(url, underlyings, logger)
	stream.Start(ctx)
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-stream.Updates():
			fmt.Printf("%s %-6s %s  sources=%v\n", u.Timestamp.Format(time.RFC3339), u.Underlying, u.Value.StringFixed(4), u.Sources)
		}
	}
}

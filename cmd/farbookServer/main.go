package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/farbook-go/internal/services"
	"github.com/Layr-Labs/farbook-go/pkg/config"
	"github.com/Layr-Labs/farbook-go/pkg/logger"
	"github.com/Layr-Labs/farbook-go/pkg/metrics"
	"github.com/Layr-Labs/farbook-go/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "farbook-server",
		Usage: "Farbook signer connect web front-end",
		Description: `Serves a page that authorizes a signer key through the Warpcast app.

Each connect attempt:
- Generates a fresh Ed25519 signer key pair
- Creates a signer request and shows its QR code
- Polls Warpcast until the request is approved
- Submits the approved signed message to a hub over gRPC`,
		Version: "1.0.0",
		Flags:   serverFlags(),
		Action:  runFarbookServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func serverFlags() []cli.Flag {
	defaults := config.NewDefaultServerConfig()
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Value:   defaults.Port,
			Usage:   "HTTP server port",
			EnvVars: []string{config.EnvFarbookPort},
		},
		&cli.StringFlag{
			Name:    "app-name",
			Value:   defaults.AppName,
			Usage:   "Page heading and signer request name",
			EnvVars: []string{config.EnvFarbookAppName},
		},
		&cli.StringFlag{
			Name:    "signer-request-url",
			Usage:   "Signer request endpoint (POST {publicKey, name}), required",
			EnvVars: []string{config.EnvFarbookSignerRequestURL},
		},
		&cli.StringFlag{
			Name:    "warpcast-api-url",
			Value:   defaults.WarpcastAPIURL,
			Usage:   "Warpcast API base URL for approval polling",
			EnvVars: []string{config.EnvFarbookWarpcastAPIURL},
		},
		&cli.StringFlag{
			Name:    "hub-address",
			Aliases: []string{"hub"},
			Value:   defaults.HubAddress,
			Usage:   "Hub gRPC endpoint (host:port)",
			EnvVars: []string{config.EnvFarbookHubAddress},
		},
		&cli.BoolFlag{
			Name:    "hub-insecure",
			Usage:   "Connect to the hub without TLS",
			EnvVars: []string{config.EnvFarbookHubInsecure},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Value:   defaults.Poll.Interval,
			Usage:   "Wait before each approval poll",
			EnvVars: []string{config.EnvFarbookPollInterval},
		},
		&cli.Float64Flag{
			Name:    "poll-backoff-multiplier",
			Usage:   "Grow the poll interval by this factor after each pending poll (0 keeps it fixed)",
			EnvVars: []string{config.EnvFarbookPollBackoff},
		},
		&cli.DurationFlag{
			Name:    "poll-max-interval",
			Usage:   "Upper bound for the grown poll interval (0 is unbounded)",
			EnvVars: []string{config.EnvFarbookPollMaxInterval},
		},
		&cli.IntFlag{
			Name:    "poll-max-attempts",
			Usage:   "Give up after this many polls (0 polls until approved)",
			EnvVars: []string{config.EnvFarbookPollMaxAttempts},
		},
		&cli.DurationFlag{
			Name:    "http-timeout",
			Value:   defaults.HTTPTimeout,
			Usage:   "Timeout for each outbound HTTP request and hub RPC",
			EnvVars: []string{config.EnvFarbookHTTPTimeout},
		},
		&cli.StringFlag{
			Name:    "persistence-type",
			Value:   defaults.PersistenceType.String(),
			Usage:   fmt.Sprintf("Attempt store backend: %s", config.GetSupportedPersistenceTypesString()),
			EnvVars: []string{config.EnvFarbookPersistenceType},
		},
		&cli.StringFlag{
			Name:    "badger-path",
			Value:   defaults.BadgerPath,
			Usage:   "Badger data directory",
			EnvVars: []string{config.EnvFarbookBadgerPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis address (host:port)",
			EnvVars: []string{config.EnvFarbookRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvFarbookRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{config.EnvFarbookRedisDB},
		},
		&cli.StringFlag{
			Name:    "redis-key-prefix",
			Usage:   "Prefix for every Redis key",
			EnvVars: []string{config.EnvFarbookRedisKeyPrefix},
		},
		&cli.Float64Flag{
			Name:    "connect-rate-limit",
			Value:   defaults.ConnectRateLimit,
			Usage:   "Connect attempts allowed per second (0 disables the limit)",
			EnvVars: []string{config.EnvFarbookConnectRateLimit},
		},
		&cli.StringSliceFlag{
			Name:    "cors-origin",
			Usage:   "Origin allowed to call the state API (repeatable)",
			EnvVars: []string{config.EnvFarbookCORSOrigins},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvFarbookVerbose},
		},
	}
}

func runFarbookServer(c *cli.Context) error {
	// Create logger
	l, err := logger.NewLogger(&logger.LoggerConfig{
		Debug: c.Bool("verbose"),
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	serverConfig := parseServerConfig(c)
	if err := serverConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	svc, err := services.NewServices(serverConfig, m, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			l.Sugar().Warnw("Error during shutdown", "error", err)
		}
	}()

	server, err := web.NewServer(&web.ServerConfig{
		Port:             serverConfig.Port,
		AppName:          serverConfig.AppName,
		Flow:             svc.Flow,
		Store:            svc.Store,
		Gatherer:         registry,
		ConnectRateLimit: serverConfig.ConnectRateLimit,
		CORSOrigins:      serverConfig.CORSOrigins,
		Logger:           l,
	})
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	if serverConfig.Verbose {
		l.Sugar().Infow("Farbook Server Configuration",
			"port", serverConfig.Port,
			"app_name", serverConfig.AppName,
			"signer_request_url", serverConfig.SignerRequestURL,
			"warpcast_api_url", serverConfig.WarpcastAPIURL,
			"hub_address", serverConfig.HubAddress,
			"hub_insecure", serverConfig.HubInsecure,
			"poll_interval", serverConfig.Poll.Interval,
			"persistence_type", serverConfig.PersistenceType)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start web server: %w", err)
	}

	l.Sugar().Infow("Farbook Server running", "port", serverConfig.Port)
	l.Sugar().Infow("Available endpoints",
		"page", "GET /",
		"connect", "POST /connect",
		"submit", "POST /submit",
		"state", "GET /state",
		"metrics", "GET /metrics")
	l.Sugar().Info("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Sugar().Infow("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		l.Sugar().Warnw("Failed to stop web server", "error", err)
	}
	return nil
}

func parseServerConfig(c *cli.Context) *config.ServerConfig {
	return &config.ServerConfig{
		Port:             c.Int("port"),
		AppName:          c.String("app-name"),
		SignerRequestURL: c.String("signer-request-url"),
		WarpcastAPIURL:   c.String("warpcast-api-url"),
		HubAddress:       c.String("hub-address"),
		HubInsecure:      c.Bool("hub-insecure"),
		Poll: config.PollConfig{
			Interval:          c.Duration("poll-interval"),
			BackoffMultiplier: c.Float64("poll-backoff-multiplier"),
			MaxInterval:       c.Duration("poll-max-interval"),
			MaxAttempts:       c.Int("poll-max-attempts"),
		},
		HTTPTimeout:     c.Duration("http-timeout"),
		PersistenceType: config.PersistenceType(c.String("persistence-type")),
		BadgerPath:      c.String("badger-path"),
		Redis: config.RedisConfig{
			Address:   c.String("redis-address"),
			Password:  c.String("redis-password"),
			DB:        c.Int("redis-db"),
			KeyPrefix: c.String("redis-key-prefix"),
		},
		ConnectRateLimit: c.Float64("connect-rate-limit"),
		CORSOrigins:      c.StringSlice("cors-origin"),
		Debug:            c.Bool("verbose"),
		Verbose:          c.Bool("verbose"),
	}
}

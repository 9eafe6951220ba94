package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/veiloq/wallet-bridge/pkg/bridge"
	"github.com/veiloq/wallet-bridge/pkg/config"
	"github.com/veiloq/wallet-bridge/pkg/logging"
	"github.com/veiloq/wallet-bridge/pkg/provider"
	"github.com/veiloq/wallet-bridge/pkg/ratelimit"
)

var (
	cfgFile  string
	port     int
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:   "walletbridge",
		Short: "Local relay exposing a browser wallet provider over WebSocket",
		Long: `walletbridge relays EIP-1193 wallet RPC calls between a wallet-hosting
environment and a local consumer over a WebSocket speaking JSON-RPC 2.0.`,
		SilenceUsage: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge and serve until interrupted",
		RunE:  runServe,
	}
	serve.Flags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
	serve.Flags().IntVarP(&port, "port", "p", 0, "application HTTP port (bridge listens one above)")
	serve.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// A local .env file supplements the environment; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Port = port
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	base := logging.NewZapLogger(
		logging.WithLogLevel(logging.ParseLevel(cfg.LogLevel)),
	)
	ring := logging.NewRingSink(base, logging.DefaultRingCapacity)
	logger := logging.Logger(ring)

	bus := provider.NewDiscoveryBus()
	store := provider.NewFileStore(cfg.StateFile)
	registry := provider.NewRegistry(bus, store, logger)

	b := bridge.New(bridge.Config{
		Server: bridge.ServerConfig{
			HTTPPort:    cfg.Port,
			CallTimeout: cfg.CallTimeout,
			InboundRate: ratelimit.Rate{Limit: bridge.DefaultInboundLimit, Interval: time.Second},
		},
		Client: bridge.ClientConfig{
			HTTPPort:   cfg.Port,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			Detect: provider.DetectOptions{
				Timeout:    cfg.DetectWindow,
				MaxRetries: cfg.DetectRetries,
			},
		},
		ListenTimeout:  cfg.ListenTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
		HealthInterval: cfg.HealthInterval,
	}, registry, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("bridge startup failed: %w", err)
	}
	defer b.Stop()

	logger.Info("wallet bridge running",
		logging.Int("port", cfg.Port+1),
		logging.String("state_file", cfg.StateFile))

	<-ctx.Done()
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"solirey/config"
	"solirey/core"
	"solirey/native/common"
	"solirey/observability/logging"
	"solirey/observability/tracing"
	"solirey/rpc"
	"solirey/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "solireyd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level, err := cfg.LogLevelValue()
	if err != nil {
		return err
	}
	env := cfg.Environment
	if override := strings.TrimSpace(os.Getenv("SOLIREY_ENV")); override != "" {
		env = override
	}
	logger, closer := logging.SetupWithOptions("solireyd", env, logging.Options{
		Level: level,
		File:  cfg.LogFile,
	})
	defer closer.Close()

	shutdownTracing, err := tracing.Init(context.Background(), tracingConfig(cfg, env))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}
	defer db.Close()

	market, err := openMarket(db, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := rpc.NewServer(market, rpc.Config{
		ListenAddress: cfg.ListenAddress,
		RateLimit: rpc.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	logger.Info("solireyd started",
		"data_dir", cfg.DataDir,
		"fee_bps", cfg.FeeBps,
		"platform", cfg.Platform)
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("rpc: %w", err)
	}
	logger.Info("solireyd stopped")
	return nil
}

// tracingConfig reads the tracing section, letting the standard OTLP
// environment variables override it.
func tracingConfig(cfg *config.Config, env string) tracing.Config {
	out := tracing.Config{
		ServiceName: "solireyd",
		Environment: env,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		Headers:     tracing.ParseHeaders(cfg.Tracing.Headers),
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		out.Endpoint = endpoint
	}
	if headers := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); headers != "" {
		out.Headers = tracing.ParseHeaders(headers)
	}
	return out
}

// openMarket builds the market over db and applies the configured genesis
// allocation on first start.
func openMarket(db storage.Database, cfg *config.Config, logger *slog.Logger) (*core.Market, error) {
	platform, err := cfg.PlatformAddress()
	if err != nil {
		return nil, err
	}
	market, err := core.NewMarket(db, core.MarketConfig{
		Platform: platform,
		FeeBps:   cfg.FeeBps,
		Pauses:   common.PauseSet(cfg.Pauses.Modules()),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open market: %w", err)
	}
	alloc, err := genesisAlloc(cfg.Alloc)
	if err != nil {
		return nil, err
	}
	if len(alloc) > 0 {
		if err := market.ApplyGenesis(alloc); err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
	}
	return market, nil
}

func genesisAlloc(entries []config.Alloc) (map[[20]byte]*big.Int, error) {
	alloc := make(map[[20]byte]*big.Int, len(entries))
	for _, entry := range entries {
		addr, balance, err := entry.Parse()
		if err != nil {
			return nil, err
		}
		if existing, ok := alloc[addr]; ok {
			balance = new(big.Int).Add(existing, balance)
		}
		alloc[addr] = balance
	}
	return alloc, nil
}

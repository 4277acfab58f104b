// fhemarket — a headless client for a privacy-preserving binary prediction
// market on Sepolia. Share amounts are encrypted client-side via an FHE
// relayer before they ever touch the chain; only participation counters and
// pool totals are public.
//
// Architecture:
//
//	main.go              — entry point: loads config, starts app, waits for SIGINT/SIGTERM
//	app/app.go           — wiring: RPC clients, adapters, store, watcher, dashboard
//	contract/reader.go   — read adapter: listMarketIds/getMarket/getPosition over eth_call
//	contract/writer.go   — write adapter: signed EIP-1559 transactions, receipt polling
//	fhe/fhe.go           — relayer client: per-identity encryption instance, input proofs
//	store/store.go       — session cache of market state with atomic refresh
//	trade/orchestrator.go— trade lifecycle state machine with notifications
//	position/aggregator.go — portfolio scan across all markets and outcomes
//	watch/watcher.go     — contract log subscription keeping the store fresh
//	api/server.go        — local dashboard: JSON API + WebSocket event stream
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fhemarket/internal/app"
	"fhemarket/internal/config"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("FHEM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	a, err := app.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create app", "error", err)
		os.Exit(1)
	}

	if err := a.Start(); err != nil {
		logger.Error("failed to start", "error", err)
		a.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	a.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

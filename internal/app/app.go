// Package app wires the client together: RPC clients, contract adapters,
// the FHE service, the market store, the chain watcher, the trade
// orchestrator, and the dashboard server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"fhemarket/internal/api"
	"fhemarket/internal/config"
	"fhemarket/internal/contract"
	"fhemarket/internal/fhe"
	"fhemarket/internal/position"
	"fhemarket/internal/store"
	"fhemarket/internal/trade"
	"fhemarket/internal/wallet"
	"fhemarket/internal/watch"
)

const startupTimeout = 30 * time.Second

// App owns every long-lived component and their shared lifecycle.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	client   *ethclient.Client
	wsClient *ethclient.Client

	reader     *contract.Reader
	fhe        *fhe.Service
	wallet     *wallet.Wallet
	store      *store.Store
	aggregator *position.Aggregator
	orch       *trade.Orchestrator
	watcher    *watch.Watcher
	apiServer  *api.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// noopNotifier swallows trade notifications when no dashboard is running;
// the trade log lines remain the only observer.
type noopNotifier struct{}

func (noopNotifier) TradeUpdate(trade.Notification) {}

// New wires all components. A missing wallet key is not an error: the app
// runs read-only and every trade call fails fast with ErrNoWallet.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	client, err := ethclient.Dial(cfg.RPC.HTTPURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	contractAddr := common.HexToAddress(cfg.Contract.Address)
	reader := contract.NewReader(client, contractAddr)
	fheSvc := fhe.NewService(cfg)

	w, err := wallet.New(cfg)
	if err != nil && !errors.Is(err, wallet.ErrNoWallet) {
		client.Close()
		return nil, fmt.Errorf("wallet: %w", err)
	}
	if w == nil {
		logger.Warn("no wallet configured, running read-only")
	}

	st := store.New(reader, cfg.Store.FetchConcurrency, logger)
	aggregator := position.New(reader, logger)

	var apiServer *api.Server
	var notifier trade.Notifier = noopNotifier{}
	var sink watch.Sink
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, st, aggregator, fheSvc, logger)
		notifier = apiServer.Hub()
		sink = apiServer.Hub()
	}

	// The writer needs a wallet; without one the orchestrator still exists
	// and rejects every call at the precondition check.
	var writer *contract.Writer
	if w != nil {
		writer, err = contract.NewWriter(client, w, contractAddr)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("writer: %w", err)
		}
	}
	orch := trade.New(fheSvc, writer, w, st, notifier, logger)

	app := &App{
		cfg:        cfg,
		logger:     logger.With("component", "app"),
		client:     client,
		reader:     reader,
		fhe:        fheSvc,
		wallet:     w,
		store:      st,
		aggregator: aggregator,
		orch:       orch,
		apiServer:  apiServer,
	}

	if cfg.RPC.WSURL != "" {
		wsClient, err := ethclient.Dial(cfg.RPC.WSURL)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("dial ws rpc: %w", err)
		}
		app.wsClient = wsClient
		app.watcher = watch.New(wsClient, contractAddr, st, sink, logger)
	} else {
		logger.Info("no ws endpoint configured, event watcher disabled")
	}

	return app, nil
}

// Store exposes the market store for callers embedding the app.
func (a *App) Store() *store.Store { return a.store }

// Trades exposes the trade orchestrator.
func (a *App) Trades() *trade.Orchestrator { return a.orch }

// Positions exposes the position aggregator.
func (a *App) Positions() *position.Aggregator { return a.aggregator }

// Start verifies the contract, initializes the FHE instance, performs the
// initial market fetch, and launches the watcher and dashboard.
func (a *App) Start() error {
	a.ctx, a.cancel = context.WithCancel(context.Background())

	startCtx, cancel := context.WithTimeout(a.ctx, startupTimeout)
	defer cancel()

	// Refuse to trade against a contract whose price constant drifted.
	if err := trade.VerifySharePrice(startCtx, a.reader); err != nil {
		return err
	}

	if a.wallet != nil {
		if err := a.fhe.Init(startCtx, a.wallet.Address()); err != nil {
			// Browsing still works; trades will fail until a retry succeeds.
			a.logger.Warn("fhe init failed, trading disabled until retry", "error", err)
		}
	}

	a.store.FetchMarkets(startCtx)
	if err := a.store.Err(); err != nil {
		a.logger.Warn("initial market fetch failed", "error", err)
	}

	if a.watcher != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.watcher.Run(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("watcher stopped", "error", err)
			}
		}()
	}

	if a.apiServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.apiServer.Start(); err != nil {
				a.logger.Error("dashboard server failed", "error", err)
			}
		}()
		a.logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", a.cfg.Dashboard.Port))
	}

	a.logger.Info("client started",
		"contract", a.cfg.Contract.Address,
		"markets", len(a.store.Markets()),
		"read_only", a.wallet == nil,
	)
	return nil
}

// Stop shuts everything down and waits for background goroutines.
func (a *App) Stop() {
	a.logger.Info("shutting down")

	if a.apiServer != nil {
		if err := a.apiServer.Stop(); err != nil {
			a.logger.Error("failed to stop dashboard", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.wsClient != nil {
		a.wsClient.Close()
	}
	a.client.Close()
}

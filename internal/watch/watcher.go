// Package watch subscribes to contract logs and keeps the market store in
// sync with on-chain activity.
//
// The subscription runs over the WS RPC endpoint and auto-reconnects with
// exponential backoff (1s → 30s max). When no WS endpoint is configured the
// app simply never runs a watcher and the store refreshes only on demand.
//
// MarketCreated's marketId is an indexed string, so the log topic carries
// keccak256(id) rather than the id itself. For known markets the hash is
// resolved against the store's cached ids; a hash that resolves to nothing
// forces a full refetch, which also picks up brand-new markets.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"fhemarket/internal/contract"
)

const (
	logBufferSize    = 64
	maxReconnectWait = 30 * time.Second
)

// LogSubscriber is the subscription surface of *ethclient.Client.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- coretypes.Log) (ethereum.Subscription, error)
}

// Store is the slice of the market store the watcher drives.
type Store interface {
	FetchMarkets(ctx context.Context)
	RefreshMarket(ctx context.Context, id string)
	KnownIDs() []string
}

// Sink receives dashboard-facing notifications for each handled event.
// May be nil when no dashboard is running.
type Sink interface {
	MarketsRefreshed()
	MarketUpdated(marketID string)
	MarketSettled(marketID string)
}

// Watcher routes contract logs to store refreshes and sink notifications.
type Watcher struct {
	client   LogSubscriber
	contract common.Address
	store    Store
	sink     Sink
	logger   *slog.Logger
}

// New creates a watcher for one contract address.
func New(client LogSubscriber, contractAddr common.Address, store Store, sink Sink, logger *slog.Logger) *Watcher {
	return &Watcher{
		client:   client,
		contract: contractAddr,
		store:    store,
		sink:     sink,
		logger:   logger.With("component", "watch"),
	}
}

// Run subscribes and processes logs until ctx is cancelled, reconnecting
// with exponential backoff on subscription drops.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := w.subscribeAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.logger.Warn("log subscription dropped, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (w *Watcher) subscribeAndRead(ctx context.Context) error {
	created := contract.ABI.Events["MarketCreated"].ID
	purchased := contract.ABI.Events["SharesPurchased"].ID
	settled := contract.ABI.Events["MarketSettled"].ID

	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.contract},
		Topics:    [][]common.Hash{{created, purchased, settled}},
	}

	logs := make(chan coretypes.Log, logBufferSize)
	sub, err := w.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	defer sub.Unsubscribe()

	w.logger.Info("log subscription established", "contract", w.contract.Hex())

	// A reconnect may have missed events; resync once up front.
	w.store.FetchMarkets(ctx)
	w.notifyRefreshed()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("subscription: %w", err)
		case log := <-logs:
			w.handle(ctx, created, purchased, settled, log)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, created, purchased, settled common.Hash, log coretypes.Log) {
	if len(log.Topics) == 0 {
		return
	}

	switch log.Topics[0] {
	case created:
		w.logger.Info("market created, refetching list")
		w.store.FetchMarkets(ctx)
		w.notifyRefreshed()

	case purchased:
		id, ok := w.resolveMarketID(log)
		if !ok {
			w.store.FetchMarkets(ctx)
			w.notifyRefreshed()
			return
		}
		w.logger.Debug("shares purchased", "market", id)
		w.store.RefreshMarket(ctx, id)
		if w.sink != nil {
			w.sink.MarketUpdated(id)
		}

	case settled:
		id, ok := w.resolveMarketID(log)
		if !ok {
			w.store.FetchMarkets(ctx)
			w.notifyRefreshed()
			return
		}
		w.logger.Info("market settled", "market", id)
		w.store.RefreshMarket(ctx, id)
		if w.sink != nil {
			w.sink.MarketSettled(id)
		}
	}
}

// resolveMarketID maps an indexed-string topic hash back to a cached market
// id. Only ids the store already knows can resolve.
func (w *Watcher) resolveMarketID(log coretypes.Log) (string, bool) {
	if len(log.Topics) < 2 {
		return "", false
	}
	want := log.Topics[1]
	for _, id := range w.store.KnownIDs() {
		if crypto.Keccak256Hash([]byte(id)) == want {
			return id, true
		}
	}
	return "", false
}

func (w *Watcher) notifyRefreshed() {
	if w.sink != nil {
		w.sink.MarketsRefreshed()
	}
}

package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"fhemarket/internal/contract"
	"fhemarket/internal/fhe"
	"fhemarket/internal/wallet"
	"fhemarket/pkg/types"
)

// Notification is one trade lifecycle update. A later notification with the
// same TradeID supersedes the earlier one; listeners show at most one entry
// per trade.
type Notification struct {
	TradeID string           `json:"trade_id"`
	State   types.TradeState `json:"state"`
	TxHash  string           `json:"tx_hash,omitempty"`
	Message string           `json:"message"`
}

// Notifier receives exactly one call per state transition.
type Notifier interface {
	TradeUpdate(n Notification)
}

// Submitter is the write-side contract surface. *contract.Writer satisfies
// it; tests inject fakes to drive the state machine without a chain.
type Submitter interface {
	BuyShares(ctx context.Context, marketID string, outcomeID uint8, isYes bool, handle [32]byte, proof []byte, payment *big.Int) (common.Hash, error)
	AdjustPosition(ctx context.Context, marketID string, outcomeID uint8, newIsYes bool, handle [32]byte, proof []byte) (common.Hash, error)
	ClaimWinnings(ctx context.Context, marketID string, outcomeID uint8) (common.Hash, error)
	ClaimRefund(ctx context.Context, marketID string, outcomeID uint8) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) error
}

// Encryptor builds encrypted share inputs. *fhe.Service satisfies it.
type Encryptor interface {
	Ready(user common.Address) bool
	EncryptShares(ctx context.Context, shares int64, user common.Address) (*fhe.EncryptedInput, error)
}

// MarketRefresher re-fetches a market after a confirmed trade touches it.
type MarketRefresher interface {
	RefreshMarket(ctx context.Context, id string)
}

// Orchestrator runs each trade through its lifecycle:
//
//	walletPending → chainConfirming → success
//	             ↘ failed (from any stage)
//
// Contract preconditions (already claimed, not settled, wrong payment) are
// never pre-validated client-side; the revert is the authoritative rejection
// and its classified reason is what the notification carries.
type Orchestrator struct {
	enc      Encryptor
	sub      Submitter
	wallet   *wallet.Wallet
	store    MarketRefresher
	notifier Notifier
	logger   *slog.Logger
	seq      atomic.Uint64
}

// New creates an orchestrator. wallet may be nil for a read-only client; in
// that case every trade call fails fast with wallet.ErrNoWallet.
func New(enc Encryptor, sub Submitter, w *wallet.Wallet, store MarketRefresher, notifier Notifier, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		enc:      enc,
		sub:      sub,
		wallet:   w,
		store:    store,
		notifier: notifier,
		logger:   logger.With("component", "trade"),
	}
}

// BuyShares encrypts the share count and submits a buyShares transaction
// paying shares x SHARE_PRICE wei. Precondition failures (no wallet, FHE not
// initialized) return before any notification is emitted, so the two causes
// stay distinguishable to the caller.
func (o *Orchestrator) BuyShares(ctx context.Context, marketID string, outcomeID uint8, isYes bool, shares int64) error {
	user, err := o.preflight(true)
	if err != nil {
		return err
	}
	return o.run(ctx, marketID, func(ctx context.Context) (common.Hash, error) {
		input, err := o.enc.EncryptShares(ctx, shares, user)
		if err != nil {
			return common.Hash{}, fmt.Errorf("encrypt shares: %w", err)
		}
		return o.sub.BuyShares(ctx, marketID, outcomeID, isYes, input.Handle, input.Proof, Cost(shares))
	})
}

// AdjustPosition replaces an existing position's direction and share count.
// Same flow as BuyShares but carries no payment: the pool holds the stake.
func (o *Orchestrator) AdjustPosition(ctx context.Context, marketID string, outcomeID uint8, newIsYes bool, shares int64) error {
	user, err := o.preflight(true)
	if err != nil {
		return err
	}
	return o.run(ctx, marketID, func(ctx context.Context) (common.Hash, error) {
		input, err := o.enc.EncryptShares(ctx, shares, user)
		if err != nil {
			return common.Hash{}, fmt.Errorf("encrypt shares: %w", err)
		}
		return o.sub.AdjustPosition(ctx, marketID, outcomeID, newIsYes, input.Handle, input.Proof)
	})
}

// ClaimWinnings claims the payout for a winning position. No encryption
// involved; double claims and pre-settlement claims revert on-chain.
func (o *Orchestrator) ClaimWinnings(ctx context.Context, marketID string, outcomeID uint8) error {
	if _, err := o.preflight(false); err != nil {
		return err
	}
	return o.run(ctx, marketID, func(ctx context.Context) (common.Hash, error) {
		return o.sub.ClaimWinnings(ctx, marketID, outcomeID)
	})
}

// ClaimRefund claims the stake back from a no-winner settlement.
func (o *Orchestrator) ClaimRefund(ctx context.Context, marketID string, outcomeID uint8) error {
	if _, err := o.preflight(false); err != nil {
		return err
	}
	return o.run(ctx, marketID, func(ctx context.Context) (common.Hash, error) {
		return o.sub.ClaimRefund(ctx, marketID, outcomeID)
	})
}

// preflight checks the fail-fast preconditions and returns the signing
// identity. needsFHE is false for claim flows, which carry no ciphertext.
func (o *Orchestrator) preflight(needsFHE bool) (common.Address, error) {
	if o.wallet == nil {
		return common.Address{}, wallet.ErrNoWallet
	}
	user := o.wallet.Address()
	if needsFHE && !o.enc.Ready(user) {
		return common.Address{}, fhe.ErrNotInitialized
	}
	return user, nil
}

// run drives one trade through the state machine, emitting exactly one
// notification per transition under a fresh trade id.
func (o *Orchestrator) run(ctx context.Context, marketID string, submit func(ctx context.Context) (common.Hash, error)) error {
	tradeID := fmt.Sprintf("trade-%d", o.seq.Add(1))

	o.notify(tradeID, types.TradeWalletPending, "", "Preparing and signing transaction")

	txHash, err := submit(ctx)
	if err != nil {
		o.fail(tradeID, "", err)
		return err
	}

	o.notify(tradeID, types.TradeChainConfirming, txHash.Hex(), "Transaction submitted, awaiting confirmation")
	o.logger.Info("tx submitted", "market", marketID, "tx", txHash.Hex())

	if err := o.sub.WaitMined(ctx, txHash); err != nil {
		o.fail(tradeID, txHash.Hex(), err)
		return err
	}

	o.notify(tradeID, types.TradeSuccess, txHash.Hex(), "Transaction confirmed")
	o.logger.Info("tx confirmed", "market", marketID, "tx", txHash.Hex())

	// Confirmed trades change the market's counters and pool; refresh it.
	o.store.RefreshMarket(ctx, marketID)
	return nil
}

func (o *Orchestrator) notify(tradeID string, state types.TradeState, txHash, message string) {
	o.notifier.TradeUpdate(Notification{
		TradeID: tradeID,
		State:   state,
		TxHash:  txHash,
		Message: message,
	})
}

func (o *Orchestrator) fail(tradeID, txHash string, err error) {
	msg := ClassifyError(err)
	o.logger.Warn("trade failed", "trade", tradeID, "error", err)
	o.notify(tradeID, types.TradeFailed, txHash, msg)
}

// ClassifyError maps a raw submission error onto a user-facing message.
// Matching is best-effort over the error text; unknown shapes fall through
// to a generic message rather than panicking or hiding the cause.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, contract.ErrTxReverted) {
		return "Transaction reverted on-chain"
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "user denied") || strings.Contains(text, "rejected"):
		return "Transaction rejected"
	case strings.Contains(text, "insufficient funds"):
		return "Insufficient funds for this trade"
	case strings.Contains(text, "nonce"):
		return "Nonce conflict, please retry"
	default:
		return "Trade failed: " + err.Error()
	}
}

package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"fhemarket/internal/wallet"
)

// TxBackend is the write-side RPC surface. *ethclient.Client satisfies it.
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// ErrTxReverted is returned by WaitMined when the transaction was included
// but reverted on-chain. The contract's rules (already-claimed, not settled,
// wrong payment) are the authoritative rejection signal; the client does not
// pre-validate them.
var ErrTxReverted = errors.New("transaction reverted on-chain")

const receiptPollInterval = 4 * time.Second

// Writer submits state-changing calls as signed dynamic-fee transactions.
type Writer struct {
	backend TxBackend
	wallet  *wallet.Wallet
	address common.Address
}

// NewWriter creates a write adapter. The wallet must be present; read-only
// clients never construct a Writer.
func NewWriter(backend TxBackend, w *wallet.Wallet, addr common.Address) (*Writer, error) {
	if w == nil {
		return nil, wallet.ErrNoWallet
	}
	return &Writer{backend: backend, wallet: w, address: addr}, nil
}

// submit packs, prices, signs, and broadcasts one contract call.
// Gas estimation runs the call against pending state first, so contract
// precondition violations surface here with the revert reason attached.
func (w *Writer) submit(ctx context.Context, value *big.Int, method string, args ...any) (common.Hash, error) {
	input, err := ABI.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	from := w.wallet.Address()
	nonce, err := w.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}

	tipCap, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas tip: %w", err)
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("head: %w", err)
	}
	// feeCap = 2*baseFee + tip leaves headroom for base fee growth
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tipCap)

	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &w.address,
		Value: value,
		Data:  input,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: %w", method, err)
	}

	tx := coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   w.wallet.ChainID(),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &w.address,
		Value:     value,
		Data:      input,
	})

	signed, err := w.wallet.SignTx(tx)
	if err != nil {
		return common.Hash{}, err
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}
	return signed.Hash(), nil
}

// BuyShares submits a buyShares call carrying the encrypted share count and
// its proof, paying exactly payment wei.
func (w *Writer) BuyShares(ctx context.Context, marketID string, outcomeID uint8, isYes bool, handle [32]byte, proof []byte, payment *big.Int) (common.Hash, error) {
	return w.submit(ctx, payment, "buyShares", marketID, outcomeID, isYes, handleToWord(handle), proof)
}

// AdjustPosition replaces an existing position's direction and encrypted
// share count. No payment: the pool already holds the stake.
func (w *Writer) AdjustPosition(ctx context.Context, marketID string, outcomeID uint8, newIsYes bool, handle [32]byte, proof []byte) (common.Hash, error) {
	return w.submit(ctx, nil, "adjustPosition", marketID, outcomeID, newIsYes, handleToWord(handle), proof)
}

// ClaimWinnings claims the payout for a winning position after settlement.
func (w *Writer) ClaimWinnings(ctx context.Context, marketID string, outcomeID uint8) (common.Hash, error) {
	return w.submit(ctx, nil, "claimWinnings", marketID, outcomeID)
}

// ClaimRefund claims the stake back from a market settled with no winner.
func (w *Writer) ClaimRefund(ctx context.Context, marketID string, outcomeID uint8) (common.Hash, error) {
	return w.submit(ctx, nil, "claimRefund", marketID, outcomeID)
}

// WaitMined polls until the transaction is included, then reports whether it
// succeeded. Blocks until inclusion or ctx cancellation.
func (w *Writer) WaitMined(ctx context.Context, txHash common.Hash) error {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		// ethereum.NotFound means still pending; other errors are treated as
		// transient and retried until ctx gives up.
		receipt, err := w.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == coretypes.ReceiptStatusSuccessful {
				return nil
			}
			return fmt.Errorf("tx %s: %w", txHash.Hex(), ErrTxReverted)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// handleToWord widens a bytes32 FHE input handle to the uint256 the ABI
// declares for externalEuint64 parameters.
func handleToWord(handle [32]byte) *big.Int {
	return new(big.Int).SetBytes(handle[:])
}

// Package wallet holds the client's signing identity. The private key signs
// transactions; the derived address is also what encrypted inputs get bound
// to on the relayer side. A client without a key runs in read-only mode.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"fhemarket/internal/config"
)

// ErrNoWallet indicates an operation requiring a signer was attempted while
// running read-only. Callers surface this as "connect a wallet".
var ErrNoWallet = errors.New("no wallet configured")

// Wallet wraps an ECDSA key with the chain it signs for.
type Wallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// New creates a Wallet from config. Returns ErrNoWallet when no private key
// is configured, so callers can distinguish read-only mode from a bad key.
func New(cfg config.Config) (*Wallet, error) {
	if cfg.Wallet.PrivateKey == "" {
		return nil, ErrNoWallet
	}

	// Strip 0x prefix if present
	keyHex := cfg.Wallet.PrivateKey
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}

	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Wallet{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    big.NewInt(cfg.RPC.ChainID),
	}, nil
}

// Address returns the signer's Ethereum address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// ChainID returns the configured chain ID.
func (w *Wallet) ChainID() *big.Int {
	return new(big.Int).Set(w.chainID)
}

// SignTx signs a transaction with the wallet key using the dynamic-fee signer.
func (w *Wallet) SignTx(tx *coretypes.Transaction) (*coretypes.Transaction, error) {
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(w.chainID), w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	return signed, nil
}

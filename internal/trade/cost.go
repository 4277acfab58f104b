// Package trade orchestrates the trading flows: encrypt the share count,
// submit the signed transaction, track its lifecycle, and notify listeners
// on every state transition.
package trade

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// SharePriceWei is the fixed protocol price of one share. The contract
// exposes the same value as SHARE_PRICE; VerifySharePrice checks the two
// agree at startup so a contract upgrade cannot silently skew cost math.
const SharePriceWei = 10_000_000_000_000

var sharePrice = big.NewInt(SharePriceWei)

var weiPerEther = decimal.New(1, 18)

// Cost returns the exact payment in wei for a share count. Non-positive
// counts cost zero. All arithmetic is integer; no floats touch wei amounts.
func Cost(shares int64) *big.Int {
	if shares <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Mul(big.NewInt(shares), sharePrice)
}

// SharesFromEth converts a user-entered ETH amount (decimal string) to a
// whole share count, flooring the division. Unparseable or negative input
// yields zero shares, never an error: zero is already not tradeable.
func SharesFromEth(amount string) int64 {
	d, err := decimal.NewFromString(amount)
	if err != nil || d.IsNegative() {
		return 0
	}
	wei := d.Mul(weiPerEther).BigInt()
	shares := new(big.Int).Quo(wei, sharePrice)
	if !shares.IsInt64() {
		return 0
	}
	return shares.Int64()
}

// PriceReader exposes the contract's advertised share price.
type PriceReader interface {
	SharePrice(ctx context.Context) (*big.Int, error)
}

// VerifySharePrice confirms the on-chain SHARE_PRICE matches the constant
// baked into the cost math. Called once at startup; mismatch is fatal.
func VerifySharePrice(ctx context.Context, r PriceReader) error {
	onchain, err := r.SharePrice(ctx)
	if err != nil {
		return fmt.Errorf("read share price: %w", err)
	}
	if onchain.Cmp(sharePrice) != 0 {
		return fmt.Errorf("share price mismatch: contract reports %s wei, client assumes %s wei", onchain, sharePrice)
	}
	return nil
}

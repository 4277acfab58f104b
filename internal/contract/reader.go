package contract

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"fhemarket/pkg/types"
)

// Caller is the read-side RPC surface the adapter needs. *ethclient.Client
// satisfies it; tests inject fakes.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader issues view calls against the fixed contract address and translates
// raw return tuples into the client's data model.
type Reader struct {
	caller  Caller
	address common.Address
	rl      *TokenBucket

	// SHARE_PRICE is immutable on-chain; cache after first read.
	priceMu    sync.Mutex
	sharePrice *big.Int
}

// NewReader creates a read adapter for the contract at addr.
func NewReader(caller Caller, addr common.Address) *Reader {
	return &Reader{
		caller:  caller,
		address: addr,
		rl:      NewTokenBucket(20, 10),
	}
}

// call packs, rate-limits, executes, and unpacks a single view call.
func (r *Reader) call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	if err := r.rl.Wait(ctx); err != nil {
		return nil, err
	}

	data, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: input}, nil)
	if err != nil {
		return nil, err
	}

	out, err := ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// ListMarketIDs returns every market id in on-chain insertion order.
// An empty contract yields an empty slice, not an error.
func (r *Reader) ListMarketIDs(ctx context.Context) ([]string, error) {
	out, err := r.call(ctx, "listMarketIds")
	if err != nil {
		return nil, fmt.Errorf("list market ids: %w", err)
	}
	ids, ok := out[0].([]string)
	if !ok {
		return nil, fmt.Errorf("list market ids: unexpected return type %T", out[0])
	}
	return ids, nil
}

// rawSnapshot matches the getMarket tuple field-for-field; the abi package
// fills it by name.
type rawSnapshot struct {
	Exists           bool
	MarketId         string
	Question         string
	Creator          common.Address
	CloseTime        *big.Int
	TotalPool        *big.Int
	Status           uint8
	WinningOutcomeId uint8
	HasWinner        bool
	OutcomeLabels    []string
	YesCounts        []*big.Int
	NoCounts         []*big.Int
	YesShareHandles  [][32]byte
	NoShareHandles   [][32]byte
}

// Snapshot fetches the raw market tuple. A revert for an unknown id, or a
// tuple with exists=false, surfaces as ErrMarketNotFound.
func (r *Reader) Snapshot(ctx context.Context, marketID string) (*types.MarketSnapshot, error) {
	out, err := r.call(ctx, "getMarket", marketID)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("market %q: %w", marketID, ErrMarketNotFound)
		}
		return nil, fmt.Errorf("get market %q: %w", marketID, err)
	}

	raw := *abi.ConvertType(out[0], new(rawSnapshot)).(*rawSnapshot)
	if !raw.Exists {
		return nil, fmt.Errorf("market %q: %w", marketID, ErrMarketNotFound)
	}

	return &types.MarketSnapshot{
		Exists:           raw.Exists,
		MarketID:         raw.MarketId,
		Question:         raw.Question,
		Creator:          raw.Creator,
		CloseTime:        raw.CloseTime,
		TotalPool:        raw.TotalPool,
		Status:           raw.Status,
		WinningOutcomeID: raw.WinningOutcomeId,
		HasWinner:        raw.HasWinner,
		OutcomeLabels:    raw.OutcomeLabels,
		YesCounts:        raw.YesCounts,
		NoCounts:         raw.NoCounts,
		YesShareHandles:  raw.YesShareHandles,
		NoShareHandles:   raw.NoShareHandles,
	}, nil
}

// MarketByID fetches and transforms one market.
func (r *Reader) MarketByID(ctx context.Context, marketID string) (types.Market, error) {
	snap, err := r.Snapshot(ctx, marketID)
	if err != nil {
		return types.Market{}, err
	}
	return ToMarket(snap), nil
}

// PositionOf fetches the position tuple for one (market, outcome, user)
// triple. The contract never reverts here for a valid pair; absence is
// Exists=false.
func (r *Reader) PositionOf(ctx context.Context, marketID string, outcomeID uint8, user common.Address) (types.Position, error) {
	out, err := r.call(ctx, "getPosition", marketID, outcomeID, user)
	if err != nil {
		return types.Position{}, fmt.Errorf("get position %s/%d: %w", marketID, outcomeID, err)
	}

	exists, ok0 := out[0].(bool)
	claimed, ok1 := out[1].(bool)
	isYes, ok2 := out[2].(bool)
	handle, ok3 := out[3].([32]byte)
	if !ok0 || !ok1 || !ok2 || !ok3 {
		return types.Position{}, fmt.Errorf("get position %s/%d: unexpected return types %T/%T/%T/%T", marketID, outcomeID, out[0], out[1], out[2], out[3])
	}
	return types.Position{
		Exists:       exists,
		Claimed:      claimed,
		IsYes:        isYes,
		SharesHandle: hexHandle(handle),
	}, nil
}

// StatusOf fetches just the status byte for one market.
func (r *Reader) StatusOf(ctx context.Context, marketID string) (types.MarketStatus, error) {
	out, err := r.call(ctx, "getMarketStatus", marketID)
	if err != nil {
		if isRevert(err) {
			return 0, fmt.Errorf("market %q: %w", marketID, ErrMarketNotFound)
		}
		return 0, fmt.Errorf("get market status %q: %w", marketID, err)
	}
	status, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("get market status %q: unexpected return type %T", marketID, out[0])
	}
	return types.MarketStatus(status), nil
}

// SharePrice returns the protocol's fixed per-share price in wei, cached
// after the first successful read.
func (r *Reader) SharePrice(ctx context.Context) (*big.Int, error) {
	r.priceMu.Lock()
	defer r.priceMu.Unlock()
	if r.sharePrice != nil {
		return new(big.Int).Set(r.sharePrice), nil
	}

	out, err := r.call(ctx, "SHARE_PRICE")
	if err != nil {
		return nil, fmt.Errorf("share price: %w", err)
	}
	price, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("share price: unexpected return type %T", out[0])
	}
	r.sharePrice = price
	return new(big.Int).Set(r.sharePrice), nil
}

func hexHandle(h [32]byte) string {
	return common.BytesToHash(h[:]).Hex()
}

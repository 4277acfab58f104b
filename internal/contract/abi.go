// Package contract is the thin adapter between the on-chain prediction
// market and the rest of the client.
//
// The contract does the hard work (encrypted share accounting, settlement,
// pool math) behind the ABI below. This package only packs calls, unpacks
// tuples, and translates raw RPC failures into the client's error taxonomy:
//
//   - Reader:    listMarketIds / getMarket / getPosition / getMarketStatus /
//     SHARE_PRICE, plus the snapshot → Market transformation
//   - Writer:    buyShares / adjustPosition / claimWinnings / claimRefund
//   - Categorize: advisory keyword tagging of market questions
//
// Reads against the public RPC endpoint are paced by a token bucket so a
// full-list refresh cannot hammer the node.
package contract

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrMarketNotFound is returned when the contract has no market for an id.
// The adapter translates reverts and exists=false tuples into this sentinel
// so callers check absence instead of parsing RPC errors.
var ErrMarketNotFound = errors.New("market not found")

// marketABI is the consumed surface of the PredictionMarket contract.
// externalEuint64 is uint256 on the wire (an FHE input handle).
const marketABI = `[
  {"type":"function","stateMutability":"view","name":"listMarketIds","inputs":[],"outputs":[{"name":"","type":"string[]"}]},
  {"type":"function","stateMutability":"view","name":"getMarket","inputs":[{"name":"marketId","type":"string"}],"outputs":[{"name":"snapshot","type":"tuple","components":[
    {"name":"exists","type":"bool"},
    {"name":"marketId","type":"string"},
    {"name":"question","type":"string"},
    {"name":"creator","type":"address"},
    {"name":"closeTime","type":"uint256"},
    {"name":"totalPool","type":"uint256"},
    {"name":"status","type":"uint8"},
    {"name":"winningOutcomeId","type":"uint8"},
    {"name":"hasWinner","type":"bool"},
    {"name":"outcomeLabels","type":"string[]"},
    {"name":"yesCounts","type":"uint256[]"},
    {"name":"noCounts","type":"uint256[]"},
    {"name":"yesShareHandles","type":"bytes32[]"},
    {"name":"noShareHandles","type":"bytes32[]"}]}]},
  {"type":"function","stateMutability":"view","name":"getPosition","inputs":[{"name":"marketId","type":"string"},{"name":"outcomeId","type":"uint8"},{"name":"user","type":"address"}],"outputs":[{"name":"exists","type":"bool"},{"name":"claimed","type":"bool"},{"name":"isYes","type":"bool"},{"name":"sharesHandle","type":"bytes32"}]},
  {"type":"function","stateMutability":"view","name":"getMarketStatus","inputs":[{"name":"marketId","type":"string"}],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","stateMutability":"view","name":"SHARE_PRICE","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"payable","name":"buyShares","inputs":[{"name":"marketId","type":"string"},{"name":"outcomeId","type":"uint8"},{"name":"isYes","type":"bool"},{"name":"encryptedShares","type":"uint256"},{"name":"proof","type":"bytes"}],"outputs":[]},
  {"type":"function","stateMutability":"nonpayable","name":"adjustPosition","inputs":[{"name":"marketId","type":"string"},{"name":"outcomeId","type":"uint8"},{"name":"newIsYes","type":"bool"},{"name":"newEncryptedShares","type":"uint256"},{"name":"proof","type":"bytes"}],"outputs":[]},
  {"type":"function","stateMutability":"nonpayable","name":"claimWinnings","inputs":[{"name":"marketId","type":"string"},{"name":"outcomeId","type":"uint8"}],"outputs":[]},
  {"type":"function","stateMutability":"nonpayable","name":"claimRefund","inputs":[{"name":"marketId","type":"string"},{"name":"outcomeId","type":"uint8"}],"outputs":[]},
  {"type":"event","name":"MarketCreated","inputs":[{"name":"marketId","type":"string","indexed":true},{"name":"question","type":"string","indexed":false},{"name":"closeTime","type":"uint256","indexed":false},{"name":"outcomeCount","type":"uint8","indexed":false}],"anonymous":false},
  {"type":"event","name":"SharesPurchased","inputs":[{"name":"marketId","type":"string","indexed":true},{"name":"buyer","type":"address","indexed":true},{"name":"outcomeId","type":"uint8","indexed":false},{"name":"isYes","type":"bool","indexed":false}],"anonymous":false},
  {"type":"event","name":"MarketSettled","inputs":[{"name":"marketId","type":"string","indexed":true},{"name":"winningOutcomeId","type":"uint8","indexed":false},{"name":"hasWinner","type":"bool","indexed":false}],"anonymous":false}
]`

// ABI is the parsed contract interface, shared by reader, writer, and watcher.
var ABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(marketABI))
	if err != nil {
		panic("contract: bad embedded ABI: " + err.Error())
	}
	return parsed
}

// isRevert reports whether a call error looks like a contract revert rather
// than a transport failure. Best-effort string match: RPC providers differ in
// how they wrap revert data.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "revert") || strings.Contains(msg, "invalid opcode")
}

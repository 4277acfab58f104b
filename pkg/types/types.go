// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the client: markets, outcomes,
// positions, filter state, and the raw contract tuple shapes. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MarketStatus is the contract-side market lifecycle state.
// Closed is also implied once the close time passes, before the explicit
// settlement call; the contract-returned value is authoritative either way.
type MarketStatus uint8

const (
	StatusActive  MarketStatus = 0 // accepting trades
	StatusClosed  MarketStatus = 1 // past close time, awaiting settlement
	StatusSettled MarketStatus = 2 // terminal, winning outcome declared (or none)
)

// String returns the display label for a status.
func (s MarketStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusClosed:
		return "Closed"
	case StatusSettled:
		return "Settled"
	default:
		return "Unknown"
	}
}

// StatusFromLabel parses a display label back into a status.
// Returns ok=false for anything unrecognized, including the "all" sentinel.
func StatusFromLabel(label string) (MarketStatus, bool) {
	switch label {
	case "Active":
		return StatusActive, true
	case "Closed":
		return StatusClosed, true
	case "Settled":
		return StatusSettled, true
	default:
		return 0, false
	}
}

// TradeState is one stage of a submitted trade's lifecycle:
//
//	idle → walletPending → chainConfirming → success
//	                     ↘ failed (from any stage)
type TradeState string

const (
	TradeIdle            TradeState = "idle"
	TradeWalletPending   TradeState = "walletPending"   // signature requested
	TradeChainConfirming TradeState = "chainConfirming" // tx broadcast, awaiting inclusion
	TradeSuccess         TradeState = "success"
	TradeFailed          TradeState = "failed"
)

// Outcome is one candidate answer within a market. ID equals the outcome's
// array position on-chain. YesCount/NoCount are plaintext participation
// counters; the encrypted share aggregates are reachable only through the
// opaque handles.
type Outcome struct {
	ID          int    `json:"id"`
	Label       string `json:"label"`
	YesCount    uint64 `json:"yes_count"`
	NoCount     uint64 `json:"no_count"`
	Probability int    `json:"probability"` // 0–100, 50 when no counts yet

	YesShareHandle string `json:"yes_share_handle"` // hex bytes32 handle
	NoShareHandle  string `json:"no_share_handle"`
}

// Market is the client-side view of one prediction market. Populated from a
// MarketSnapshot; read-only from the client's perspective. The contract is
// the only writer, the client holds a point-in-time copy.
type Market struct {
	ID               string         `json:"id"`
	Question         string         `json:"question"`
	Creator          common.Address `json:"creator"`
	CloseTime        int64          `json:"close_time"` // unix seconds
	TotalPool        *big.Int       `json:"total_pool"` // wei
	Status           MarketStatus   `json:"status"`
	WinningOutcomeID uint8          `json:"winning_outcome_id"` // meaningful only when Settled
	HasWinner        bool           `json:"has_winner"`
	Outcomes         []Outcome      `json:"outcomes"` // order-significant, ID == index
	Category         string         `json:"category"` // advisory keyword-derived tag
}

// MarketSnapshot mirrors the getMarket return tuple. Arrays are parallel and
// equal-length, indexed by outcome id.
type MarketSnapshot struct {
	Exists           bool
	MarketID         string
	Question         string
	Creator          common.Address
	CloseTime        *big.Int
	TotalPool        *big.Int
	Status           uint8
	WinningOutcomeID uint8
	HasWinner        bool
	OutcomeLabels    []string
	YesCounts        []*big.Int
	NoCounts         []*big.Int
	YesShareHandles  [][32]byte
	NoShareHandles   [][32]byte
}

// Position is the getPosition return tuple for one (market, outcome, user)
// triple. Absence is Exists=false, never an error. The plaintext share count
// is only reachable by decrypting SharesHandle out-of-band.
type Position struct {
	Exists       bool   `json:"exists"`
	Claimed      bool   `json:"claimed"`
	IsYes        bool   `json:"is_yes"`
	SharesHandle string `json:"shares_handle"` // hex bytes32 handle
}

// UserPosition composes market-level context with one existing position,
// as assembled by the position aggregator.
type UserPosition struct {
	MarketID         string       `json:"market_id"`
	MarketQuestion   string       `json:"market_question"`
	OutcomeID        int          `json:"outcome_id"`
	OutcomeLabel     string       `json:"outcome_label"`
	Claimed          bool         `json:"claimed"`
	IsYes            bool         `json:"is_yes"`
	SharesHandle     string       `json:"shares_handle"`
	MarketStatus     MarketStatus `json:"market_status"`
	WinningOutcomeID uint8        `json:"winning_outcome_id"`
	HasWinner        bool         `json:"has_winner"`
}

// FilterAll is the sentinel matching every category or status.
const FilterAll = "all"

// Filter is ephemeral view state over the cached market list. Category and
// Status use the "all" sentinel; Search is a case-insensitive substring over
// the question and outcome labels. Never persisted.
type Filter struct {
	Category string `json:"category"`
	Search   string `json:"search"`
	Status   string `json:"status"` // status label or "all"
}

// DefaultFilter returns the filter that retains every market.
func DefaultFilter() Filter {
	return Filter{Category: FilterAll, Search: "", Status: FilterAll}
}

// Matches reports whether a market passes all three filter dimensions.
// Dimensions are combined with AND; an empty search retains unconditionally.
func (f Filter) Matches(m Market) bool {
	if f.Category != FilterAll && f.Category != "" && m.Category != f.Category {
		return false
	}
	if f.Status != FilterAll && f.Status != "" {
		status, ok := StatusFromLabel(f.Status)
		if !ok || m.Status != status {
			return false
		}
	}
	if f.Search != "" {
		return m.MatchesSearch(f.Search)
	}
	return true
}

// MatchesSearch reports whether the search term appears in the question or
// any outcome label, case-insensitively.
func (m Market) MatchesSearch(search string) bool {
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(m.Question), needle) {
		return true
	}
	for _, o := range m.Outcomes {
		if strings.Contains(strings.ToLower(o.Label), needle) {
			return true
		}
	}
	return false
}

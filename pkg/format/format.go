// Package format provides pure display helpers for token amounts,
// probabilities, addresses, and timestamps. Wei amounts are converted with
// shopspring/decimal so no float64 ever touches a token quantity.
package format

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var weiPerEther = decimal.New(1, 18)

// Probability computes the rounded yes percentage from the plaintext
// participation counters. Defined for every input: an untouched outcome
// (no counts) reads as 50.
func Probability(yesCount, noCount uint64) int {
	total := yesCount + noCount
	if total == 0 {
		return 50
	}
	// round(yes/total*100) without floating point
	return int((yesCount*100 + total/2) / total)
}

// Address shortens an address to the 0x1234…abcd display form.
func Address(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}

// Ether renders a wei amount as a human ether string with K/M banding.
func Ether(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	eth := decimal.NewFromBigInt(wei, 0).Div(weiPerEther)
	switch {
	case eth.IsZero():
		return "0"
	case eth.LessThan(decimal.RequireFromString("0.0001")):
		return "< 0.0001"
	case eth.LessThan(decimal.NewFromInt(1)):
		return eth.StringFixed(4)
	case eth.LessThan(decimal.NewFromInt(1000)):
		return eth.StringFixed(2)
	case eth.LessThan(decimal.NewFromInt(1000000)):
		return eth.Div(decimal.NewFromInt(1000)).StringFixed(1) + "K"
	default:
		return eth.Div(decimal.NewFromInt(1000000)).StringFixed(1) + "M"
	}
}

// Volume renders a pool size in wei as a dollar-style figure with k/m banding.
func Volume(wei *big.Int) string {
	if wei == nil {
		return "$0.00"
	}
	usd := decimal.NewFromBigInt(wei, 0).Div(weiPerEther)
	switch {
	case usd.LessThan(decimal.NewFromInt(1)):
		return "$" + usd.StringFixed(2)
	case usd.LessThan(decimal.NewFromInt(1000)):
		return "$" + usd.StringFixed(0)
	case usd.LessThan(decimal.NewFromInt(1000000)):
		return "$" + usd.Div(decimal.NewFromInt(1000)).StringFixed(0) + "k"
	default:
		return "$" + usd.Div(decimal.NewFromInt(1000000)).StringFixed(1) + "m"
	}
}

// Percent renders a 0–100 probability, clamping the display at the extremes
// so a market never shows a flat 0% or 100%.
func Percent(value int) string {
	if value < 1 {
		return "<1%"
	}
	if value > 99 {
		return ">99%"
	}
	return fmt.Sprintf("%d%%", value)
}

// Countdown renders the time remaining until a unix close timestamp, relative
// to now. Granularity coarsens as the horizon grows: minutes, then hours and
// minutes, then days and hours. Anything at or past close reads "Ended".
func Countdown(closeTime int64, now time.Time) string {
	diff := closeTime - now.Unix()
	if diff <= 0 {
		return "Ended"
	}

	days := diff / 86400
	hours := (diff % 86400) / 3600
	minutes := (diff % 3600) / 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// Date renders a unix timestamp as "Jan 2, 2006" in UTC.
func Date(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format("Jan 2, 2006")
}

// DateTime renders a unix timestamp as "Jan 2, 15:04" in UTC.
func DateTime(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format("Jan 2, 15:04")
}

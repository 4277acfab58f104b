package api

import (
	"time"

	"fhemarket/internal/trade"
)

// Event types pushed over the dashboard WebSocket.
const (
	EventMarketsRefreshed = "markets_refreshed"
	EventMarketUpdated    = "market_updated"
	EventMarketSettled    = "market_settled"
	EventTradeStatus      = "trade_status"
)

// Event is the wrapper for everything sent to dashboard clients.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	MarketID  string    `json:"market_id,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// The hub doubles as the trade orchestrator's notifier and the chain
// watcher's sink: every lifecycle transition and chain event becomes one
// broadcast frame. Each trade_status frame carries the full current state
// for its trade id, so clients replace rather than stack notifications.

// TradeUpdate broadcasts one trade lifecycle transition.
func (h *Hub) TradeUpdate(n trade.Notification) {
	h.BroadcastEvent(Event{
		Type:      EventTradeStatus,
		Timestamp: time.Now(),
		Data:      n,
	})
}

// MarketsRefreshed signals that the full market list changed.
func (h *Hub) MarketsRefreshed() {
	h.BroadcastEvent(Event{
		Type:      EventMarketsRefreshed,
		Timestamp: time.Now(),
	})
}

// MarketUpdated signals that one market's counters or pool changed.
func (h *Hub) MarketUpdated(marketID string) {
	h.BroadcastEvent(Event{
		Type:      EventMarketUpdated,
		Timestamp: time.Now(),
		MarketID:  marketID,
	})
}

// MarketSettled signals that a market reached its terminal state.
func (h *Hub) MarketSettled(marketID string) {
	h.BroadcastEvent(Event{
		Type:      EventMarketSettled,
		Timestamp: time.Now(),
		MarketID:  marketID,
	})
}

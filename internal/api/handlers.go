package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"fhemarket/internal/config"
	"fhemarket/internal/fhe"
	"fhemarket/internal/position"
	"fhemarket/pkg/types"
)

// MarketProvider is the read surface the handlers need from the store.
type MarketProvider interface {
	Markets() []types.Market
	Loading() bool
	Err() error
}

// PositionProvider scans for a user's positions.
type PositionProvider interface {
	Aggregate(ctx context.Context, user common.Address) ([]types.UserPosition, []position.FetchError, error)
}

// Decrypter resolves publicly decryptable ciphertext handles, e.g. winning
// share totals after settlement.
type Decrypter interface {
	PublicDecrypt(ctx context.Context, handles []string) (*fhe.DecryptResult, error)
}

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	markets   MarketProvider
	positions PositionProvider
	decrypter Decrypter
	cfg       config.DashboardConfig
	hub       *Hub
	logger    *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(markets MarketProvider, positions PositionProvider, decrypter Decrypter, cfg config.DashboardConfig, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		markets:   markets,
		positions: positions,
		decrypter: decrypter,
		cfg:       cfg,
		hub:       hub,
		logger:    logger.With("component", "api-handlers"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type marketsResponse struct {
	Markets []types.Market `json:"markets"`
	Loading bool           `json:"loading"`
	Error   string         `json:"error,omitempty"`
}

// HandleMarkets returns the cached market list, filtered by the optional
// category, status, and search query parameters. Omitted parameters default
// to the "all" sentinel, so a bare request returns everything.
func (h *Handlers) HandleMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.DefaultFilter()
	if v := q.Get("category"); v != "" {
		filter.Category = v
	}
	if v := q.Get("status"); v != "" {
		filter.Status = v
	}
	filter.Search = q.Get("search")

	all := h.markets.Markets()
	matched := make([]types.Market, 0, len(all))
	for _, m := range all {
		if filter.Matches(m) {
			matched = append(matched, m)
		}
	}

	resp := marketsResponse{Markets: matched, Loading: h.markets.Loading()}
	if err := h.markets.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleMarket returns one market from the cache by id.
func (h *Handlers) HandleMarket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, m := range h.markets.Markets() {
		if m.ID == id {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "market not found"})
}

type positionFailure struct {
	MarketID  string `json:"market_id"`
	OutcomeID int    `json:"outcome_id"`
	Error     string `json:"error"`
}

type positionsResponse struct {
	Positions []types.UserPosition `json:"positions"`
	Failures  []positionFailure    `json:"failures,omitempty"`
}

// HandlePositions scans all markets for the given user's positions. Partial
// failures come back beside the successes rather than failing the request.
func (h *Handlers) HandlePositions(w http.ResponseWriter, r *http.Request) {
	userParam := r.URL.Query().Get("user")
	if !common.IsHexAddress(userParam) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user must be a hex address"})
		return
	}

	positions, failures, err := h.positions.Aggregate(r.Context(), common.HexToAddress(userParam))
	if err != nil {
		h.logger.Error("position scan failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	resp := positionsResponse{Positions: positions}
	for _, f := range failures {
		resp.Failures = append(resp.Failures, positionFailure{
			MarketID:  f.MarketID,
			OutcomeID: f.OutcomeID,
			Error:     f.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type decryptRequest struct {
	Handles []string `json:"handles"`
}

type decryptResponse struct {
	ClearValues map[string]string `json:"clear_values"`
}

// HandleDecrypt publicly decrypts ciphertext handles the contract has made
// decryptable (winning share totals after settlement). Handles for values
// still under access control fail at the relayer, not here.
func (h *Handlers) HandleDecrypt(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Handles) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "handles array required"})
		return
	}

	result, err := h.decrypter.PublicDecrypt(r.Context(), req.Handles)
	if err != nil {
		h.logger.Warn("public decrypt failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, decryptResponse{ClearValues: result.ClearValues})
}

// HandleWebSocket upgrades the connection and registers a hub client.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), h.cfg, r.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	NewClient(h.hub, conn)
}

// isOriginAllowed applies the dashboard origin policy: an explicit allowlist
// when configured, otherwise local origins and the serving host itself.
func isOriginAllowed(origin string, cfg config.DashboardConfig, reqHost string) bool {
	if origin == "" {
		return true
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			if strings.EqualFold(origin, allowed) {
				return true
			}
		}
		return false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return u.Host == reqHost
}

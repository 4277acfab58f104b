// Package position assembles a user's portfolio by scanning every market's
// outcomes for positions held by one address.
//
// The contract has no per-user index, so the scan is the only way to find
// positions. Share counts stay encrypted throughout; the aggregator carries
// the opaque handles and the plaintext metadata around them.
package position

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"fhemarket/internal/contract"
	"fhemarket/pkg/types"
)

// Reader is the read surface the aggregator needs. *contract.Reader
// satisfies it.
type Reader interface {
	ListMarketIDs(ctx context.Context) ([]string, error)
	MarketByID(ctx context.Context, id string) (types.Market, error)
	PositionOf(ctx context.Context, marketID string, outcomeID uint8, user common.Address) (types.Position, error)
}

// FetchError records one failed position read. Failures never abort the
// aggregation; they accumulate here so the caller can surface a partial
// portfolio with a warning instead of nothing.
type FetchError struct {
	MarketID  string
	OutcomeID int
	Err       error
}

// Aggregator scans markets for a user's positions.
type Aggregator struct {
	reader Reader
	logger *slog.Logger
}

// New creates an aggregator.
func New(reader Reader, logger *slog.Logger) *Aggregator {
	return &Aggregator{reader: reader, logger: logger.With("component", "position")}
}

// Aggregate walks every market and outcome, collecting the positions that
// exist for user. Markets are visited sequentially in id order; the outcome
// checks within one market run concurrently. A market that disappeared
// between listing and fetching is skipped silently. Results are ordered by
// market id order, then outcome index.
func (a *Aggregator) Aggregate(ctx context.Context, user common.Address) ([]types.UserPosition, []FetchError, error) {
	ids, err := a.reader.ListMarketIDs(ctx)
	if err != nil {
		return nil, nil, err
	}

	var positions []types.UserPosition
	var failures []FetchError

	for _, id := range ids {
		market, err := a.reader.MarketByID(ctx, id)
		if errors.Is(err, contract.ErrMarketNotFound) {
			continue
		}
		if err != nil {
			failures = append(failures, FetchError{MarketID: id, OutcomeID: -1, Err: err})
			continue
		}

		found := make([]*types.Position, len(market.Outcomes))
		var mu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		for i := range market.Outcomes {
			g.Go(func() error {
				pos, err := a.reader.PositionOf(gctx, id, uint8(i), user)
				if err != nil {
					mu.Lock()
					failures = append(failures, FetchError{MarketID: id, OutcomeID: i, Err: err})
					mu.Unlock()
					return nil
				}
				if pos.Exists {
					found[i] = &pos
				}
				return nil
			})
		}
		// Goroutines only ever return nil; Wait just joins them.
		_ = g.Wait()

		for i, pos := range found {
			if pos == nil {
				continue
			}
			positions = append(positions, types.UserPosition{
				MarketID:         id,
				MarketQuestion:   market.Question,
				OutcomeID:        i,
				OutcomeLabel:     market.Outcomes[i].Label,
				Claimed:          pos.Claimed,
				IsYes:            pos.IsYes,
				SharesHandle:     pos.SharesHandle,
				MarketStatus:     market.Status,
				WinningOutcomeID: market.WinningOutcomeID,
				HasWinner:        market.HasWinner,
			})
		}
	}

	if len(failures) > 0 {
		a.logger.Warn("portfolio scan incomplete", "failures", len(failures), "positions", len(positions))
	}
	return positions, failures, nil
}

// Package store is the single source of truth for fetched market state
// within a session.
//
// All published state is replaced wholesale under one lock: readers observe
// either the previous complete snapshot or the next one, never a partial
// interleaving. Fetches carry a generation number; a fetch superseded by a
// newer one publishes nothing, so slow responses cannot clobber fresh data.
// Nothing here persists: the contract owns the data, this is a session cache
// invalidated by refetch.
package store

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"fhemarket/pkg/types"
)

// MarketReader is the read adapter surface the store consumes.
// contract.Reader satisfies it; tests inject fakes.
type MarketReader interface {
	ListMarketIDs(ctx context.Context) ([]string, error)
	MarketByID(ctx context.Context, id string) (types.Market, error)
}

// FilterPatch is a partial filter update. Nil fields leave the current value
// unchanged, so a patch can clear the search term without touching category
// or status.
type FilterPatch struct {
	Category *string
	Search   *string
	Status   *string
}

// Store caches the market list, the selected market, and the active filter.
type Store struct {
	reader      MarketReader
	concurrency int
	logger      *slog.Logger

	mu       sync.RWMutex
	markets  []types.Market
	selected *types.Market
	loading  bool
	err      error
	filter   types.Filter

	listGen uint64 // generation counters discard superseded fetch results
	selGen  uint64
}

// New creates an empty store.
func New(reader MarketReader, concurrency int, logger *slog.Logger) *Store {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Store{
		reader:      reader,
		concurrency: concurrency,
		logger:      logger.With("component", "store"),
		filter:      types.DefaultFilter(),
	}
}

// FetchMarkets refreshes the full market list. Ids are listed first, then
// every snapshot is fetched concurrently and reassembled in id order before
// being published as one atomic replacement. Any failure publishes an error
// state with an empty list; a mix of stale and fresh markets is never shown.
func (s *Store) FetchMarkets(ctx context.Context) {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.listGen++
	gen := s.listGen
	s.mu.Unlock()

	markets, err := s.loadAll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.listGen {
		// A newer fetch owns the state now; drop this result.
		return
	}
	s.loading = false
	if err != nil {
		s.logger.Error("fetch markets failed", "error", err)
		s.err = err
		s.markets = nil
		return
	}
	s.logger.Info("markets refreshed", "count", len(markets))
	s.markets = markets
}

func (s *Store) loadAll(ctx context.Context) ([]types.Market, error) {
	ids, err := s.reader.ListMarketIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []types.Market{}, nil
	}

	results := make([]types.Market, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			m, err := s.reader.MarketByID(gctx, id)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// FetchMarket refreshes the selected-market slot. A missing market clears
// the slot and records the error for the UI's not-found view; nothing
// panics or escapes.
func (s *Store) FetchMarket(ctx context.Context, id string) {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.selGen++
	gen := s.selGen
	s.mu.Unlock()

	market, err := s.reader.MarketByID(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.selGen {
		return
	}
	s.loading = false
	if err != nil {
		s.logger.Warn("fetch market failed", "market", id, "error", err)
		s.selected = nil
		s.err = err
		return
	}
	s.selected = &market
}

// RefreshMarket re-fetches one market and folds it into the cached list (and
// the selected slot when it matches), after a trade or settlement event
// touches it. The list is republished as a fresh copy so slices handed out
// earlier stay immutable. A market that vanished is left as-is until the
// next full fetch.
func (s *Store) RefreshMarket(ctx context.Context, id string) {
	market, err := s.reader.MarketByID(ctx, id)
	if err != nil {
		s.logger.Warn("refresh market failed", "market", id, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.markets {
		if s.markets[i].ID == id {
			next := make([]types.Market, len(s.markets))
			copy(next, s.markets)
			next[i] = market
			s.markets = next
			break
		}
	}
	if s.selected != nil && s.selected.ID == id {
		s.selected = &market
	}
}

// SetFilter merges a partial update into the current filter. Nil fields are
// preserved unchanged; applying an empty patch is a no-op.
func (s *Store) SetFilter(patch FilterPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.Category != nil {
		s.filter.Category = *patch.Category
	}
	if patch.Search != nil {
		s.filter.Search = *patch.Search
	}
	if patch.Status != nil {
		s.filter.Status = *patch.Status
	}
}

// Filter returns the active filter.
func (s *Store) Filter() types.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// FilteredMarkets applies the active filter (category AND status AND
// case-insensitive search over question and outcome labels) to the cached
// list. Pure derivation: the stored list is never mutated.
func (s *Store) FilteredMarkets() []types.Market {
	s.mu.RLock()
	markets := s.markets
	filter := s.filter
	s.mu.RUnlock()

	out := make([]types.Market, 0, len(markets))
	for _, m := range markets {
		if filter.Matches(m) {
			out = append(out, m)
		}
	}
	return out
}

// Markets returns the full cached list (last published snapshot).
func (s *Store) Markets() []types.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markets
}

// Selected returns the selected market, or nil when absent/not found.
func (s *Store) Selected() *types.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the last fetch error, nil after a successful fetch.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// KnownIDs returns the cached market ids in list order.
func (s *Store) KnownIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.markets))
	for i, m := range s.markets {
		ids[i] = m.ID
	}
	return ids
}

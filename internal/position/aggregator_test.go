package position

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"fhemarket/internal/contract"
	"fhemarket/pkg/types"
)

type posKey struct {
	market  string
	outcome uint8
}

type fakeReader struct {
	order     []string
	markets   map[string]types.Market
	positions map[posKey]types.Position
	posErrs   map[posKey]error
	listErr   error
}

func (f *fakeReader) ListMarketIDs(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.order, nil
}

func (f *fakeReader) MarketByID(ctx context.Context, id string) (types.Market, error) {
	m, ok := f.markets[id]
	if !ok {
		return types.Market{}, contract.ErrMarketNotFound
	}
	return m, nil
}

func (f *fakeReader) PositionOf(ctx context.Context, marketID string, outcomeID uint8, user common.Address) (types.Position, error) {
	key := posKey{marketID, outcomeID}
	if err, ok := f.posErrs[key]; ok {
		return types.Position{}, err
	}
	if pos, ok := f.positions[key]; ok {
		return pos, nil
	}
	return types.Position{Exists: false}, nil
}

func newFakeReader(marketCount, outcomeCount int) *fakeReader {
	f := &fakeReader{
		markets:   make(map[string]types.Market),
		positions: make(map[posKey]types.Position),
		posErrs:   make(map[posKey]error),
	}
	for m := 0; m < marketCount; m++ {
		id := fmt.Sprintf("m%d", m)
		outcomes := make([]types.Outcome, outcomeCount)
		for o := range outcomes {
			outcomes[o] = types.Outcome{ID: o, Label: fmt.Sprintf("outcome %d", o)}
		}
		f.order = append(f.order, id)
		f.markets[id] = types.Market{
			ID:       id,
			Question: fmt.Sprintf("question %d", m),
			Status:   types.StatusActive,
			Outcomes: outcomes,
		}
	}
	return f
}

func newAggregator(r Reader) *Aggregator {
	return New(r, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var testUser = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestAggregateFindsSinglePosition(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(4, 3)
	reader.positions[posKey{"m2", 1}] = types.Position{Exists: true, IsYes: true, SharesHandle: "0xabc"}

	got, failures, err := newAggregator(reader).Aggregate(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(got) != 1 {
		t.Fatalf("got %d positions, want 1", len(got))
	}
	p := got[0]
	if p.MarketID != "m2" || p.OutcomeID != 1 || !p.IsYes || p.SharesHandle != "0xabc" {
		t.Errorf("unexpected position: %+v", p)
	}
	if p.OutcomeLabel != "outcome 1" || p.MarketQuestion != "question 2" {
		t.Errorf("market context not attached: %+v", p)
	}
}

func TestAggregateOrdering(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(3, 3)
	// Deliberately out of scan order.
	reader.positions[posKey{"m2", 0}] = types.Position{Exists: true}
	reader.positions[posKey{"m0", 2}] = types.Position{Exists: true}
	reader.positions[posKey{"m0", 1}] = types.Position{Exists: true}

	got, _, err := newAggregator(reader).Aggregate(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	want := []struct {
		market  string
		outcome int
	}{{"m0", 1}, {"m0", 2}, {"m2", 0}}
	if len(got) != len(want) {
		t.Fatalf("got %d positions, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].MarketID != w.market || got[i].OutcomeID != w.outcome {
			t.Errorf("positions[%d] = %s/%d, want %s/%d", i, got[i].MarketID, got[i].OutcomeID, w.market, w.outcome)
		}
	}
}

func TestAggregateSkipsVanishedMarket(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(2, 2)
	reader.order = append(reader.order, "ghost") // listed but not fetchable
	reader.positions[posKey{"m1", 0}] = types.Position{Exists: true}

	got, failures, err := newAggregator(reader).Aggregate(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("vanished market reported as failure: %v", failures)
	}
	if len(got) != 1 {
		t.Fatalf("got %d positions, want 1", len(got))
	}
}

func TestAggregateCollectsFailures(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(3, 2)
	reader.positions[posKey{"m0", 0}] = types.Position{Exists: true}
	reader.positions[posKey{"m2", 1}] = types.Position{Exists: true}
	reader.posErrs[posKey{"m1", 1}] = errors.New("rpc timeout")

	got, failures, err := newAggregator(reader).Aggregate(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	// One failed read never hides the rest of the portfolio.
	if len(got) != 2 {
		t.Fatalf("got %d positions, want 2", len(got))
	}
	if len(failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(failures))
	}
	if failures[0].MarketID != "m1" || failures[0].OutcomeID != 1 {
		t.Errorf("unexpected failure record: %+v", failures[0])
	}
}

func TestAggregateListError(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(1, 1)
	reader.listErr = errors.New("connection refused")

	_, _, err := newAggregator(reader).Aggregate(context.Background(), testUser)
	if err == nil {
		t.Fatal("expected error when listing fails")
	}
}

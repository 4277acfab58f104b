package contract

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"fhemarket/pkg/types"
)

func testSnapshot() *types.MarketSnapshot {
	return &types.MarketSnapshot{
		Exists:           true,
		MarketID:         "btc-100k",
		Question:         "Will Bitcoin close above $100k?",
		Creator:          common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		CloseTime:        big.NewInt(1_900_000_000),
		TotalPool:        big.NewInt(5_000_000),
		Status:           uint8(types.StatusActive),
		WinningOutcomeID: 0,
		HasWinner:        false,
		OutcomeLabels:    []string{"Yes above", "No below"},
		YesCounts:        []*big.Int{big.NewInt(1), big.NewInt(0)},
		NoCounts:         []*big.Int{big.NewInt(2), big.NewInt(0)},
		YesShareHandles:  [][32]byte{{0x01}, {0x02}},
		NoShareHandles:   [][32]byte{{0x03}, {0x04}},
	}
}

func TestToMarketOutcomeIDsMatchPosition(t *testing.T) {
	t.Parallel()

	m := ToMarket(testSnapshot())

	if len(m.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(m.Outcomes))
	}
	for i, o := range m.Outcomes {
		if o.ID != i {
			t.Errorf("outcome[%d].ID = %d, want %d", i, o.ID, i)
		}
	}
}

func TestToMarketProbability(t *testing.T) {
	t.Parallel()

	m := ToMarket(testSnapshot())

	// 1 yes / 2 no → 33; untouched outcome → 50
	if m.Outcomes[0].Probability != 33 {
		t.Errorf("outcome[0].Probability = %d, want 33", m.Outcomes[0].Probability)
	}
	if m.Outcomes[1].Probability != 50 {
		t.Errorf("outcome[1].Probability = %d, want 50 for untouched outcome", m.Outcomes[1].Probability)
	}
}

func TestToMarketCategory(t *testing.T) {
	t.Parallel()

	m := ToMarket(testSnapshot())
	if m.Category != "crypto" {
		t.Errorf("Category = %q, want crypto", m.Category)
	}
}

func TestToMarketHandlesHex(t *testing.T) {
	t.Parallel()

	m := ToMarket(testSnapshot())
	want := common.Hash{0x01}.Hex()
	if m.Outcomes[0].YesShareHandle != want {
		t.Errorf("YesShareHandle = %q, want %q", m.Outcomes[0].YesShareHandle, want)
	}
}

func TestToMarketShortParallelArrays(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	snap.YesCounts = snap.YesCounts[:1]
	snap.NoCounts = nil
	snap.YesShareHandles = nil

	m := ToMarket(snap)
	if len(m.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(m.Outcomes))
	}
	if m.Outcomes[1].YesCount != 0 || m.Outcomes[1].Probability != 50 {
		t.Errorf("missing counters should read as zero/50, got %+v", m.Outcomes[1])
	}
}

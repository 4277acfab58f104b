package contract

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"fhemarket/pkg/types"
)

// fakeCaller resolves calls by method name. Each entry is either packed
// return data or an error to surface.
type fakeCaller struct {
	outputs map[string][]byte
	errs    map[string]error
	calls   []string
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := ABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, method.Name)
	if err, ok := f.errs[method.Name]; ok {
		return nil, err
	}
	return f.outputs[method.Name], nil
}

func packOutput(t *testing.T, method string, values ...any) []byte {
	t.Helper()
	data, err := ABI.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	return data
}

func newTestReader(f *fakeCaller) *Reader {
	return NewReader(f, common.HexToAddress("0x00000000000000000000000000000000000000cc"))
}

func TestListMarketIDs(t *testing.T) {
	t.Parallel()

	f := &fakeCaller{outputs: map[string][]byte{
		"listMarketIds": packOutput(t, "listMarketIds", []string{"m1", "m2"}),
	}}

	ids, err := newTestReader(f).ListMarketIDs(context.Background())
	if err != nil {
		t.Fatalf("ListMarketIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "m1" || ids[1] != "m2" {
		t.Errorf("ids = %v, want [m1 m2]", ids)
	}
}

func TestListMarketIDsEmpty(t *testing.T) {
	t.Parallel()

	f := &fakeCaller{outputs: map[string][]byte{
		"listMarketIds": packOutput(t, "listMarketIds", []string{}),
	}}

	ids, err := newTestReader(f).ListMarketIDs(context.Background())
	if err != nil {
		t.Fatalf("ListMarketIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want empty", ids)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	raw := rawSnapshot{
		Exists:          true,
		MarketId:        "btc-100k",
		Question:        "Will Bitcoin close above $100k?",
		Creator:         common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		CloseTime:       big.NewInt(1_900_000_000),
		TotalPool:       big.NewInt(42),
		Status:          1,
		HasWinner:       false,
		OutcomeLabels:   []string{"Yes", "No"},
		YesCounts:       []*big.Int{big.NewInt(3), big.NewInt(0)},
		NoCounts:        []*big.Int{big.NewInt(1), big.NewInt(0)},
		YesShareHandles: [][32]byte{{0xaa}, {0xbb}},
		NoShareHandles:  [][32]byte{{0xcc}, {0xdd}},
	}
	f := &fakeCaller{outputs: map[string][]byte{
		"getMarket": packOutput(t, "getMarket", raw),
	}}

	snap, err := newTestReader(f).Snapshot(context.Background(), "btc-100k")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.MarketID != "btc-100k" || snap.Status != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.OutcomeLabels) != 2 || snap.YesCounts[0].Int64() != 3 {
		t.Errorf("outcome arrays mangled: %+v", snap)
	}
}

func TestSnapshotRevertIsNotFound(t *testing.T) {
	t.Parallel()

	f := &fakeCaller{errs: map[string]error{
		"getMarket": errors.New("execution reverted: market does not exist"),
	}}

	_, err := newTestReader(f).Snapshot(context.Background(), "nope")
	if !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("Snapshot revert = %v, want ErrMarketNotFound", err)
	}
}

func TestSnapshotExistsFalseIsNotFound(t *testing.T) {
	t.Parallel()

	f := &fakeCaller{outputs: map[string][]byte{
		"getMarket": packOutput(t, "getMarket", rawSnapshot{
			Exists:    false,
			CloseTime: big.NewInt(0),
			TotalPool: big.NewInt(0),
		}),
	}}

	_, err := newTestReader(f).Snapshot(context.Background(), "ghost")
	if !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("Snapshot exists=false = %v, want ErrMarketNotFound", err)
	}
}

func TestSnapshotTransportErrorIsNotNotFound(t *testing.T) {
	t.Parallel()

	f := &fakeCaller{errs: map[string]error{
		"getMarket": errors.New("connection refused"),
	}}

	_, err := newTestReader(f).Snapshot(context.Background(), "m1")
	if err == nil || errors.Is(err, ErrMarketNotFound) {
		t.Errorf("transport error = %v, must not be ErrMarketNotFound", err)
	}
}

func TestPositionOfAbsence(t *testing.T) {
	t.Parallel()

	f := &fakeCaller{outputs: map[string][]byte{
		"getPosition": packOutput(t, "getPosition", false, false, false, [32]byte{}),
	}}

	pos, err := newTestReader(f).PositionOf(context.Background(), "m1", 0, common.Address{})
	if err != nil {
		t.Fatalf("PositionOf: %v", err)
	}
	if pos.Exists {
		t.Error("absent position must have Exists=false, not an error")
	}
}

func TestPositionOfExisting(t *testing.T) {
	t.Parallel()

	f := &fakeCaller{outputs: map[string][]byte{
		"getPosition": packOutput(t, "getPosition", true, false, true, [32]byte{0x01}),
	}}

	pos, err := newTestReader(f).PositionOf(context.Background(), "m1", 1, common.Address{})
	if err != nil {
		t.Fatalf("PositionOf: %v", err)
	}
	if !pos.Exists || !pos.IsYes || pos.Claimed {
		t.Errorf("position = %+v", pos)
	}
	wantHandle := common.Hash{0x01}
	if pos.SharesHandle != wantHandle.Hex() {
		t.Errorf("SharesHandle = %q", pos.SharesHandle)
	}
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	f := &fakeCaller{outputs: map[string][]byte{
		"getMarketStatus": packOutput(t, "getMarketStatus", uint8(2)),
	}}

	status, err := newTestReader(f).StatusOf(context.Background(), "m1")
	if err != nil {
		t.Fatalf("StatusOf: %v", err)
	}
	if status != types.StatusSettled {
		t.Errorf("status = %v, want Settled", status)
	}
}

func TestSharePriceCached(t *testing.T) {
	t.Parallel()

	f := &fakeCaller{outputs: map[string][]byte{
		"SHARE_PRICE": packOutput(t, "SHARE_PRICE", big.NewInt(10_000_000_000_000)),
	}}
	r := newTestReader(f)

	for i := 0; i < 3; i++ {
		price, err := r.SharePrice(context.Background())
		if err != nil {
			t.Fatalf("SharePrice: %v", err)
		}
		if price.Int64() != 10_000_000_000_000 {
			t.Errorf("price = %v", price)
		}
	}
	if len(f.calls) != 1 {
		t.Errorf("SHARE_PRICE called %d times, want 1 (cached)", len(f.calls))
	}
}

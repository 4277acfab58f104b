package contract

import (
	"github.com/ethereum/go-ethereum/common"

	"fhemarket/pkg/format"
	"fhemarket/pkg/types"
)

// ToMarket transforms a raw contract snapshot into the client market model.
// Outcome id equals array position; probability defaults to 50 for outcomes
// nobody has touched. Parallel arrays shorter than outcomeLabels (which a
// well-behaved contract never produces) read as zero values rather than
// panicking.
func ToMarket(snap *types.MarketSnapshot) types.Market {
	outcomes := make([]types.Outcome, len(snap.OutcomeLabels))
	for i, label := range snap.OutcomeLabels {
		var yes, no uint64
		if i < len(snap.YesCounts) && snap.YesCounts[i] != nil {
			yes = snap.YesCounts[i].Uint64()
		}
		if i < len(snap.NoCounts) && snap.NoCounts[i] != nil {
			no = snap.NoCounts[i].Uint64()
		}

		var yesHandle, noHandle string
		if i < len(snap.YesShareHandles) {
			yesHandle = common.BytesToHash(snap.YesShareHandles[i][:]).Hex()
		}
		if i < len(snap.NoShareHandles) {
			noHandle = common.BytesToHash(snap.NoShareHandles[i][:]).Hex()
		}

		outcomes[i] = types.Outcome{
			ID:             i,
			Label:          label,
			YesCount:       yes,
			NoCount:        no,
			Probability:    format.Probability(yes, no),
			YesShareHandle: yesHandle,
			NoShareHandle:  noHandle,
		}
	}

	var closeTime int64
	if snap.CloseTime != nil {
		closeTime = snap.CloseTime.Int64()
	}

	return types.Market{
		ID:               snap.MarketID,
		Question:         snap.Question,
		Creator:          snap.Creator,
		CloseTime:        closeTime,
		TotalPool:        snap.TotalPool,
		Status:           types.MarketStatus(snap.Status),
		WinningOutcomeID: snap.WinningOutcomeID,
		HasWinner:        snap.HasWinner,
		Outcomes:         outcomes,
		Category:         Categorize(snap.Question),
	}
}

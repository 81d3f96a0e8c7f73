package bracket

import (
	"fmt"
	"math"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/ethereum/go-ethereum/common"
)

// SplitIndex returns the number of brackets funded with quote token for the
// given current price: round(log_step(currentPrice/lowest)) clamped to
// [0, N]. A bracket straddling the current price may land on either side.
func SplitIndex(ladder *Ladder, currentPrice float64) (int, error) {
	if !(currentPrice > 0) || math.IsInf(currentPrice, 0) {
		return 0, &types.InvalidPriceError{Price: currentPrice}
	}
	n := ladder.Len()
	split := math.Round(math.Log(currentPrice/ladder.Lowest) / math.Log(ladder.Step))
	switch {
	case split < 0:
		return 0, nil
	case split > float64(n):
		return n, nil
	default:
		return int(split), nil
	}
}

// AllocateDeposits funds brackets below the split with an equal share of
// totalQuote and brackets from the split on with an equal share of
// totalBase. Division remainders stay with the master.
func AllocateDeposits(ladder *Ladder, currentPrice float64, quote, base common.Address, totalQuote, totalBase *big.Int) ([]types.Deposit, error) {
	if totalQuote == nil || totalQuote.Sign() < 0 || totalBase == nil || totalBase.Sign() < 0 {
		return nil, fmt.Errorf("investment amounts must be non-negative")
	}
	split, err := SplitIndex(ladder, currentPrice)
	if err != nil {
		return nil, err
	}

	n := ladder.Len()
	deposits := make([]types.Deposit, 0, n)
	if split > 0 {
		share := new(big.Int).Quo(totalQuote, big.NewInt(int64(split)))
		for _, b := range ladder.Brackets[:split] {
			deposits = append(deposits, types.Deposit{
				Amount:         new(big.Int).Set(share),
				TokenAddress:   quote,
				BracketAddress: b.Address,
			})
		}
	}
	if split < n {
		share := new(big.Int).Quo(totalBase, big.NewInt(int64(n-split)))
		for _, b := range ladder.Brackets[split:] {
			deposits = append(deposits, types.Deposit{
				Amount:         new(big.Int).Set(share),
				TokenAddress:   base,
				BracketAddress: b.Address,
			})
		}
	}
	return deposits, nil
}

// Totals sums deposit amounts per token
func Totals(deposits []types.Deposit) map[common.Address]*big.Int {
	totals := make(map[common.Address]*big.Int)
	for _, d := range deposits {
		if totals[d.TokenAddress] == nil {
			totals[d.TokenAddress] = new(big.Int)
		}
		totals[d.TokenAddress].Add(totals[d.TokenAddress], d.Amount)
	}
	return totals
}

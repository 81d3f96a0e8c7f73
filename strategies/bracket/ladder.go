package bracket

import (
	"fmt"
	"math"

	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils"
	bmath "github.com/michaelpento.lv/bracketbot/utils/math"

	"github.com/ethereum/go-ethereum/common"
)

// Ladder is a geometric partition of [Lowest, Highest] into contiguous brackets
type Ladder struct {
	Lowest   float64
	Highest  float64
	Step     float64
	Brackets []types.Bracket
}

// BuildLadder splits [lowest, highest] into count brackets whose bounds grow
// by a constant factor. The upper bound of bracket i is the lower bound of
// bracket i+1.
func BuildLadder(lowest, highest float64, count int) (*Ladder, error) {
	invalid := &types.InvalidRangeError{Lowest: lowest, Highest: highest, Count: count}
	if count < 1 || !(lowest > 0) || !(lowest < highest) || math.IsInf(highest, 0) {
		return nil, invalid
	}

	step := math.Pow(highest/lowest, 1/float64(count))
	if !(step > 1) {
		return nil, invalid
	}

	bounds := make([]float64, count+1)
	for i := range bounds {
		bounds[i] = lowest * math.Pow(step, float64(i))
		if i > 0 && !(bounds[i] > bounds[i-1]) {
			return nil, invalid
		}
	}

	brackets := make([]types.Bracket, count)
	for i := range brackets {
		brackets[i] = types.Bracket{
			Index:      i,
			LowerLimit: bounds[i],
			UpperLimit: bounds[i+1],
		}
	}
	return &Ladder{Lowest: lowest, Highest: highest, Step: step, Brackets: brackets}, nil
}

// Len returns the number of brackets
func (l *Ladder) Len() int {
	return len(l.Brackets)
}

// WithAddresses assigns one Safe per bracket in index order
func (l *Ladder) WithAddresses(addresses []common.Address) (*Ladder, error) {
	if len(addresses) != len(l.Brackets) {
		return nil, fmt.Errorf("ladder has %d brackets but %d addresses were given", len(l.Brackets), len(addresses))
	}
	assigned := *l
	assigned.Brackets = make([]types.Bracket, len(l.Brackets))
	for i, b := range l.Brackets {
		b.Address = addresses[i]
		assigned.Brackets[i] = b
	}
	return &assigned, nil
}

// OrderParams controls the validity window of placed orders
type OrderParams struct {
	ValidFromOffset uint32
	Expiry          uint32
}

// DefaultOrderParams starts orders three batches from now and never lets them expire in practice
func DefaultOrderParams() OrderParams {
	return OrderParams{
		ValidFromOffset: types.DefaultValidFromOffset,
		Expiry:          types.DefaultOrderExpiry,
	}
}

// BuildOrderPairs returns, per bracket, an order selling base above the
// bracket's upper limit and an order buying base below its lower limit.
// Prices are quote per base. Every pair is checked to be profitable on a
// round trip.
func BuildOrderPairs(ladder *Ladder, base, quote types.Token, currentBatch uint32, params OrderParams) ([]types.OrderPair, error) {
	baseID, err := base.ExchangeID()
	if err != nil {
		return nil, err
	}
	quoteID, err := quote.ExchangeID()
	if err != nil {
		return nil, err
	}
	if baseID == quoteID {
		return nil, fmt.Errorf("base and quote token must differ")
	}
	if uint64(currentBatch)+uint64(params.ValidFromOffset) > uint64(params.Expiry) {
		return nil, fmt.Errorf("orders valid from batch %d would already be expired at %d",
			uint64(currentBatch)+uint64(params.ValidFromOffset), params.Expiry)
	}
	validFrom := currentBatch + params.ValidFromOffset

	pairs := make([]types.OrderPair, 0, ladder.Len())
	for _, b := range ladder.Brackets {
		sellBase, buyQuote, err := bmath.UnlimitedOrderAmounts(b.UpperLimit, int(base.Decimals), int(quote.Decimals))
		if err != nil {
			return nil, fmt.Errorf("failed to compute sell order of bracket %d: %w", b.Index, err)
		}
		sellQuote, buyBase, err := bmath.UnlimitedOrderAmounts(1/b.LowerLimit, int(quote.Decimals), int(base.Decimals))
		if err != nil {
			return nil, fmt.Errorf("failed to compute buy order of bracket %d: %w", b.Index, err)
		}

		pair := types.OrderPair{
			Bracket: b,
			Sell: types.Order{
				BuyToken:   quoteID,
				SellToken:  baseID,
				ValidFrom:  validFrom,
				ValidUntil: params.Expiry,
				BuyAmount:  buyQuote,
				SellAmount: sellBase,
			},
			Buy: types.Order{
				BuyToken:   baseID,
				SellToken:  quoteID,
				ValidFrom:  validFrom,
				ValidUntil: params.Expiry,
				BuyAmount:  buyBase,
				SellAmount: sellQuote,
			},
		}
		if err := utils.CheckRoundTrip(pair); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

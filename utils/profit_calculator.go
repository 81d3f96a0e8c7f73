package utils

import (
	"errors"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/types"
)

var ratOne = big.NewRat(1, 1)

// RoundTripProduct returns the amount of token obtained after selling one
// unit through the pair's sell order and buying back through its buy order.
// Decimals cancel out, so the product is dimensionless.
func RoundTripProduct(pair types.OrderPair) (*big.Rat, error) {
	if !positive(pair.Sell.SellAmount) || !positive(pair.Sell.BuyAmount) ||
		!positive(pair.Buy.SellAmount) || !positive(pair.Buy.BuyAmount) {
		return nil, errors.New("order amounts must be positive")
	}
	if pair.Sell.SellToken != pair.Buy.BuyToken || pair.Sell.BuyToken != pair.Buy.SellToken {
		return nil, errors.New("orders do not trade the same token pair in opposite directions")
	}

	sellRate := new(big.Rat).SetFrac(pair.Sell.BuyAmount, pair.Sell.SellAmount)
	buyRate := new(big.Rat).SetFrac(pair.Buy.BuyAmount, pair.Buy.SellAmount)
	return sellRate.Mul(sellRate, buyRate), nil
}

// CheckRoundTrip fails with a ProfitabilityViolation unless trading through
// both orders of a bracket ends with more than it started with.
func CheckRoundTrip(pair types.OrderPair) error {
	product, err := RoundTripProduct(pair)
	if err != nil {
		return &types.ProfitabilityViolation{Bracket: pair.Bracket.Index, Product: err.Error()}
	}
	if product.Cmp(ratOne) <= 0 {
		return &types.ProfitabilityViolation{Bracket: pair.Bracket.Index, Product: product.FloatString(18)}
	}
	return nil
}

func positive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

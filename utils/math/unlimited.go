package math

import (
	gomath "math"
	"math/big"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/shopspring/decimal"
)

// workingPrecision is the number of significant digits a price is carried
// with. 38 digits is the width of a uint128.
const workingPrecision = 38

// UnlimitedOrderAmounts returns the largest (sell, buy) amounts, both at most
// MaxAmount, whose ratio buy/sell matches price. price is the amount of buy
// token paid per sell token in whole tokens; the decimals of both tokens are
// folded into the ratio so the result is expressed in token units.
//
// Floats do not cross this function: the result is integer only. A price so
// far from one that a side rounds to zero is rejected.
func UnlimitedOrderAmounts(price float64, sellDecimals, buyDecimals int) (sell, buy *big.Int, err error) {
	if gomath.IsNaN(price) || gomath.IsInf(price, 0) || price <= 0 {
		return nil, nil, &types.InvalidPriceError{Price: price}
	}
	if err := checkDecimals(sellDecimals); err != nil {
		return nil, nil, err
	}
	if err := checkDecimals(buyDecimals); err != nil {
		return nil, nil, err
	}

	priceFormatted, one := formatPrice(price, sellDecimals, buyDecimals)

	if priceFormatted.Cmp(one) > 0 {
		buy = new(big.Int).Set(MaxAmount)
		sell = new(big.Int).Mul(MaxAmount, one)
		sell.Quo(sell, priceFormatted)
	} else {
		sell = new(big.Int).Set(MaxAmount)
		buy = new(big.Int).Mul(MaxAmount, priceFormatted)
		buy.Quo(buy, one)
	}
	if sell.Sign() == 0 || buy.Sign() == 0 {
		return nil, nil, &types.PrecisionError{
			Input:  decimal.NewFromFloat(price).String(),
			Reason: "price too extreme for the token decimals",
		}
	}
	return sell, buy, nil
}

// formatPrice writes price as the fraction priceFormatted/one of token units,
// with priceFormatted holding workingPrecision significant digits.
func formatPrice(price float64, sellDecimals, buyDecimals int) (priceFormatted, one *big.Int) {
	// shortest decimal that round-trips to the float, i.e. the price the
	// operator actually typed
	d := decimal.NewFromFloat(price)
	coefficient := d.Coefficient()
	exponent := int(d.Exponent())

	if digits := len(coefficient.String()); digits < workingPrecision {
		coefficient.Mul(coefficient, Pow10(workingPrecision-digits))
		exponent -= workingPrecision - digits
	}

	// price * 10^(buyDecimals - sellDecimals) == coefficient * 10^shift
	shift := exponent + buyDecimals - sellDecimals
	if shift >= 0 {
		return coefficient.Mul(coefficient, Pow10(shift)), big.NewInt(1)
	}
	return coefficient, Pow10(-shift)
}

// DecimalAgnosticPrice converts unit amounts back into a whole-token price
// buy/sell as an exact rational.
func DecimalAgnosticPrice(sell, buy *big.Int, sellDecimals, buyDecimals int) *big.Rat {
	num := new(big.Int).Mul(buy, Pow10(sellDecimals))
	den := new(big.Int).Mul(sell, Pow10(buyDecimals))
	if den.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(num, den)
}

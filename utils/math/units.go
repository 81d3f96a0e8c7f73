package math

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/shopspring/decimal"
)

// a run of digits, optionally followed by a dot and another run of digits
var decimalPattern = regexp.MustCompile(`^(\d+)(\.(\d+))?$`)

// ToUnits converts a human readable amount such as "1.5" into token units
// for a token with the given number of decimals. Amounts with more
// fractional digits than the token supports are rejected, never rounded.
func ToUnits(amount string, decimals int) (*big.Int, error) {
	if err := checkDecimals(decimals); err != nil {
		return nil, &types.PrecisionError{Input: amount, Reason: err.Error()}
	}

	match := decimalPattern.FindStringSubmatch(amount)
	if match == nil {
		return nil, &types.ParseError{Input: amount}
	}

	fraction := match[3]
	if len(fraction) > decimals {
		return nil, &types.PrecisionError{Input: amount, Reason: "too many decimals for the token"}
	}
	fraction += strings.Repeat("0", decimals-len(fraction))

	units, ok := new(big.Int).SetString(match[1]+fraction, 10)
	if !ok {
		return nil, &types.ParseError{Input: amount}
	}
	if units.Cmp(MaxUint256) > 0 {
		return nil, &types.PrecisionError{Input: amount, Reason: "value exceeds maximum representable amount"}
	}
	return units, nil
}

// FromUnits renders a token unit amount as a decimal string without
// trailing fractional zeros.
func FromUnits(units *big.Int, decimals int) (string, error) {
	if units == nil || units.Sign() < 0 {
		return "", &types.ParseError{Input: units.String()}
	}
	if err := checkDecimals(decimals); err != nil {
		return "", &types.PrecisionError{Input: units.String(), Reason: err.Error()}
	}
	if units.Cmp(MaxUint256) > 0 {
		return "", &types.PrecisionError{Input: units.String(), Reason: "value exceeds maximum representable amount"}
	}
	if decimals == 0 {
		return units.String(), nil
	}
	return decimal.NewFromBigInt(units, -int32(decimals)).String(), nil
}

// FormatUnits is FromUnits for log fields, falling back to the raw integer
func FormatUnits(units *big.Int, decimals uint8) string {
	s, err := FromUnits(units, int(decimals))
	if err != nil {
		return units.String()
	}
	return s
}

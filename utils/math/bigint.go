package math

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// MaxAmount is the largest order amount the exchange accepts (uint128)
	MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	// MaxUint256 is the largest ERC20 amount
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	ten = big.NewInt(10)
)

// Pow10 returns 10^n for n >= 0
func Pow10(n int) *big.Int {
	if n <= 0 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// Pad32 left-pads x to a 32 byte word
func Pad32(x *big.Int) []byte {
	if x == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(x.Bytes(), 32)
}

// MinBig returns the smaller of x and y
func MinBig(x, y *big.Int) *big.Int {
	if x.Cmp(y) <= 0 {
		return new(big.Int).Set(x)
	}
	return new(big.Int).Set(y)
}

// ParseBig parses a base 10 integer, rejecting negatives
func ParseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative integer %q", s)
	}
	return v, nil
}

func checkDecimals(decimals int) error {
	if decimals < 0 || decimals > 255 {
		return fmt.Errorf("invalid number of decimals for ERC20 token: %d", decimals)
	}
	return nil
}

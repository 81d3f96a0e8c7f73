package math

import (
	"math/big"
	"math/rand"
	"strings"
	"testing"

	"github.com/michaelpento.lv/bracketbot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 18, "1500000000000000000"},
		{"0.000001", 6, "1"},
		{"160", 6, "160000000"},
		{"42", 0, "42"},
		{"0", 255, "0"},
		{"007.10", 3, "7100"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := ToUnits(tt.amount, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestToUnitsErrors(t *testing.T) {
	t.Run("ParseError", func(t *testing.T) {
		for _, input := range []string{"", "abc", "1.", ".5", "-1", "1e18", "1,5", " 1"} {
			_, err := ToUnits(input, 18)
			var parseErr *types.ParseError
			assert.ErrorAs(t, err, &parseErr, "input %q", input)
		}
	})

	t.Run("TooManyDecimals", func(t *testing.T) {
		_, err := ToUnits("1.0000001", 6)
		var precisionErr *types.PrecisionError
		require.ErrorAs(t, err, &precisionErr)
		assert.Contains(t, precisionErr.Reason, "too many decimals")
	})

	t.Run("ExceedsUint256", func(t *testing.T) {
		_, err := ToUnits(MaxUint256.String(), 0)
		require.NoError(t, err)

		tooLarge := new(big.Int).Add(MaxUint256, big.NewInt(1))
		_, err = ToUnits(tooLarge.String(), 0)
		var precisionErr *types.PrecisionError
		require.ErrorAs(t, err, &precisionErr)
		assert.Contains(t, precisionErr.Reason, "maximum representable")
	})

	t.Run("InvalidDecimals", func(t *testing.T) {
		_, err := ToUnits("1", 256)
		var precisionErr *types.PrecisionError
		assert.ErrorAs(t, err, &precisionErr)
		_, err = ToUnits("1", -1)
		assert.ErrorAs(t, err, &precisionErr)
	})
}

func TestFromUnits(t *testing.T) {
	tests := []struct {
		units    string
		decimals int
		want     string
	}{
		{"1000000000000000000", 18, "1"},
		{"1500000000000000000", 18, "1.5"},
		{"1", 18, "0.000000000000000001"},
		{"0", 18, "0"},
		{"42", 0, "42"},
		{"100", 2, "1"},
		{"123456", 3, "123.456"},
	}

	for _, tt := range tests {
		t.Run(tt.units, func(t *testing.T) {
			units, ok := new(big.Int).SetString(tt.units, 10)
			require.True(t, ok)
			got, err := FromUnits(units, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FromUnits(big.NewInt(-1), 18)
	assert.Error(t, err)
	_, err = FromUnits(new(big.Int).Add(MaxUint256, big.NewInt(1)), 18)
	assert.Error(t, err)
}

func TestUnitsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(10),
		new(big.Int).Set(MaxAmount),
		new(big.Int).Set(MaxUint256),
	}
	for i := 0; i < 50; i++ {
		values = append(values, new(big.Int).Rand(rng, MaxUint256))
	}

	for _, decimals := range []int{0, 1, 6, 8, 18, 77, 78, 100, 255} {
		for _, v := range values {
			s, err := FromUnits(v, decimals)
			require.NoError(t, err)
			back, err := ToUnits(s, decimals)
			require.NoError(t, err, "decimals %d, value %s", decimals, v)
			assert.Equal(t, 0, v.Cmp(back), "decimals %d: %s -> %s -> %s", decimals, v, s, back)
		}
	}
}

func TestFromToUnitsNumericEquality(t *testing.T) {
	inputs := []string{"1", "1.10", "0.5", "12.345000", "000.001"}
	for _, in := range inputs {
		units, err := ToUnits(in, 18)
		require.NoError(t, err)
		out, err := FromUnits(units, 18)
		require.NoError(t, err)

		normalized := strings.TrimLeft(in, "0")
		if strings.Contains(normalized, ".") {
			normalized = strings.TrimRight(strings.TrimRight(normalized, "0"), ".")
		}
		if strings.HasPrefix(normalized, ".") || normalized == "" {
			normalized = "0" + normalized
		}
		assert.Equal(t, normalized, out)
	}
}

package math

import (
	"math/big"
	"testing"
)

func TestBigInt(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"TestMaxAmount", testMaxAmount},
		{"TestPow10", testPow10},
		{"TestPad32", testPad32},
		{"TestMinBig", testMinBig},
		{"TestParseBig", testParseBig},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testMaxAmount(t *testing.T) {
	if MaxAmount.BitLen() != 128 {
		t.Errorf("MaxAmount.BitLen() = %d; want 128", MaxAmount.BitLen())
	}
	next := new(big.Int).Add(MaxAmount, big.NewInt(1))
	if next.BitLen() != 129 {
		t.Errorf("MaxAmount + 1 should need 129 bits")
	}
	if MaxUint256.BitLen() != 256 {
		t.Errorf("MaxUint256.BitLen() = %d; want 256", MaxUint256.BitLen())
	}
}

func testPow10(t *testing.T) {
	if Pow10(0).Int64() != 1 {
		t.Errorf("Pow10(0) = %v; want 1", Pow10(0))
	}
	if Pow10(18).String() != "1000000000000000000" {
		t.Errorf("Pow10(18) = %v", Pow10(18))
	}
	if Pow10(-3).Int64() != 1 {
		t.Errorf("Pow10(-3) = %v; want 1", Pow10(-3))
	}
}

func testPad32(t *testing.T) {
	b := Pad32(big.NewInt(258))
	if len(b) != 32 || b[30] != 1 || b[31] != 2 {
		t.Errorf("Pad32(258) = %x", b)
	}
	if len(Pad32(nil)) != 32 {
		t.Errorf("Pad32(nil) should be a zero word")
	}
}

func testMinBig(t *testing.T) {
	x, y := big.NewInt(5), big.NewInt(7)
	m := MinBig(x, y)
	if m.Int64() != 5 {
		t.Errorf("MinBig(5, 7) = %v; want 5", m)
	}
	m.SetInt64(0)
	if x.Int64() != 5 {
		t.Errorf("MinBig must return a copy")
	}
}

func testParseBig(t *testing.T) {
	v, err := ParseBig("123456789012345678901234567890")
	if err != nil || v.String() != "123456789012345678901234567890" {
		t.Errorf("ParseBig = %v, %v", v, err)
	}
	if _, err := ParseBig("-1"); err == nil {
		t.Errorf("ParseBig(-1) should fail")
	}
	if _, err := ParseBig("1.5"); err == nil {
		t.Errorf("ParseBig(1.5) should fail")
	}
}

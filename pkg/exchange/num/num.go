// Package num provides 18-decimal fixed-point ("wad") arithmetic for
// prices and amounts. All prices are quote-per-base rates scaled by 1e18,
// all amounts are asset units scaled by 1e18, matching on-chain token
// precision.
package num

import (
	"math/big"

	"github.com/holiman/uint256"
)

// WadDecimals is the fixed-point scale shared by every price and amount.
const WadDecimals = 18

// Wad is 1.0 in fixed-point form (1e18).
var Wad = uint256.NewInt(1e18)

// Zero returns a fresh zero-valued integer.
func Zero() *uint256.Int {
	return uint256.NewInt(0)
}

// FromUint64 wraps a raw uint64 into a big integer. The value is NOT
// scaled; use MustWadFromString or Scale for human-readable quantities.
func FromUint64(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Scale converts a whole-unit value into wad form (v * 1e18).
func Scale(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), Wad)
}

// MustWadFromString parses a decimal string ("4.55") into wad form.
// Panics on malformed input; intended for constants and tests.
func MustWadFromString(s string) *uint256.Int {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		panic("num: malformed decimal string: " + s)
	}
	r.Mul(r, new(big.Rat).SetInt(Wad.ToBig()))
	if !r.IsInt() {
		panic("num: more than 18 decimal places: " + s)
	}
	v, overflow := uint256.FromBig(r.Num())
	if overflow {
		panic("num: overflow: " + s)
	}
	return v
}

// MulWad computes x * y / 1e18 with truncation, e.g. amount * price.
// Used to convert a base-asset quantity into quote-asset units at a
// given price.
func MulWad(x, y *uint256.Int) *uint256.Int {
	z := new(uint256.Int).Mul(x, y)
	return z.Div(z, Wad)
}

// DivWad computes x * 1e18 / y with truncation, e.g. amount / price.
// Used to convert a quote-asset quantity into base-asset units at a
// given price. y must be non-zero.
func DivWad(x, y *uint256.Int) *uint256.Int {
	z := new(uint256.Int).Mul(x, Wad)
	return z.Div(z, y)
}

// Min returns the smaller of a and b (no copy is made).
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}

// Mid returns (a + b) / 2, the arithmetic mean of two prices.
func Mid(a, b *uint256.Int) *uint256.Int {
	z := new(uint256.Int).Add(a, b)
	return z.Div(z, uint256.NewInt(2))
}

// Delta returns |a - b|, the absolute distance between two prices.
func Delta(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Sub(b, a)
	}
	return new(uint256.Int).Sub(a, b)
}

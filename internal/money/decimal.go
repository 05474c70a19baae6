// Package money implements the fixed-point decimal primitive used for every
// financial field in the system. No float64 ever touches a persisted value;
// float64 is permitted only at the outermost Prometheus/JSON-response edge
// (see ToFloat64).
package money

import (
	"fmt"
	"math/big"
	"strings"
)

// Scale constants mirror the precision table in the data model: prices are
// scale 8, percentages scale 4, ZAR amounts scale 2, trust/confidence scale 4.
const (
	ScalePrice   uint8 = 8
	ScalePercent uint8 = 4
	ScaleZAR     uint8 = 2
	ScaleProb    uint8 = 4
)

var bigTen = big.NewInt(10)

// Decimal is an arbitrary-precision fixed-point number: value == unscaled *
// 10^-scale. The zero value formats as "0" (String, MarshalJSON) but is
// otherwise not meaningful: arithmetic and comparisons on it panic, so
// always construct through Zero, NewFromString, or NewFromInt.
type Decimal struct {
	unscaled *big.Int
	scale    uint8
}

// Zero returns 0 at the given scale.
func Zero(scale uint8) Decimal {
	return Decimal{unscaled: big.NewInt(0), scale: scale}
}

// NewFromInt builds a Decimal from an integer count of the given scale's
// smallest unit (e.g. NewFromInt(150, ScaleZAR) == 1.50).
func NewFromInt(unscaled int64, scale uint8) Decimal {
	return Decimal{unscaled: big.NewInt(unscaled), scale: scale}
}

// NewFromString parses a plain decimal string ("1850000.00", "-3", "0.005")
// at the given scale. Scientific notation, "NaN", "Inf" and any other
// non-plain-decimal token are rejected — callers on the ingest boundary use
// this to enforce AUD-001 (no float tokens in financial fields).
func NewFromString(s string, scale uint8) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("money: empty decimal string")
	}

	neg := false
	rest := s
	switch rest[0] {
	case '+':
		rest = rest[1:]
	case '-':
		neg = true
		rest = rest[1:]
	}
	if rest == "" {
		return Decimal{}, fmt.Errorf("money: invalid decimal %q", s)
	}

	intPart, fracPart, hasFrac := strings.Cut(rest, ".")
	if strings.ContainsAny(intPart, "eE") || strings.ContainsAny(fracPart, "eE") {
		return Decimal{}, fmt.Errorf("money: scientific notation not allowed: %q", s)
	}
	if intPart == "" || !isDigits(intPart) {
		return Decimal{}, fmt.Errorf("money: invalid decimal %q", s)
	}
	if hasFrac && !isDigits(fracPart) {
		return Decimal{}, fmt.Errorf("money: invalid decimal %q", s)
	}
	if len(fracPart) > int(scale) {
		return Decimal{}, fmt.Errorf("money: %q has more than %d fractional digits", s, scale)
	}

	digits := intPart + fracPart + strings.Repeat("0", int(scale)-len(fracPart))
	unscaled, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("money: invalid decimal %q", s)
	}
	if neg {
		unscaled.Neg(unscaled)
	}
	return Decimal{unscaled: unscaled, scale: scale}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MustFromString is NewFromString for constants known to be valid at init
// time; it panics on error.
func MustFromString(s string, scale uint8) Decimal {
	d, err := NewFromString(s, scale)
	if err != nil {
		panic(err)
	}
	return d
}

// Scale reports the number of fractional digits.
func (d Decimal) Scale() uint8 { return d.scale }

// Sign returns -1, 0, or 1.
func (d Decimal) Sign() int { return d.unscaled.Sign() }

// IsZero reports whether the value is exactly zero.
func (d Decimal) IsZero() bool { return d.unscaled.Sign() == 0 }

// IsPositive reports whether the value is strictly greater than zero.
func (d Decimal) IsPositive() bool { return d.unscaled.Sign() > 0 }

// IsNegative reports whether the value is strictly less than zero.
func (d Decimal) IsNegative() bool { return d.unscaled.Sign() < 0 }

// Abs returns the absolute value.
func (d Decimal) Abs() Decimal {
	return Decimal{unscaled: new(big.Int).Abs(d.unscaled), scale: d.scale}
}

// Neg returns the negation.
func (d Decimal) Neg() Decimal {
	return Decimal{unscaled: new(big.Int).Neg(d.unscaled), scale: d.scale}
}

// rescaleUnscaled returns d's unscaled value expressed at targetScale,
// truncating (no rounding) when targetScale < d.scale. Both inputs must
// already be comparable; this is an internal helper for binary ops.
func rescaleUnscaled(u *big.Int, from, to uint8) *big.Int {
	if from == to {
		return new(big.Int).Set(u)
	}
	if to > from {
		factor := new(big.Int).Exp(bigTen, big.NewInt(int64(to-from)), nil)
		return new(big.Int).Mul(u, factor)
	}
	factor := new(big.Int).Exp(bigTen, big.NewInt(int64(from-to)), nil)
	return new(big.Int).Quo(u, factor)
}

// commonScale returns the larger of the two scales.
func commonScale(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// Add returns a+b rounded to the larger of the two scales.
func (d Decimal) Add(o Decimal) Decimal {
	scale := commonScale(d.scale, o.scale)
	a := rescaleUnscaled(d.unscaled, d.scale, scale)
	b := rescaleUnscaled(o.unscaled, o.scale, scale)
	return Decimal{unscaled: a.Add(a, b), scale: scale}
}

// Sub returns a-b rounded to the larger of the two scales.
func (d Decimal) Sub(o Decimal) Decimal {
	scale := commonScale(d.scale, o.scale)
	a := rescaleUnscaled(d.unscaled, d.scale, scale)
	b := rescaleUnscaled(o.unscaled, o.scale, scale)
	return Decimal{unscaled: a.Sub(a, b), scale: scale}
}

// Mul multiplies d by o and rounds the exact product to resultScale using
// banker's rounding (round-half-to-even), the only rounding mode this
// system uses for financial math.
func (d Decimal) Mul(o Decimal, resultScale uint8) Decimal {
	product := new(big.Int).Mul(d.unscaled, o.unscaled)
	productScale := d.scale + o.scale
	return roundTo(product, productScale, resultScale)
}

// Div divides d by o and rounds the quotient to resultScale using banker's
// rounding. Div panics if o is zero; callers on a financial path must check
// IsZero first and return a typed error instead.
func (d Decimal) Div(o Decimal, resultScale uint8) Decimal {
	if o.IsZero() {
		panic("money: division by zero")
	}
	// Scale up the numerator so integer division retains resultScale+guard
	// digits of precision, then round.
	const guardDigits = 12
	num := rescaleUnscaled(d.unscaled, d.scale, resultScale+uint8(guardDigits)+o.scale)
	quo := new(big.Int).Quo(num, o.unscaled)
	return roundTo(quo, resultScale+uint8(guardDigits), resultScale)
}

// DivFloor divides d by o and floors (truncates toward negative infinity)
// the quotient to resultScale. Used by the risk governor to round lot sizes
// DOWN per the spec — banker's rounding must never be applied there.
func (d Decimal) DivFloor(o Decimal, resultScale uint8) Decimal {
	if o.IsZero() {
		panic("money: division by zero")
	}
	num := new(big.Int).Mul(d.unscaled, new(big.Int).Exp(bigTen, big.NewInt(int64(resultScale)+int64(o.scale)), nil))
	den := new(big.Int).Mul(o.unscaled, new(big.Int).Exp(bigTen, big.NewInt(int64(d.scale)), nil))
	if den.Sign() < 0 {
		num.Neg(num)
		den.Neg(den)
	}
	return Decimal{unscaled: new(big.Int).Div(num, den), scale: resultScale}
}

// Rescale converts d to a new scale using banker's rounding when shrinking
// precision, or exact zero-padding when growing it.
func (d Decimal) Rescale(newScale uint8) Decimal {
	return roundTo(d.unscaled, d.scale, newScale)
}

// roundTo rounds an unscaled integer known to be at `from` scale down to
// `to` scale using round-half-to-even. from >= to is the common case; if
// to > from the value is exact and simply zero-padded.
func roundTo(u *big.Int, from, to uint8) Decimal {
	if to >= from {
		return Decimal{unscaled: rescaleUnscaled(u, from, to), scale: to}
	}

	dropDigits := from - to
	divisor := new(big.Int).Exp(bigTen, big.NewInt(int64(dropDigits)), nil)

	quo, rem := new(big.Int).QuoRem(u, divisor, new(big.Int))
	if rem.Sign() == 0 {
		return Decimal{unscaled: quo, scale: to}
	}

	twiceRem := new(big.Int).Mul(rem.Abs(rem), big.NewInt(2))
	cmp := twiceRem.Cmp(divisor)

	roundUp := false
	switch {
	case cmp > 0:
		roundUp = true
	case cmp == 0:
		// Exactly halfway: round to even.
		roundUp = quo.Bit(0) == 1
	}

	if roundUp {
		if u.Sign() < 0 {
			quo.Sub(quo, big.NewInt(1))
		} else {
			quo.Add(quo, big.NewInt(1))
		}
	}
	return Decimal{unscaled: quo, scale: to}
}

// Cmp compares d and o after aligning scales: -1, 0, 1.
func (d Decimal) Cmp(o Decimal) int {
	scale := commonScale(d.scale, o.scale)
	a := rescaleUnscaled(d.unscaled, d.scale, scale)
	b := rescaleUnscaled(o.unscaled, o.scale, scale)
	return a.Cmp(b)
}

// GreaterThan reports d > o.
func (d Decimal) GreaterThan(o Decimal) bool { return d.Cmp(o) > 0 }

// GreaterOrEqual reports d >= o.
func (d Decimal) GreaterOrEqual(o Decimal) bool { return d.Cmp(o) >= 0 }

// LessThan reports d < o.
func (d Decimal) LessThan(o Decimal) bool { return d.Cmp(o) < 0 }

// LessOrEqual reports d <= o.
func (d Decimal) LessOrEqual(o Decimal) bool { return d.Cmp(o) <= 0 }

// Min returns the smaller of d and o, at the larger of their two scales.
func Min(a, b Decimal) Decimal {
	if a.Cmp(b) <= 0 {
		return a.Rescale(commonScale(a.scale, b.scale))
	}
	return b.Rescale(commonScale(a.scale, b.scale))
}

// String renders the canonical decimal form: a sign only when negative, no
// exponents, and exactly Scale() fractional digits. This is the form used
// both for JSON and for row hashing, so it must be stable across languages.
func (d Decimal) String() string {
	if d.unscaled == nil {
		return Zero(d.scale).String()
	}
	neg := d.unscaled.Sign() < 0
	digits := new(big.Int).Abs(d.unscaled).String()

	if d.scale == 0 {
		if neg {
			return "-" + digits
		}
		return digits
	}

	for len(digits) <= int(d.scale) {
		digits = "0" + digits
	}
	intPart := digits[:len(digits)-int(d.scale)]
	fracPart := digits[len(digits)-int(d.scale):]

	out := intPart + "." + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// ToFloat64 converts to float64. Callers may use this ONLY at the
// Prometheus/JSON-response boundary — never inside a financial calculation.
func (d Decimal) ToFloat64() float64 {
	f, _ := new(big.Float).SetString(d.String())
	v, _ := f.Float64()
	return v
}

// MarshalJSON renders the Decimal as a canonical quoted decimal string so
// that JSON-encoded financial fields are never floats on the wire.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON requires a quoted decimal string; this method preserves the
// Decimal's existing Scale as the parse scale. A bare JSON number (the
// float-token case forbidden by AUD-001) fails here with a clear error.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("money: financial field must be a quoted decimal string, got %s", s)
	}
	scale := d.scale
	parsed, err := NewFromString(s[1:len(s)-1], scale)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

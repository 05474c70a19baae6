package money

import "fmt"

// Price, Percent, ZAR and Prob are scale-pinned Decimal wrappers used as
// struct fields so that JSON (de)serialization always knows the correct
// precision without relying on a zero-value Decimal's scale.

// Price is a scale-8 fixed-point quantity (entry/stop/fill prices).
type Price struct{ Decimal }

// Percent is a scale-4 fixed-point quantity (slippage, daily loss, ATR%).
type Percent struct{ Decimal }

// ZAR is a scale-2 fixed-point quantity (risk amounts, equity, P&L).
type ZAR struct{ Decimal }

// Prob is a scale-4 fixed-point quantity in [0,1] (trust/confidence).
type Prob struct{ Decimal }

// NewPrice parses s at ScalePrice.
func NewPrice(s string) (Price, error) {
	d, err := NewFromString(s, ScalePrice)
	return Price{d}, err
}

// NewPercent parses s at ScalePercent.
func NewPercent(s string) (Percent, error) {
	d, err := NewFromString(s, ScalePercent)
	return Percent{d}, err
}

// NewZAR parses s at ScaleZAR.
func NewZAR(s string) (ZAR, error) {
	d, err := NewFromString(s, ScaleZAR)
	return ZAR{d}, err
}

// NewProb parses s at ScaleProb, rejecting values outside [0,1].
func NewProb(s string) (Prob, error) {
	d, err := NewFromString(s, ScaleProb)
	if err != nil {
		return Prob{}, err
	}
	if d.IsNegative() || d.GreaterThan(NewFromInt(10000, ScaleProb)) {
		return Prob{}, fmt.Errorf("money: probability %s out of [0,1]", s)
	}
	return Prob{d}, nil
}

// ZeroPrice, ZeroPercent, ZeroZAR, ZeroProb are the additive identities at
// their respective scales.
func ZeroPrice() Price     { return Price{Zero(ScalePrice)} }
func ZeroPercent() Percent { return Percent{Zero(ScalePercent)} }
func ZeroZAR() ZAR         { return ZAR{Zero(ScaleZAR)} }
func ZeroProb() Prob       { return Prob{Zero(ScaleProb)} }

func (p Price) MarshalJSON() ([]byte, error)   { return p.Decimal.MarshalJSON() }
func (p Percent) MarshalJSON() ([]byte, error) { return p.Decimal.MarshalJSON() }
func (p ZAR) MarshalJSON() ([]byte, error)     { return p.Decimal.MarshalJSON() }
func (p Prob) MarshalJSON() ([]byte, error)    { return p.Decimal.MarshalJSON() }

func (p *Price) UnmarshalJSON(data []byte) error {
	d, err := unmarshalScaled(data, ScalePrice)
	if err != nil {
		return err
	}
	*p = Price{d}
	return nil
}

func (p *Percent) UnmarshalJSON(data []byte) error {
	d, err := unmarshalScaled(data, ScalePercent)
	if err != nil {
		return err
	}
	*p = Percent{d}
	return nil
}

func (p *ZAR) UnmarshalJSON(data []byte) error {
	d, err := unmarshalScaled(data, ScaleZAR)
	if err != nil {
		return err
	}
	*p = ZAR{d}
	return nil
}

func (p *Prob) UnmarshalJSON(data []byte) error {
	d, err := unmarshalScaled(data, ScaleProb)
	if err != nil {
		return err
	}
	*p = Prob{d}
	return nil
}

func unmarshalScaled(data []byte, scale uint8) (Decimal, error) {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return Decimal{}, fmt.Errorf("%w: %s", ErrFloatToken, s)
	}
	return NewFromString(s[1:len(s)-1], scale)
}

// ErrFloatToken is returned when a financial field arrives as a bare JSON
// number or any other non-string token. Ingress treats this as AUD-001.
var ErrFloatToken = fmt.Errorf("money: financial field must be a quoted decimal string")

package money

import "testing"

func TestNewFromStringRejectsFloatArtifacts(t *testing.T) {
	cases := []string{"1e10", "1E10", "NaN", "Inf", "", "1.2.3", "abc", "1.000000000"}
	for _, c := range cases {
		if _, err := NewFromString(c, ScalePrice); err == nil {
			t.Errorf("NewFromString(%q) expected error, got none", c)
		}
	}
}

func TestNewFromStringRoundTrip(t *testing.T) {
	d := MustFromString("1850000.00", ScalePrice)
	if got := d.String(); got != "1850000.00000000" {
		t.Errorf("String() = %s, want 1850000.00000000", got)
	}
}

func TestBankersRounding(t *testing.T) {
	cases := []struct {
		in   string
		to   uint8
		want string
	}{
		{"0.125", 2, "0.12"}, // halfway, rounds to even (2)
		{"0.135", 2, "0.14"}, // halfway, rounds to even (4)
		{"0.1251", 2, "0.13"},
		{"-0.125", 2, "-0.12"},
	}
	for _, c := range cases {
		d := MustFromString(c.in, 4)
		got := d.Rescale(c.to).String()
		if got != c.want {
			t.Errorf("Rescale(%s -> %d) = %s, want %s", c.in, c.to, got, c.want)
		}
	}
}

func TestDivFloor(t *testing.T) {
	riskZAR := MustFromString("1000.00", ScaleZAR)
	distance := MustFromString("20000.00000000", ScalePrice)
	qty := riskZAR.DivFloor(distance, ScalePrice)
	if got := qty.String(); got != "0.05000000" {
		t.Errorf("DivFloor = %s, want 0.05000000", got)
	}
}

func TestCmpAcrossScales(t *testing.T) {
	a := MustFromString("1.50", ScaleZAR)
	b := MustFromString("1.5000", ScalePercent)
	if a.Cmp(b) != 0 {
		t.Errorf("expected equal across scales")
	}
}

func TestMinPreservesLargerScale(t *testing.T) {
	a := MustFromString("1.5", 2)
	b := MustFromString("1.50000", 5)
	m := Min(a, b)
	if m.Scale() != 5 {
		t.Errorf("Min scale = %d, want 5", m.Scale())
	}
}

func TestRowHashStableAcrossMapOrder(t *testing.T) {
	f1 := map[string]interface{}{"b": "2", "a": "1", "price": MustFromString("1.00", ScalePrice)}
	f2 := map[string]interface{}{"price": MustFromString("1.00", ScalePrice), "a": "1", "b": "2"}
	h1, err := RowHash(f1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := RowHash(f2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("row hash not stable across map insertion order: %s != %s", h1, h2)
	}
}

func TestVerifyHMACRejectsBitFlip(t *testing.T) {
	secret := []byte("s3cr3t")
	body := []byte(`{"symbol":"BTCZAR"}`)
	sig := SignHMAC(body, secret)
	if !VerifyHMAC(body, sig, secret) {
		t.Fatal("expected valid signature to verify")
	}

	flipped := append([]byte(nil), body...)
	flipped[0] ^= 0x01
	if VerifyHMAC(flipped, sig, secret) {
		t.Fatal("expected bit-flipped body to fail verification")
	}
}

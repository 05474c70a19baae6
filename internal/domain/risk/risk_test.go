package risk

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/apperr"
	"github.com/sawpanic/sentinel/internal/money"
)

func TestEvaluateWorkedExample(t *testing.T) {
	// Spec S1: equity=100000, entry=1850000, stop=1830000 -> risk_zar=1000,
	// distance=20000, qty = 0.05.
	g := New(money.ZAR{Decimal: money.MustFromString("50000.00", money.ScaleZAR)}, money.MustFromString("0.00000001", money.ScalePrice))
	equity := money.ZAR{Decimal: money.MustFromString("100000.00", money.ScaleZAR)}
	entry := money.Price{Decimal: money.MustFromString("1850000.00000000", money.ScalePrice)}
	stop := money.Price{Decimal: money.MustFromString("1830000.00000000", money.ScalePrice)}

	permit, err := g.Evaluate(uuid.New(), time.Now(), equity, entry, stop, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := permit.ApprovedQty.String(); got != "0.05000000" {
		t.Errorf("qty = %s, want 0.05000000", got)
	}
	if permit.TimeoutSeconds != DefaultTimeoutSeconds {
		t.Errorf("timeout = %d", permit.TimeoutSeconds)
	}
}

func TestEvaluateRejectsZeroQty(t *testing.T) {
	g := New(money.ZAR{Decimal: money.MustFromString("50000.00", money.ScaleZAR)}, money.MustFromString("1.00000000", money.ScalePrice))
	equity := money.ZAR{Decimal: money.MustFromString("1.00", money.ScaleZAR)}
	entry := money.Price{Decimal: money.MustFromString("1850000.00000000", money.ScalePrice)}
	stop := money.Price{Decimal: money.MustFromString("1830000.00000000", money.ScalePrice)}

	_, err := g.Evaluate(uuid.New(), time.Now(), equity, entry, stop, nil)
	if code, ok := apperr.CodeOf(err); !ok || code != apperr.CodeRiskZeroQty {
		t.Fatalf("expected RISK-001, got %v", err)
	}
}

func TestEvaluateRejectsDegenerateStop(t *testing.T) {
	g := New(money.ZAR{Decimal: money.MustFromString("50000.00", money.ScaleZAR)}, money.MustFromString("0.00000001", money.ScalePrice))
	equity := money.ZAR{Decimal: money.MustFromString("100000.00", money.ScaleZAR)}
	entry := money.Price{Decimal: money.MustFromString("1850000.00000000", money.ScalePrice)}
	stop := money.Price{Decimal: money.MustFromString("1850000.00000000", money.ScalePrice)}

	_, err := g.Evaluate(uuid.New(), time.Now(), equity, entry, stop, nil)
	if err == nil {
		t.Fatal("expected rejection for zero stop distance")
	}
}

func TestEvaluateCapsRiskAtMaxRiskZAR(t *testing.T) {
	// equity*1% would be 1000, but MAX_RISK_ZAR=10 caps sizing down rather
	// than refusing the trade outright.
	g := New(money.ZAR{Decimal: money.MustFromString("10.00", money.ScaleZAR)}, money.MustFromString("0.00000001", money.ScalePrice))
	equity := money.ZAR{Decimal: money.MustFromString("100000.00", money.ScaleZAR)}
	entry := money.Price{Decimal: money.MustFromString("1850000.00000000", money.ScalePrice)}
	stop := money.Price{Decimal: money.MustFromString("1830000.00000000", money.ScalePrice)}

	permit, err := g.Evaluate(uuid.New(), time.Now(), equity, entry, stop, nil)
	if err != nil {
		t.Fatal(err)
	}
	if permit.PlannedRiskZAR.String() != "10.00" {
		t.Errorf("planned risk = %s, want capped at 10.00", permit.PlannedRiskZAR.String())
	}
}

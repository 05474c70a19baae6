package signal

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/apperr"
	"github.com/sawpanic/sentinel/internal/money"
)

type fakeRepo struct {
	byKey map[string]uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byKey: make(map[string]uuid.UUID)}
}

func (f *fakeRepo) Insert(_ context.Context, sig Signal) (uuid.UUID, bool, error) {
	key := sig.Source + "|" + sig.ExternalID
	if existing, ok := f.byKey[key]; ok {
		return existing, false, nil
	}
	f.byKey[key] = sig.CorrelationID
	return sig.CorrelationID, true, nil
}

var testSecret = []byte("test-secret")

func signedBody(body string) (string, []byte) {
	raw := []byte(body)
	return money.SignHMAC(raw, testSecret), raw
}

func TestAcceptInsertsSignal(t *testing.T) {
	g := NewGateway("tradingview", testSecret, newFakeRepo())
	sig, raw := signedBody(`{"symbol":"XAUUSD","side":"BUY","price":"1850000.00","external_id":"evt-1"}`)

	result, err := g.Accept(context.Background(), raw, sig)
	if err != nil {
		t.Fatal(err)
	}
	if result.Duplicate {
		t.Error("first delivery should not be duplicate")
	}
	if result.Signal.Symbol != "XAUUSD" || result.Signal.Side != Buy {
		t.Errorf("unexpected signal: %+v", result.Signal)
	}
	if result.Signal.Price.String() != "1850000.00000000" {
		t.Errorf("price = %s", result.Signal.Price.String())
	}
}

func TestAcceptRejectsBadSignature(t *testing.T) {
	g := NewGateway("tradingview", testSecret, newFakeRepo())
	raw := []byte(`{"symbol":"XAUUSD","side":"BUY","price":"1850000.00","external_id":"evt-1"}`)

	_, err := g.Accept(context.Background(), raw, "deadbeef")
	if code, ok := apperr.CodeOf(err); !ok || code != apperr.CodeBadSignature {
		t.Fatalf("expected SEC-001, got %v", err)
	}
}

func TestAcceptRejectsFloatToken(t *testing.T) {
	g := NewGateway("tradingview", testSecret, newFakeRepo())
	sig, raw := signedBody(`{"symbol":"XAUUSD","side":"BUY","price":1850000.5,"external_id":"evt-1"}`)

	_, err := g.Accept(context.Background(), raw, sig)
	if code, ok := apperr.CodeOf(err); !ok || code != apperr.CodeFloatToken {
		t.Fatalf("expected AUD-001, got %v", err)
	}
}

func TestAcceptIsIdempotentOnExternalID(t *testing.T) {
	repo := newFakeRepo()
	g := NewGateway("tradingview", testSecret, repo)
	body := `{"symbol":"XAUUSD","side":"SELL","price":"1850000.00","external_id":"evt-dup"}`

	sig1, raw1 := signedBody(body)
	first, err := g.Accept(context.Background(), raw1, sig1)
	if err != nil {
		t.Fatal(err)
	}

	sig2, raw2 := signedBody(body)
	second, err := g.Accept(context.Background(), raw2, sig2)
	if err != nil {
		t.Fatal(err)
	}

	if !second.Duplicate {
		t.Error("second delivery of the same external_id should be marked duplicate")
	}
	if second.CorrelationID != first.CorrelationID {
		t.Error("duplicate delivery should resolve to the original correlation id")
	}
}

func TestAcceptRejectsInvalidSide(t *testing.T) {
	g := NewGateway("tradingview", testSecret, newFakeRepo())
	sig, raw := signedBody(`{"symbol":"XAUUSD","side":"HOLD","price":"1850000.00","external_id":"evt-1"}`)

	if _, err := g.Accept(context.Background(), raw, sig); err == nil {
		t.Fatal("expected rejection for invalid side")
	}
}

func TestAcceptAcceptsIntegerPrice(t *testing.T) {
	g := NewGateway("tradingview", testSecret, newFakeRepo())
	sig, raw := signedBody(`{"symbol":"XAUUSD","side":"BUY","price":1850000,"external_id":"evt-int"}`)

	result, err := g.Accept(context.Background(), raw, sig)
	if err != nil {
		t.Fatal(err)
	}
	if result.Signal.Price.String() != "1850000.00000000" {
		t.Errorf("price = %s", result.Signal.Price.String())
	}
}

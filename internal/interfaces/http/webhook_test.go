package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/sawpanic/sentinel/internal/domain/signal"
	"github.com/sawpanic/sentinel/internal/money"
)

type fakeSignalRepo struct{}

func (fakeSignalRepo) Insert(_ context.Context, sig signal.Signal) (uuid.UUID, bool, error) {
	return sig.CorrelationID, true, nil
}

const testSecret = "test-secret"

func postSigned(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	sig := money.SignHMAC([]byte(body), []byte(testSecret))
	req := httptest.NewRequest(http.MethodPost, "/webhook/signal", strings.NewReader(body))
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandlerAcceptsValidSignal(t *testing.T) {
	gw := signal.NewGateway("tradingview", []byte(testSecret), fakeSignalRepo{})
	h := NewWebhookHandler(gw, 8, 100, 100)

	rec := postSigned(t, h, `{"symbol":"XAUUSD","side":"BUY","price":"1850000.00","external_id":"evt-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	select {
	case accepted := <-h.Queue():
		if accepted.Result.Signal.Symbol != "XAUUSD" {
			t.Errorf("unexpected queued signal: %+v", accepted.Result.Signal)
		}
	default:
		t.Fatal("expected an accepted signal on the queue")
	}
}

func TestWebhookHandlerRejectsBadSignature(t *testing.T) {
	gw := signal.NewGateway("tradingview", []byte(testSecret), fakeSignalRepo{})
	h := NewWebhookHandler(gw, 8, 100, 100)

	req := httptest.NewRequest(http.MethodPost, "/webhook/signal", strings.NewReader(`{}`))
	req.Header.Set("X-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookHandlerReturns503WhenQueueFull(t *testing.T) {
	gw := signal.NewGateway("tradingview", []byte(testSecret), fakeSignalRepo{})
	h := NewWebhookHandler(gw, 1, 100, 100)

	body := `{"symbol":"XAUUSD","side":"BUY","price":"1850000.00","external_id":"evt-%d"}`
	if rec := postSigned(t, h, strings.Replace(body, "%d", "1", 1)); rec.Code != http.StatusOK {
		t.Fatalf("first send status = %d", rec.Code)
	}
	// Queue depth 1, nothing has drained it: the second send must see a full
	// backlog and fail fast with 503 rather than block.
	rec := postSigned(t, h, strings.Replace(body, "%d", "2", 1))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestWebhookHandlerReturns503WhenRateLimited(t *testing.T) {
	gw := signal.NewGateway("tradingview", []byte(testSecret), fakeSignalRepo{})
	h := NewWebhookHandler(gw, 8, 0, 0)

	rec := postSigned(t, h, `{"symbol":"XAUUSD","side":"BUY","price":"1850000.00","external_id":"evt-1"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 under a zero-burst limiter", rec.Code)
	}
}

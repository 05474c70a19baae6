package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/sawpanic/sentinel/internal/domain/guardian"
	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/money"
)

type fakeHITLRepo struct {
	rows map[string]hitl.ApprovalRequest
}

func newFakeHITLRepo() *fakeHITLRepo {
	return &fakeHITLRepo{rows: map[string]hitl.ApprovalRequest{}}
}

func (f *fakeHITLRepo) Insert(_ context.Context, req hitl.ApprovalRequest) error {
	f.rows[req.TradeID] = req
	return nil
}

func (f *fakeHITLRepo) Get(_ context.Context, tradeID string) (*hitl.ApprovalRequest, error) {
	r, ok := f.rows[tradeID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeHITLRepo) CompareAndSwapStatus(_ context.Context, tradeID string, expected hitl.Status, updated hitl.ApprovalRequest) (bool, error) {
	cur, ok := f.rows[tradeID]
	if !ok || cur.Status != expected {
		return false, nil
	}
	f.rows[tradeID] = updated
	return true, nil
}

func (f *fakeHITLRepo) ListNonTerminal(_ context.Context) ([]hitl.ApprovalRequest, error) {
	var out []hitl.ApprovalRequest
	for _, r := range f.rows {
		if r.Status != hitl.StatusRejected && r.Status != hitl.StatusSettled {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeHITLFeed struct{ snap hitl.PriceSnapshot }

func (f fakeHITLFeed) Snapshot(_ context.Context, _ string) (hitl.PriceSnapshot, error) {
	return f.snap, nil
}

type noopGuardianRepo struct{ lock *guardian.Lock }

func (n *noopGuardianRepo) Save(_ context.Context, l guardian.Lock) error  { n.lock = &l; return nil }
func (n *noopGuardianRepo) Load(_ context.Context) (*guardian.Lock, error) { return n.lock, nil }
func (n *noopGuardianRepo) Clear(_ context.Context) error                  { n.lock = nil; return nil }

const testBearerToken = "ops-secret"

func newTestHITLHandler() (*HITLHandler, *fakeHITLRepo) {
	repo := newFakeHITLRepo()
	g := guardian.New(&noopGuardianRepo{}, guardian.DefaultDailyLossLimit)
	cfg := hitl.Config{
		Enabled:            true,
		TTLSeconds:         300,
		SlippageMaxPercent: money.Percent{Decimal: hitl.DefaultSlippageMaxPercent},
		AllowedOperators:   map[string]bool{"op-a": true},
	}
	gw := hitl.New(repo, fakeHITLFeed{}, g, nil, nil, cfg)
	return NewHITLHandler(gw, testBearerToken), repo
}

func authedRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testBearerToken)
	return req
}

func TestHITLHandlerPendingRequiresBearerToken(t *testing.T) {
	h, _ := newTestHITLHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/hitl/pending", nil)
	rec := httptest.NewRecorder()
	h.Pending(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHITLHandlerPendingListsAwaitingApproval(t *testing.T) {
	h, _ := newTestHITLHandler()
	tradeID := createPending(t, h, "XAUUSD", "BUY")

	rec := httptest.NewRecorder()
	h.Pending(rec, authedRequest(http.MethodGet, "/api/hitl/pending", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), tradeID) {
		t.Errorf("expected pending trade %s in response, got %s", tradeID, rec.Body.String())
	}
}

// createPending opens a real approval request through the gateway (rather
// than poking the fake repo directly) so RowHash is computed the same way
// Decide will re-verify it.
func createPending(t *testing.T, h *HITLHandler, symbol, side string) string {
	t.Helper()
	result, err := h.gateway.Create(context.Background(), symbol, side,
		money.MustFromString("0.5", 8),
		money.Price{Decimal: money.MustFromString("1000000.00", money.ScalePrice)})
	if err != nil {
		t.Fatal(err)
	}
	return result.Request.TradeID
}

func TestHITLHandlerApproveSucceeds(t *testing.T) {
	h, _ := newTestHITLHandler()
	tradeID := createPending(t, h, "XAUUSD", "BUY")

	body := `{"operator_id":"op-a","current_price":"1000010.00"}`
	httpReq := authedRequest(http.MethodPost, "/api/hitl/"+tradeID+"/approve", body)
	httpReq = mux.SetURLVars(httpReq, map[string]string{"trade_id": tradeID})
	rec := httptest.NewRecorder()
	h.Approve(rec, httpReq)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHITLHandlerApproveRejectsUnknownOperator(t *testing.T) {
	h, _ := newTestHITLHandler()
	tradeID := createPending(t, h, "XAUUSD", "BUY")

	body := `{"operator_id":"not-allowed","current_price":"1000010.00"}`
	httpReq := authedRequest(http.MethodPost, "/api/hitl/"+tradeID+"/approve", body)
	httpReq = mux.SetURLVars(httpReq, map[string]string{"trade_id": tradeID})
	rec := httptest.NewRecorder()
	h.Approve(rec, httpReq)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHITLHandlerApproveRejectsExcessiveSlippage(t *testing.T) {
	h, _ := newTestHITLHandler()
	tradeID := createPending(t, h, "XAUUSD", "BUY")

	// Request price was 1000000.00; 2000000.00 is a 100% deviation, well
	// past the default 0.50% slippage ceiling.
	body := `{"operator_id":"op-a","current_price":"2000000.00"}`
	httpReq := authedRequest(http.MethodPost, "/api/hitl/"+tradeID+"/approve", body)
	httpReq = mux.SetURLVars(httpReq, map[string]string{"trade_id": tradeID})
	rec := httptest.NewRecorder()
	h.Approve(rec, httpReq)

	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412", rec.Code)
	}
}

func TestHITLHandlerRejectSucceeds(t *testing.T) {
	h, _ := newTestHITLHandler()
	tradeID := createPending(t, h, "XAUUSD", "SELL")

	body := `{"operator_id":"op-a","reason":"bad fill"}`
	httpReq := authedRequest(http.MethodPost, "/api/hitl/"+tradeID+"/reject", body)
	httpReq = mux.SetURLVars(httpReq, map[string]string{"trade_id": tradeID})
	rec := httptest.NewRecorder()
	h.Reject(rec, httpReq)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

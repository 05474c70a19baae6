// Package marketdata implements hitl.PriceFeed against the configured
// exchange's REST ticker endpoint, wrapped in the teacher's circuit
// breaker (internal/net/circuit) so a flaky exchange degrades HITL
// slippage checks gracefully instead of hanging the approval gateway.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/money"
	"github.com/sawpanic/sentinel/internal/net/circuit"
)

// RESTFeed fetches a best-bid/best-ask snapshot from baseURL + "/ticker/<symbol>".
// The exact wire shape is exchange-specific; callers in MOCK_MODE should
// use MockFeed instead.
type RESTFeed struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker
}

// NewRESTFeed builds a feed guarded by a circuit breaker that opens after
// 5 consecutive failures and probes again after 60s, matching the
// breaker tuning orders.WrapWithBreaker uses for order placement.
func NewRESTFeed(baseURL string) *RESTFeed {
	return &RESTFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		breaker: circuit.NewBreaker(circuit.Config{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
			RequestTimeout:   5 * time.Second,
		}),
	}
}

type tickerResponse struct {
	Bid string `json:"bid"`
	Ask string `json:"ask"`
}

// Snapshot implements hitl.PriceFeed.
func (f *RESTFeed) Snapshot(ctx context.Context, symbol string) (hitl.PriceSnapshot, error) {
	var snap hitl.PriceSnapshot
	start := time.Now()

	err := f.breaker.Call(ctx, func(ctx context.Context) error {
		url := fmt.Sprintf("%s/ticker/%s", f.baseURL, symbol)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("marketdata: ticker returned status %d", resp.StatusCode)
		}

		var tr tickerResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return fmt.Errorf("marketdata: decode ticker: %w", err)
		}

		bid, err := money.NewFromString(tr.Bid, money.ScalePrice)
		if err != nil {
			return fmt.Errorf("marketdata: parse bid: %w", err)
		}
		ask, err := money.NewFromString(tr.Ask, money.ScalePrice)
		if err != nil {
			return fmt.Errorf("marketdata: parse ask: %w", err)
		}

		mid := bid.Add(ask).DivFloor(money.NewFromInt(2, 0), money.ScalePrice)
		spread := ask.Sub(bid).Div(mid, money.ScalePercent)

		snap = hitl.PriceSnapshot{
			Price:     money.Price{Decimal: mid},
			Bid:       money.Price{Decimal: bid},
			Ask:       money.Price{Decimal: ask},
			SpreadPct: money.Percent{Decimal: spread},
		}
		return nil
	})
	if err != nil {
		return hitl.PriceSnapshot{}, err
	}

	snap.LatencyMS = time.Since(start).Milliseconds()
	return snap, nil
}

// MockFeed returns a fixed price for every symbol, for MOCK_MODE.
type MockFeed struct {
	Price money.Price
}

func (f MockFeed) Snapshot(ctx context.Context, symbol string) (hitl.PriceSnapshot, error) {
	return hitl.PriceSnapshot{
		Price:     f.Price,
		Bid:       f.Price,
		Ask:       f.Price,
		SpreadPct: money.Percent{},
		LatencyMS: 0,
	}, nil
}

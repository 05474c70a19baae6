// Package discord pushes HITL lifecycle events to an operator-facing
// Discord channel over an incoming webhook, reusing the teacher's pooled,
// circuit-broken HTTP client (internal/infrastructure/async) instead of a
// bare http.Client so a flapping Discord endpoint degrades the same way
// any other outbound dependency does for this codebase.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/infrastructure/async"
	"github.com/sawpanic/sentinel/internal/interfaces/events"
)

// Notifier subscribes to the event bus and posts a formatted message to a
// Discord incoming webhook URL for every hitl.Event it sees.
type Notifier struct {
	webhookURL string
	pool       *async.ConnectionPool
}

// New builds a Notifier. pool may be a shared ConnectionPool or one
// dedicated to this notifier; DefaultPoolConfig is tuned generously enough
// for either.
func New(webhookURL string, pool *async.ConnectionPool) *Notifier {
	return &Notifier{webhookURL: webhookURL, pool: pool}
}

// Run subscribes to bus and blocks, posting messages until ctx is
// cancelled. Intended to run as a supervised orchestrator worker.
func (n *Notifier) Run(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := n.post(ctx, ev); err != nil {
				log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("discord: notify failed")
			}
		}
	}
}

type discordPayload struct {
	Content string `json:"content"`
}

func (n *Notifier) post(ctx context.Context, ev hitl.Event) error {
	body, err := json.Marshal(discordPayload{Content: format(ev)})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.pool.DoRequest(reqCtx, req)
	if err != nil {
		return fmt.Errorf("discord: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func format(ev hitl.Event) string {
	r := ev.Request
	switch ev.Type {
	case hitl.EventCreated:
		return fmt.Sprintf(":hourglass: **%s %s** %s qty %s @ %s awaiting approval (expires %s)",
			r.Side, r.Symbol, r.TradeID, r.Qty.String(), r.RequestPrice.String(), r.ExpiresAt.Format(time.RFC3339))
	case hitl.EventAutoApproved:
		return fmt.Sprintf(":white_check_mark: **%s %s** %s auto-approved (HITL disabled)", r.Side, r.Symbol, r.TradeID)
	case hitl.EventDecided:
		if r.Status == hitl.StatusApproved {
			return fmt.Sprintf(":white_check_mark: **%s %s** %s approved by %s", r.Side, r.Symbol, r.TradeID, r.OperatorID)
		}
		return fmt.Sprintf(":x: **%s %s** %s rejected (%s)", r.Side, r.Symbol, r.TradeID, r.Reason)
	case hitl.EventExpired:
		return fmt.Sprintf(":alarm_clock: **%s %s** %s expired without a decision", r.Side, r.Symbol, r.TradeID)
	case hitl.EventRecovered:
		return fmt.Sprintf(":arrows_counterclockwise: **%s %s** %s recovered on startup", r.Side, r.Symbol, r.TradeID)
	default:
		return fmt.Sprintf("%s: %s %s", ev.Type, r.Symbol, r.TradeID)
	}
}

package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/domain/policy"
	"github.com/sawpanic/sentinel/internal/domain/signal"
	"github.com/sawpanic/sentinel/internal/infrastructure/cache"
	"github.com/sawpanic/sentinel/internal/money"
)

// runPulse drains the webhook ingress queue and carries each accepted
// signal through policy, risk, and HITL create — the pipeline order named
// in §2: policy -> risk -> HITL -> order manager -> trade close. Order
// manager and trade close run later, off the decision pulse, once a human
// (or HITL-disabled auto-approval) actually authorizes the trade.
func (o *Orchestrator) runPulse(ctx context.Context) {
	queue := o.server.WebhookQueue()
	for {
		select {
		case <-ctx.Done():
			return
		case accepted, ok := <-queue:
			if !ok {
				return
			}
			o.processSignal(ctx, accepted.Result)
		}
	}
}

func (o *Orchestrator) processSignal(ctx context.Context, result signal.AcceptResult) {
	if result.Duplicate {
		return
	}
	sig := result.Signal
	logger := log.With().Str("correlation_id", sig.CorrelationID.String()).Str("symbol", sig.Symbol).Logger()
	o.metrics.SignalsReceivedTotal.Inc()

	token, err := o.symbolLock.Acquire(ctx, sig.Symbol)
	if err != nil {
		if errors.Is(err, cache.ErrLocked) {
			logger.Warn().Msg("orchestrator: symbol locked by another instance, skipping signal")
			return
		}
		logger.Error().Err(err).Msg("orchestrator: acquire symbol lock failed")
		return
	}
	defer func() { _ = o.symbolLock.Release(ctx, sig.Symbol, token) }()

	decision := o.policyEval.Evaluate(o.buildPolicyContext(ctx, sig.CorrelationID))
	if decision.Outcome != policy.Allow {
		logger.Info().Str("outcome", string(decision.Outcome)).Str("reason", decision.ReasonCode).
			Msg("orchestrator: policy refused signal")
		if decision.BlockingGate == "kill_switch" {
			o.metrics.BlockedByGuardianTotal.Inc()
		}
		return
	}

	stop := deriveStopPrice(sig.Side, sig.Price, o.cfg.StopDistancePct)
	permit, err := o.riskGov.Evaluate(sig.CorrelationID, time.Now(), o.cfg.CurrentEquityZAR, sig.Price, stop, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("orchestrator: risk governor refused signal")
		return
	}

	createResult, err := o.hitlGateway.Create(ctx, sig.Symbol, string(sig.Side), permit.ApprovedQty, sig.Price)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: hitl create failed")
		return
	}

	o.metrics.HITLRequestsTotal.Inc()

	o.pendingMu.Lock()
	o.pending[createResult.Request.TradeID] = pendingOrder{symbol: sig.Symbol, side: string(sig.Side), permit: permit}
	o.pendingMu.Unlock()

	if createResult.Request.Status == hitl.StatusApproved {
		// HITL disabled: Create already auto-approved. EventAutoApproved
		// carries this to the decision pulse, which executes it there —
		// this function's job ends at create either way.
		return
	}
}

// buildPolicyContext maps this deployment's actual safety signals onto
// policy.Context. There is no separate budget tracker or external health
// probe in scope (Non-goals), so BudgetSignal is fixed ALLOW and
// HealthStatus reflects only RGI's own safe-mode latch, its one internal
// signal of degraded trust data.
func (o *Orchestrator) buildPolicyContext(ctx context.Context, corrID uuid.UUID) policy.Context {
	pc := policy.NewContext()
	pc.KillSwitchActive = o.guard.IsLocked()
	pc.BudgetSignal = policy.BudgetAllow

	if o.rgiEngine.SafeModeActive() {
		pc.HealthStatus = policy.HealthYellow
	} else {
		pc.HealthStatus = policy.HealthGreen
	}

	lockout, err := o.brk.CheckTradingAllowed(ctx, corrID)
	switch {
	case err != nil:
		pc.RiskAssessment = policy.RiskCritical
	case !lockout.Allowed:
		pc.RiskAssessment = policy.RiskCritical
	default:
		pc.RiskAssessment = policy.RiskNormal
	}
	return pc
}

// deriveStopPrice applies the configured fixed fractional stop distance
// (see DESIGN.md: a real ATR-derived stop is out of scope) on the
// appropriate side of entry for the trade direction.
func deriveStopPrice(side signal.Side, entry money.Price, distance money.Percent) money.Price {
	factor := distance.Decimal
	if side == signal.Buy {
		return money.Price{Decimal: entry.Decimal.Sub(entry.Decimal.Mul(factor, money.ScalePrice))}
	}
	return money.Price{Decimal: entry.Decimal.Add(entry.Decimal.Mul(factor, money.ScalePrice))}
}

// runDecisionPulse subscribes to the event bus and executes every trade
// that clears HITL, whether by an operator's APPROVE or by an automatic
// approval when HITL is disabled.
func (o *Orchestrator) runDecisionPulse(ctx context.Context) {
	ch, unsubscribe := o.bus.Subscribe(128)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type != hitl.EventDecided && ev.Type != hitl.EventAutoApproved {
				continue
			}
			if ev.Request.Status != hitl.StatusApproved {
				if ev.Type == hitl.EventDecided {
					o.metrics.HITLRejectionsTotal.WithLabelValues(ev.Request.Reason).Inc()
				}
				continue
			}
			if ev.Type == hitl.EventDecided {
				o.metrics.HITLApprovalsTotal.Inc()
			}
			o.executeApproved(ctx, ev.Request)
		}
	}
}

func (o *Orchestrator) executeApproved(ctx context.Context, req hitl.ApprovalRequest) {
	logger := log.With().Str("trade_id", req.TradeID).Str("symbol", req.Symbol).Logger()

	o.pendingMu.Lock()
	pending, ok := o.pending[req.TradeID]
	if ok {
		delete(o.pending, req.TradeID)
	}
	o.pendingMu.Unlock()
	if !ok {
		logger.Error().Msg("orchestrator: approved trade has no retained execution permit (restart during approval window)")
		return
	}

	token, err := o.symbolLock.Acquire(ctx, pending.symbol)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: acquire symbol lock for execution failed")
		return
	}
	defer func() { _ = o.symbolLock.Release(ctx, pending.symbol, token) }()

	recon, err := o.orderMgr.Execute(ctx, pending.symbol, pending.side, pending.permit)
	if err != nil {
		o.metrics.SignalsExecutedTotal.WithLabelValues("FAILED").Inc()
		logger.Error().Err(err).Msg("orchestrator: order execution failed")
		return
	}
	o.metrics.SignalsExecutedTotal.WithLabelValues(string(recon.Outcome)).Inc()
	o.metrics.SlippagePct.Observe(recon.SlippagePct.Decimal.ToFloat64())

	if _, err := o.closer.Close(ctx, req.TradeID, pending.symbol, pending.side, pending.permit, recon); err != nil {
		logger.Error().Err(err).Msg("orchestrator: trade close failed")
	}
}

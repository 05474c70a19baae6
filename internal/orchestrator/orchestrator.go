// Package orchestrator wires L0-L11 into one running process: it builds
// every domain component against the configured persistence backend,
// starts the supervised background workers the spec requires (Guardian
// vitals, HITL expiry, Discord relay, the ingress pulse), and owns the
// HTTP server's lifecycle. No domain package imports this one — it is
// purely composition root.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentinel/internal/config"
	"github.com/sawpanic/sentinel/internal/domain/breaker"
	"github.com/sawpanic/sentinel/internal/domain/guardian"
	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/domain/policy"
	"github.com/sawpanic/sentinel/internal/domain/orders"
	"github.com/sawpanic/sentinel/internal/domain/rgi"
	"github.com/sawpanic/sentinel/internal/domain/risk"
	"github.com/sawpanic/sentinel/internal/domain/signal"
	"github.com/sawpanic/sentinel/internal/domain/tradeclose"
	"github.com/sawpanic/sentinel/internal/infrastructure/async"
	"github.com/sawpanic/sentinel/internal/infrastructure/cache"
	"github.com/sawpanic/sentinel/internal/infrastructure/db"
	ifhttp "github.com/sawpanic/sentinel/internal/interfaces/http"
	"github.com/sawpanic/sentinel/internal/interfaces/discord"
	"github.com/sawpanic/sentinel/internal/interfaces/events"
	"github.com/sawpanic/sentinel/internal/interfaces/marketdata"
	"github.com/sawpanic/sentinel/internal/persistence"
	"github.com/sawpanic/sentinel/internal/persistence/memory"
)

// vitalsInterval is how often Guardian re-checks equity against the daily
// loss threshold, matching the 60s cadence named in §9.
const vitalsInterval = 60 * time.Second

// pendingOrder is the risk permit and symbol/side an AWAITING_APPROVAL
// request was created against. ExecutionPermit is not itself persisted as
// part of hitl.ApprovalRequest (only qty/price survive a restart), so the
// orchestrator retains it in memory keyed by trade id between Create and
// the eventual approved decision. A process restart with a request still
// AWAITING_APPROVAL loses its permit; RecoverOnStartup only rehydrates
// approval state, not execution permits, so such a request can still be
// approved, but executeApproved finds no permit, logs an error and does not
// execute it (see DESIGN.md).
type pendingOrder struct {
	symbol string
	side   string
	permit risk.ExecutionPermit
}

// Orchestrator owns every wired component and the goroutines that drive
// them.
type Orchestrator struct {
	cfg config.Config

	repo *persistence.Repository
	dbMgr *db.Manager

	guard    *guardian.Guardian
	brk      *breaker.Breaker
	riskGov  *risk.Governor
	rgiEngine *rgi.RGI
	policyEval *policy.Evaluator
	sigGateway *signal.Gateway
	hitlGateway *hitl.Gateway
	orderMgr *orders.Manager
	closer   *tradeclose.Handler

	snapshotCache *cache.SnapshotCache
	symbolLock    *cache.SymbolLock

	bus      *events.Bus
	server   *ifhttp.Server
	metrics  *ifhttp.MetricsRegistry
	notifier *discord.Notifier
	pool     *async.ConnectionPool

	pendingMu sync.Mutex
	pending   map[string]pendingOrder
}

// New wires every component against cfg. It does not start any goroutine
// or network listener; call Run for that.
func New(cfg config.Config) (*Orchestrator, error) {
	o := &Orchestrator{cfg: cfg, pending: make(map[string]pendingOrder)}

	if err := o.wirePersistence(); err != nil {
		return nil, fmt.Errorf("orchestrator: wire persistence: %w", err)
	}

	o.guard = guardian.New(o.repo.Guardian, cfg.GuardianDailyLossLimitPct)
	o.brk = breaker.New(o.repo.ClosedTrades)
	o.riskGov = risk.New(cfg.MaxRiskZAR, cfg.LotSize)
	o.rgiEngine = rgi.New(o.repo.Trust, nil) // no Golden-Set evaluator in scope; safe-mode is explicit-only
	o.policyEval = policy.New()
	o.sigGateway = signal.NewGateway("tradingview", cfg.WebhookHMACSecret, o.repo.Signals)

	o.snapshotCache = cache.NewSnapshotCache(cfg.RedisAddr, cfg.RedisDB, time.Duration(cfg.SnapshotCacheTTL)*time.Second)
	o.symbolLock = cache.NewSymbolLock(cfg.RedisAddr, cfg.RedisDB, time.Duration(cfg.SymbolLockTTL)*time.Second)

	feed := o.wireFeed()

	auditFn := o.auditFunc()
	hitlCfg := hitl.Config{
		Enabled:            cfg.HITLEnabled,
		TTLSeconds:         cfg.HITLTimeoutSeconds,
		SlippageMaxPercent: cfg.HITLSlippageMaxPercent,
		AllowedOperators:   cfg.HITLAllowedOperators,
	}

	o.bus = events.NewBus()
	o.hitlGateway = hitl.New(o.repo.Approvals, feed, o.guard, auditFn, o.bus, hitlCfg)

	o.orderMgr = orders.New(o.wireExchange(), cfg.MockMode)
	o.closer = tradeclose.New(o.repo.ClosedTrades, o.hitlGateway)

	o.metrics = ifhttp.NewMetricsRegistry()

	serverCfg := ifhttp.DefaultServerConfig()
	server, err := ifhttp.NewServer(serverCfg, o.sigGateway, o.hitlGateway, o.metrics, o.bus,
		cfg.WebhookQueueDepth, cfg.WebhookIngressRPS, cfg.WebhookIngressBurst, cfg.HTTPBearerToken)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build http server: %w", err)
	}
	o.server = server

	if cfg.DiscordWebhookURL != "" {
		o.pool = async.NewConnectionPool(async.DefaultPoolConfig())
		o.notifier = discord.New(cfg.DiscordWebhookURL, o.pool)
	}

	o.guard.OnLock(o.hitlGateway.OnGuardianLock)

	return o, nil
}

func (o *Orchestrator) wirePersistence() error {
	if !o.cfg.Postgres.Enabled {
		o.repo = memory.NewRepository()
		return nil
	}

	dbCfg := db.DefaultConfig()
	dbCfg.DSN = o.cfg.Postgres.DSN
	dbCfg.Enabled = true

	mgr, err := db.NewManager(dbCfg)
	if err != nil {
		return err
	}
	o.dbMgr = mgr
	o.repo = mgr.Repository()
	return nil
}

// wireFeed builds the HITL price feed. MOCK_MODE skips a real feed
// entirely — Create falls back to the request price as its own snapshot —
// since a fixed mock quote would misrepresent every symbol alike. A real
// feed is wrapped in the Redis snapshot cache so repeated lookups for the
// same symbol inside SnapshotCacheTTL skip the exchange round trip.
func (o *Orchestrator) wireFeed() hitl.PriceFeed {
	if o.cfg.MockMode {
		return nil
	}
	real := marketdata.NewRESTFeed(o.cfg.ExchangeBaseURL)
	return &cachingFeed{inner: real, cache: o.snapshotCache}
}

func (o *Orchestrator) wireExchange() *orders.Exchange {
	if o.cfg.MockMode {
		return orders.NewMockExchange()
	}
	// A real exchange client is out of scope (Non-goals: exchange
	// connectivity); MOCK_MODE=false without one is a configuration the
	// caller must avoid in this deployment.
	return orders.WrapWithBreaker(orders.NewMockExchange(), o.cfg.ExchangeBaseURL)
}

func (o *Orchestrator) auditFunc() hitl.AuditFunc {
	return func(ctx context.Context, corrID uuid.UUID, action, result, beforeHash, afterHash string, fields map[string]interface{}) error {
		return o.repo.Audit.Append(ctx, persistence.AuditRecord{
			CorrelationID: corrID,
			Action:        action,
			Result:        result,
			BeforeHash:    beforeHash,
			AfterHash:     afterHash,
			Timestamp:     time.Now().UTC(),
			Context:       fields,
		})
	}
}

// cachingFeed decorates a hitl.PriceFeed with the Redis snapshot cache.
type cachingFeed struct {
	inner hitl.PriceFeed
	cache *cache.SnapshotCache
}

func (f *cachingFeed) Snapshot(ctx context.Context, symbol string) (hitl.PriceSnapshot, error) {
	if snap, ok := f.cache.Get(ctx, symbol); ok {
		return snap, nil
	}
	snap, err := f.inner.Snapshot(ctx, symbol)
	if err != nil {
		return hitl.PriceSnapshot{}, err
	}
	_ = f.cache.Set(ctx, symbol, snap)
	return snap, nil
}

// Run starts every supervised worker and the HTTP listener, then blocks
// until ctx is cancelled, at which point it shuts everything down
// gracefully.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.guard.Hydrate(ctx); err != nil {
		return fmt.Errorf("orchestrator: hydrate guardian: %w", err)
	}

	report, err := o.hitlGateway.RecoverOnStartup(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: recover hitl: %w", err)
	}
	log.Info().
		Int("recovered", len(report.Recovered)).
		Int("rejected_corrupt", len(report.RejectedCorrupt)).
		Int("rejected_expired", len(report.RejectedExpired)).
		Msg("orchestrator: hitl recovery complete")

	o.supervise(ctx, "guardian-vitals", o.runVitalsLoop)
	o.supervise(ctx, "hitl-expiry", func(ctx context.Context) {
		o.hitlGateway.ExpiryWorker(ctx, time.Duration(o.cfg.HITLTimeoutSeconds/10+1)*time.Second)
	})
	o.supervise(ctx, "ingress-pulse", o.runPulse)
	o.supervise(ctx, "decision-pulse", o.runDecisionPulse)

	if o.notifier != nil {
		o.supervise(ctx, "discord-notifier", func(ctx context.Context) {
			o.notifier.Run(ctx, o.bus)
		})
	}

	errCh := make(chan error, 1)
	go func() {
		if err := o.server.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("orchestrator: http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("orchestrator: http server shutdown")
	}
	if o.dbMgr != nil {
		_ = o.dbMgr.Close()
	}
	_ = o.snapshotCache.Close()
	_ = o.symbolLock.Close()

	return nil
}

// runVitalsLoop checks Guardian's daily-loss condition every vitalsInterval
// against the configured equity stand-ins (see DESIGN.md: a real deployment
// polls the exchange account endpoint, out of scope here).
func (o *Orchestrator) runVitalsLoop(ctx context.Context) {
	ticker := time.NewTicker(vitalsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := o.guard.CheckVitals(ctx, guardian.EquitySnapshot{
				StartingEquity: o.cfg.StartingEquityZAR,
				CurrentEquity:  o.cfg.CurrentEquityZAR,
			})
			if err != nil {
				log.Error().Err(err).Msg("orchestrator: guardian vitals check failed")
			}
		}
	}
}

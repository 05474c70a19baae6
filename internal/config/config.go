// Package config loads the environment-variable configuration the spec's
// §6 configuration section names into a frozen struct, following the
// teacher's env-override-over-YAML-defaults shape from
// internal/infrastructure/db/config.go. Unlike that file, required keys
// here are fail-closed (SEC-040): a missing WEBHOOK_HMAC_SECRET,
// MAX_RISK_ZAR, or (when HITL is enabled) HITL_ALLOWED_OPERATORS aborts
// startup rather than falling back to a convenient default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sawpanic/sentinel/internal/apperr"
	"github.com/sawpanic/sentinel/internal/money"
)

// Config is the full set of environment-derived settings the orchestrator
// needs to wire L0-L11.
type Config struct {
	HITLEnabled            bool
	HITLTimeoutSeconds     int
	HITLSlippageMaxPercent money.Percent // fraction, e.g. 0.0050 == 0.5%
	HITLAllowedOperators   map[string]bool

	GuardianDailyLossLimitPct money.Percent // fraction, e.g. 0.0100 == 1%

	MaxRiskZAR  money.ZAR
	MinTradeZAR money.ZAR

	WebhookHMACSecret []byte

	MockMode          bool
	ExchangeAPIKey    string
	ExchangeAPISecret string
	ExchangeBaseURL   string

	DiscordWebhookURL string

	HTTPBearerToken        string
	WebhookIngressRPS      float64
	WebhookIngressBurst    int
	WebhookQueueDepth      int

	// LotSize and StopDistancePct feed the risk governor. The webhook signal
	// carries only an entry price (§3); the stop price a real deployment
	// would derive from ATR is out of scope here (Non-goals: market-data
	// adapter performance), so a fixed fractional stop distance stands in.
	LotSize         money.Decimal
	StopDistancePct money.Percent

	// StartingEquityZAR and CurrentEquityZAR feed Guardian's vitals loop.
	// A real deployment would read current equity from the exchange
	// account endpoint (out of scope, same as the exchange client itself);
	// these are the MOCK_MODE/test stand-in.
	StartingEquityZAR money.ZAR
	CurrentEquityZAR  money.ZAR

	StrategyFingerprint string
	RegimeTag           string

	RedisAddr           string
	RedisDB             int
	SnapshotCacheTTL    int
	SymbolLockTTL       int

	Postgres PostgresConfig
}

// PostgresConfig mirrors internal/infrastructure/db.Config's env keys;
// duplicated here (rather than imported) so internal/config has no
// dependency on database/sql or sqlx — it only parses strings.
type PostgresConfig struct {
	DSN     string
	Enabled bool
}

const (
	defaultHITLTimeoutSeconds        = 300
	defaultHITLSlippageMaxPercentStr = "0.5" // human percent; converted to a 0.0050 fraction below
	defaultGuardianDailyLossLimitPct = "0.01"
)

// Load reads every recognized key from the process environment. It never
// reads a config file — this module's only file-based config is the YAML
// overlay behind cmd/sentinel's --config flag, which db.LoadAppConfig reads
// and which replaces exchange/cache settings after Load returns.
func Load() (Config, error) {
	var cfg Config

	cfg.HITLEnabled = true
	if v, ok := os.LookupEnv("HITL_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: HITL_ENABLED: %w", err)
		}
		cfg.HITLEnabled = b
	}

	cfg.HITLTimeoutSeconds = defaultHITLTimeoutSeconds
	if v, ok := os.LookupEnv("HITL_TIMEOUT_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: HITL_TIMEOUT_SECONDS must be a positive integer")
		}
		cfg.HITLTimeoutSeconds = n
	}

	slipStr := defaultHITLSlippageMaxPercentStr
	if v, ok := os.LookupEnv("HITL_SLIPPAGE_MAX_PERCENT"); ok {
		slipStr = v
	}
	slipFraction, err := percentStringToFraction(slipStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: HITL_SLIPPAGE_MAX_PERCENT: %w", err)
	}
	cfg.HITLSlippageMaxPercent = money.Percent{Decimal: slipFraction}

	cfg.HITLAllowedOperators = map[string]bool{}
	if v := os.Getenv("HITL_ALLOWED_OPERATORS"); v != "" {
		for _, op := range strings.Split(v, ",") {
			op = strings.TrimSpace(op)
			if op != "" {
				cfg.HITLAllowedOperators[op] = true
			}
		}
	}
	if cfg.HITLEnabled && len(cfg.HITLAllowedOperators) == 0 {
		return Config{}, apperr.New(apperr.CodeMissingConfig, "HITL_ALLOWED_OPERATORS is required when HITL_ENABLED=true")
	}

	lossPctStr := defaultGuardianDailyLossLimitPct
	if v, ok := os.LookupEnv("GUARDIAN_DAILY_LOSS_LIMIT_PCT"); ok {
		lossPctStr = v
	}
	lossPct, err := money.NewFromString(lossPctStr, money.ScalePercent)
	if err != nil {
		return Config{}, fmt.Errorf("config: GUARDIAN_DAILY_LOSS_LIMIT_PCT: %w", err)
	}
	cfg.GuardianDailyLossLimitPct = money.Percent{Decimal: lossPct}

	maxRiskStr := os.Getenv("MAX_RISK_ZAR")
	if maxRiskStr == "" {
		return Config{}, apperr.New(apperr.CodeMissingConfig, "MAX_RISK_ZAR is required")
	}
	maxRisk, err := money.NewFromString(maxRiskStr, money.ScaleZAR)
	if err != nil {
		return Config{}, fmt.Errorf("config: MAX_RISK_ZAR: %w", err)
	}
	cfg.MaxRiskZAR = money.ZAR{Decimal: maxRisk}

	if minTradeStr := os.Getenv("MIN_TRADE_ZAR"); minTradeStr != "" {
		minTrade, err := money.NewFromString(minTradeStr, money.ScaleZAR)
		if err != nil {
			return Config{}, fmt.Errorf("config: MIN_TRADE_ZAR: %w", err)
		}
		cfg.MinTradeZAR = money.ZAR{Decimal: minTrade}
	}

	secret := os.Getenv("WEBHOOK_HMAC_SECRET")
	if secret == "" {
		return Config{}, apperr.New(apperr.CodeMissingConfig, "WEBHOOK_HMAC_SECRET is required")
	}
	cfg.WebhookHMACSecret = []byte(secret)

	if v, ok := os.LookupEnv("MOCK_MODE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: MOCK_MODE: %w", err)
		}
		cfg.MockMode = b
	}
	if !cfg.MockMode {
		cfg.ExchangeAPIKey = os.Getenv("EXCHANGE_API_KEY")
		cfg.ExchangeAPISecret = os.Getenv("EXCHANGE_API_SECRET")
		if cfg.ExchangeAPIKey == "" || cfg.ExchangeAPISecret == "" {
			return Config{}, apperr.New(apperr.CodeMissingConfig, "EXCHANGE_API_KEY/EXCHANGE_API_SECRET are required unless MOCK_MODE=true")
		}
	}
	cfg.ExchangeBaseURL = os.Getenv("EXCHANGE_BASE_URL")

	cfg.DiscordWebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")

	cfg.HTTPBearerToken = os.Getenv("HITL_BEARER_TOKEN")
	if cfg.HITLEnabled && cfg.HTTPBearerToken == "" {
		return Config{}, apperr.New(apperr.CodeMissingConfig, "HITL_BEARER_TOKEN is required when HITL_ENABLED=true")
	}

	cfg.WebhookIngressRPS = 10
	if v, ok := os.LookupEnv("WEBHOOK_INGRESS_RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return Config{}, fmt.Errorf("config: WEBHOOK_INGRESS_RPS must be a positive number")
		}
		cfg.WebhookIngressRPS = rps
	}
	cfg.WebhookIngressBurst = 20
	if v, ok := os.LookupEnv("WEBHOOK_INGRESS_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: WEBHOOK_INGRESS_BURST must be a positive integer")
		}
		cfg.WebhookIngressBurst = n
	}
	cfg.WebhookQueueDepth = 256
	if v, ok := os.LookupEnv("WEBHOOK_QUEUE_DEPTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: WEBHOOK_QUEUE_DEPTH must be a positive integer")
		}
		cfg.WebhookQueueDepth = n
	}

	lotSizeStr := "0.01"
	if v := os.Getenv("LOT_SIZE"); v != "" {
		lotSizeStr = v
	}
	lotSize, err := money.NewFromString(lotSizeStr, money.ScalePrice)
	if err != nil {
		return Config{}, fmt.Errorf("config: LOT_SIZE: %w", err)
	}
	cfg.LotSize = lotSize

	stopDistanceStr := "1.0"
	if v := os.Getenv("STOP_DISTANCE_PCT"); v != "" {
		stopDistanceStr = v
	}
	stopDistance, err := percentStringToFraction(stopDistanceStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: STOP_DISTANCE_PCT: %w", err)
	}
	cfg.StopDistancePct = money.Percent{Decimal: stopDistance}

	startingEquityStr := os.Getenv("STARTING_EQUITY_ZAR")
	if startingEquityStr == "" {
		startingEquityStr = maxRiskStr
	}
	startingEquity, err := money.NewFromString(startingEquityStr, money.ScaleZAR)
	if err != nil {
		return Config{}, fmt.Errorf("config: STARTING_EQUITY_ZAR: %w", err)
	}
	cfg.StartingEquityZAR = money.ZAR{Decimal: startingEquity}

	currentEquityStr := os.Getenv("CURRENT_EQUITY_ZAR")
	if currentEquityStr == "" {
		currentEquityStr = startingEquityStr
	}
	currentEquity, err := money.NewFromString(currentEquityStr, money.ScaleZAR)
	if err != nil {
		return Config{}, fmt.Errorf("config: CURRENT_EQUITY_ZAR: %w", err)
	}
	cfg.CurrentEquityZAR = money.ZAR{Decimal: currentEquity}

	cfg.StrategyFingerprint = os.Getenv("STRATEGY_FINGERPRINT")
	if cfg.StrategyFingerprint == "" {
		cfg.StrategyFingerprint = "default"
	}
	cfg.RegimeTag = os.Getenv("REGIME_TAG")
	if cfg.RegimeTag == "" {
		cfg.RegimeTag = "default"
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisDB = 0
	if v, ok := os.LookupEnv("REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDIS_DB must be an integer")
		}
		cfg.RedisDB = n
	}
	cfg.SnapshotCacheTTL = 5
	if v, ok := os.LookupEnv("SNAPSHOT_CACHE_TTL_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: SNAPSHOT_CACHE_TTL_SECONDS must be a positive integer")
		}
		cfg.SnapshotCacheTTL = n
	}
	cfg.SymbolLockTTL = 10
	if v, ok := os.LookupEnv("SYMBOL_LOCK_TTL_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: SYMBOL_LOCK_TTL_SECONDS must be a positive integer")
		}
		cfg.SymbolLockTTL = n
	}

	cfg.Postgres.DSN = os.Getenv("PG_DSN")
	if v, ok := os.LookupEnv("PG_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: PG_ENABLED: %w", err)
		}
		cfg.Postgres.Enabled = b
	}

	return cfg, nil
}

// percentStringToFraction parses a human percentage number (e.g. "0.5"
// meaning 0.5%) and converts it to this codebase's fraction convention
// (0.0050), matching the way internal/domain/risk and internal/domain/hitl
// express Percent values. Config files speak percentage points; the domain
// layer speaks fractions.
func percentStringToFraction(raw string) (money.Decimal, error) {
	human, err := money.NewFromString(raw, money.ScalePercent)
	if err != nil {
		return money.Decimal{}, err
	}
	return human.Div(money.NewFromInt(100, 0), money.ScalePercent), nil
}

package config

import (
	"os"
	"testing"

	"github.com/sawpanic/sentinel/internal/apperr"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"HITL_ENABLED", "HITL_TIMEOUT_SECONDS", "HITL_SLIPPAGE_MAX_PERCENT",
		"HITL_ALLOWED_OPERATORS", "GUARDIAN_DAILY_LOSS_LIMIT_PCT", "MAX_RISK_ZAR",
		"MIN_TRADE_ZAR", "WEBHOOK_HMAC_SECRET", "MOCK_MODE", "EXCHANGE_API_KEY",
		"EXCHANGE_API_SECRET", "EXCHANGE_BASE_URL", "DISCORD_WEBHOOK_URL",
		"HITL_BEARER_TOKEN", "WEBHOOK_INGRESS_RPS", "WEBHOOK_INGRESS_BURST",
		"WEBHOOK_QUEUE_DEPTH", "PG_DSN", "PG_ENABLED", "LOT_SIZE",
		"STOP_DISTANCE_PCT", "STARTING_EQUITY_ZAR", "CURRENT_EQUITY_ZAR",
		"STRATEGY_FINGERPRINT", "REGIME_TAG", "REDIS_ADDR", "REDIS_DB",
		"SNAPSHOT_CACHE_TTL_SECONDS", "SYMBOL_LOCK_TTL_SECONDS",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoadFailsClosedOnMissingWebhookSecret(t *testing.T) {
	clearEnv(t)
	os.Setenv("MAX_RISK_ZAR", "1000.00")
	os.Setenv("MOCK_MODE", "true")
	os.Setenv("HITL_ALLOWED_OPERATORS", "op-a")
	defer clearEnv(t)

	_, err := Load()
	code, ok := apperr.CodeOf(err)
	if !ok || code != apperr.CodeMissingConfig {
		t.Fatalf("expected SEC-040, got %v", err)
	}
}

func TestLoadFailsClosedOnMissingMaxRiskZAR(t *testing.T) {
	clearEnv(t)
	os.Setenv("WEBHOOK_HMAC_SECRET", "s3cr3t")
	os.Setenv("MOCK_MODE", "true")
	os.Setenv("HITL_ALLOWED_OPERATORS", "op-a")
	defer clearEnv(t)

	_, err := Load()
	code, ok := apperr.CodeOf(err)
	if !ok || code != apperr.CodeMissingConfig {
		t.Fatalf("expected SEC-040, got %v", err)
	}
}

func TestLoadFailsClosedOnMissingAllowedOperatorsWhenHITLEnabled(t *testing.T) {
	clearEnv(t)
	os.Setenv("WEBHOOK_HMAC_SECRET", "s3cr3t")
	os.Setenv("MAX_RISK_ZAR", "1000.00")
	os.Setenv("MOCK_MODE", "true")
	defer clearEnv(t)

	_, err := Load()
	code, ok := apperr.CodeOf(err)
	if !ok || code != apperr.CodeMissingConfig {
		t.Fatalf("expected SEC-040, got %v", err)
	}
}

func TestLoadFailsClosedOnMissingExchangeCredentialsWithoutMockMode(t *testing.T) {
	clearEnv(t)
	os.Setenv("WEBHOOK_HMAC_SECRET", "s3cr3t")
	os.Setenv("MAX_RISK_ZAR", "1000.00")
	os.Setenv("HITL_ALLOWED_OPERATORS", "op-a")
	os.Setenv("HITL_BEARER_TOKEN", "t0k3n")
	defer clearEnv(t)

	_, err := Load()
	code, ok := apperr.CodeOf(err)
	if !ok || code != apperr.CodeMissingConfig {
		t.Fatalf("expected SEC-040, got %v", err)
	}
}

func TestLoadFailsClosedOnMissingBearerTokenWhenHITLEnabled(t *testing.T) {
	clearEnv(t)
	os.Setenv("WEBHOOK_HMAC_SECRET", "s3cr3t")
	os.Setenv("MAX_RISK_ZAR", "1000.00")
	os.Setenv("MOCK_MODE", "true")
	os.Setenv("HITL_ALLOWED_OPERATORS", "op-a")
	defer clearEnv(t)

	_, err := Load()
	code, ok := apperr.CodeOf(err)
	if !ok || code != apperr.CodeMissingConfig {
		t.Fatalf("expected SEC-040, got %v", err)
	}
}

func TestLoadAppliesDefaultsAndConvertsSlippagePercent(t *testing.T) {
	clearEnv(t)
	os.Setenv("WEBHOOK_HMAC_SECRET", "s3cr3t")
	os.Setenv("MAX_RISK_ZAR", "1000.00")
	os.Setenv("MOCK_MODE", "true")
	os.Setenv("HITL_ALLOWED_OPERATORS", "op-a, op-b")
	os.Setenv("HITL_BEARER_TOKEN", "t0k3n")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HITLTimeoutSeconds != defaultHITLTimeoutSeconds {
		t.Errorf("timeout = %d", cfg.HITLTimeoutSeconds)
	}
	if got := cfg.HITLSlippageMaxPercent.String(); got != "0.0050" {
		t.Errorf("slippage fraction = %s, want 0.0050", got)
	}
	if !cfg.HITLAllowedOperators["op-a"] || !cfg.HITLAllowedOperators["op-b"] {
		t.Errorf("operators = %+v", cfg.HITLAllowedOperators)
	}
	if got := cfg.GuardianDailyLossLimitPct.String(); got != "0.0100" {
		t.Errorf("guardian limit = %s, want 0.0100", got)
	}
}

func TestLoadHonorsExplicitSlippagePercent(t *testing.T) {
	clearEnv(t)
	os.Setenv("WEBHOOK_HMAC_SECRET", "s3cr3t")
	os.Setenv("MAX_RISK_ZAR", "1000.00")
	os.Setenv("MOCK_MODE", "true")
	os.Setenv("HITL_ALLOWED_OPERATORS", "op-a")
	os.Setenv("HITL_SLIPPAGE_MAX_PERCENT", "1.0")
	os.Setenv("HITL_BEARER_TOKEN", "t0k3n")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.HITLSlippageMaxPercent.String(); got != "0.0100" {
		t.Errorf("slippage fraction = %s, want 0.0100", got)
	}
}

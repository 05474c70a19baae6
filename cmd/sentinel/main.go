package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/sentinel/internal/config"
	"github.com/sawpanic/sentinel/internal/infrastructure/db"
	"github.com/sawpanic/sentinel/internal/money"
	"github.com/sawpanic/sentinel/internal/orchestrator"
)

const (
	appName = "Sentinel"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "sentinel",
		Short:   "Sentinel is an autonomous FX/crypto trading control plane.",
		Version: version,
		Long: `Sentinel enforces the Sovereign Mandate: every trade clears Guardian's
equity hard-stop, the headless circuit breaker, the risk governor, and the
permission policy evaluator (whose health input is RGI's safe-mode latch)
before it ever reaches an operator's approval queue. RGI's trust probability
and adjusted confidence are not consulted on that path.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane: webhook ingress, HITL console, and metrics",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "optional YAML file overlaying exchange/cache settings onto the env-derived config")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("sentinel: config load failed")
		os.Exit(1)
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		if err := overlayAppConfig(&cfg, configPath); err != nil {
			log.Error().Err(err).Str("path", configPath).Msg("sentinel: config overlay failed")
			os.Exit(1)
		}
	}

	orch, err := orchestrator.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("sentinel: wiring failed")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("app", appName).Str("version", version).Msg("sentinel: starting")

	runErr := make(chan error, 1)
	go func() {
		runErr <- orch.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("sentinel: shutdown signal received")
	case err := <-runErr:
		if err != nil {
			log.Error().Err(err).Msg("sentinel: run failed")
			return err
		}
	}

	select {
	case err := <-runErr:
		if err != nil {
			log.Error().Err(err).Msg("sentinel: shutdown error")
			return err
		}
	case <-time.After(15 * time.Second):
		log.Warn().Msg("sentinel: shutdown timed out waiting for orchestrator")
	}

	log.Info().Msg("sentinel: shutdown complete")
	return nil
}

// overlayAppConfig applies a YAML file's exchange/cache settings on top of
// the env-derived config, for deployments that prefer a checked-in file over
// a pile of environment variables for the non-secret, non-fail-closed knobs.
// Fields absent from the file are left untouched.
func overlayAppConfig(cfg *config.Config, path string) error {
	app, err := db.LoadAppConfig(path)
	if err != nil {
		return err
	}

	if app.Exchange.BaseURL != "" {
		cfg.ExchangeBaseURL = app.Exchange.BaseURL
	}
	if app.Exchange.MaxRiskZAR != "" {
		zar, err := money.NewZAR(app.Exchange.MaxRiskZAR)
		if err != nil {
			return err
		}
		cfg.MaxRiskZAR = zar
	}
	if app.Cache.Redis.Addr != "" {
		cfg.RedisAddr = app.Cache.Redis.Addr
	}
	if app.Cache.Redis.DB != 0 {
		cfg.RedisDB = app.Cache.Redis.DB
	}
	if app.Cache.Redis.DefaultTTLSeconds != 0 {
		cfg.SnapshotCacheTTL = app.Cache.Redis.DefaultTTLSeconds
	}
	if app.Cache.Redis.LockTTLSeconds != 0 {
		cfg.SymbolLockTTL = app.Cache.Redis.LockTTLSeconds
	}

	return nil
}

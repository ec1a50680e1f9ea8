package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cellardex/cellarid/internal/cost"
	"github.com/cellardex/cellarid/internal/engine"
	"github.com/cellardex/cellarid/internal/llm"
	"github.com/cellardex/cellarid/internal/resilience"
	"github.com/cellardex/cellarid/internal/score"
	"github.com/cellardex/cellarid/internal/store"
	anthropicpkg "github.com/cellardex/cellarid/pkg/anthropic"
)

// identifyEnv holds the initialized store, adapters, breakers, and engine
// shared by the serve/identify/history commands.
type identifyEnv struct {
	Store    store.Store
	Engine   *engine.Engine
	Breakers *resilience.ProviderBreakers
}

// Close releases resources held by the environment.
func (e *identifyEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, the Anthropic adapter, circuit breakers, and
// the escalation engine. Callers should defer env.Close().
func initEnv(ctx context.Context) (*identifyEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("CELLARID_ANTHROPIC_KEY is required")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	retryCfg := resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMS, cfg.Retry.MaxBackoffMS, 0, -1)
	circuitCfg := resilience.FromCircuitConfig(
		cfg.Circuit.FailureThreshold, cfg.Circuit.FailureWindowSec, cfg.Circuit.OpenDurationSec)
	circuitCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("circuit state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
	breakers := resilience.NewProviderBreakers(circuitCfg)

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	adapter := llm.NewAnthropicAdapter(anthropicClient, cfg.Anthropic.RequestsPerSecond, retryCfg)

	calc := cost.NewCalculator(pricingRates())
	tracker := cost.MultiTracker{cost.NewLogTracker(), store.NewAuditTracker(st)}

	eng := engine.New(
		engine.Config{
			Tiers:            cfg.Engine.Tiers,
			ConfidenceTarget: cfg.Engine.ConfidenceTarget,
			DeepGate:         cfg.Engine.DeepGate,
			FieldDelay:       cfg.Engine.FieldDelay(),
			RefiningMessage:  cfg.Engine.RefiningMessage,
		},
		llm.NewRegistry(adapter),
		breakers,
		score.NewScorer(),
		calc,
		tracker,
	)

	return &identifyEnv{Store: st, Engine: eng, Breakers: breakers}, nil
}

// initStore creates the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return store.NewPostgres(pctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// pricingRates merges configured pricing over the built-in defaults.
func pricingRates() cost.Rates {
	rates := cost.DefaultRates()
	for model, p := range cfg.Pricing.Anthropic {
		rates.Anthropic[model] = cost.ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	return rates
}

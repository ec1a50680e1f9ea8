package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cellardex/cellarid/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the identification audit log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// EngineConfig configures the escalation ladder and its thresholds.
type EngineConfig struct {
	Tiers            []model.TierConfig `yaml:"tiers" mapstructure:"tiers"`
	ConfidenceTarget int                `yaml:"confidence_target" mapstructure:"confidence_target"`
	DeepGate         int                `yaml:"deep_gate" mapstructure:"deep_gate"`
	FieldDelayMS     int                `yaml:"field_delay_ms" mapstructure:"field_delay_ms"`
	RefiningMessage  string             `yaml:"refining_message" mapstructure:"refining_message"`
}

// FieldDelay returns the changed-field pacing delay as a duration.
func (c EngineConfig) FieldDelay() time.Duration {
	return time.Duration(c.FieldDelayMS) * time.Millisecond
}

// CircuitConfig configures the per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	FailureWindowSec int `yaml:"failure_window_secs" mapstructure:"failure_window_secs"`
	OpenDurationSec  int `yaml:"open_duration_secs" mapstructure:"open_duration_secs"`
}

// RetryConfig configures retry behavior for provider calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CELLARID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cellarid.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.requests_per_second", 5.0)
	v.SetDefault("engine.confidence_target", 85)
	v.SetDefault("engine.deep_gate", 92)
	v.SetDefault("engine.field_delay_ms", 50)
	v.SetDefault("engine.refining_message", "Taking a closer look at this bottle...")
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.failure_window_secs", 60)
	v.SetDefault("circuit.open_duration_secs", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 8000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Engine.Tiers) == 0 {
		cfg.Engine.Tiers = DefaultTiers()
	}
	for i := range cfg.Engine.Tiers {
		if cfg.Engine.Tiers[i].Provider == "" {
			cfg.Engine.Tiers[i].Provider = "anthropic"
		}
	}

	return &cfg, nil
}

// DefaultTiers is the built-in fast/detailed/deep ladder used when the config
// file does not override it.
func DefaultTiers() []model.TierConfig {
	return []model.TierConfig{
		{
			Name:      model.TierFast,
			Provider:  "anthropic",
			Model:     "claude-haiku-4-5-20251001",
			MaxTokens: 1024,
			Timeout:   15 * time.Second,
		},
		{
			Name:      model.TierDetailed,
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5-20250929",
			Effort:    "medium",
			MaxTokens: 2048,
			Timeout:   30 * time.Second,
		},
		{
			Name:      model.TierDeep,
			Provider:  "anthropic",
			Model:     "claude-opus-4-1-20250805",
			Effort:    "high",
			MaxTokens: 4096,
			Timeout:   60 * time.Second,
		},
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

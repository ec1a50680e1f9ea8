package model

import "time"

// TierName identifies one escalation tier. Tiers are ordered; escalation only
// moves forward through the configured list, never back.
type TierName string

const (
	TierFast     TierName = "fast"     // cheap streaming first pass
	TierDetailed TierName = "detailed" // mid-cost synthesis
	TierDeep     TierName = "deep"     // expensive reasoning, last resort
)

// TierConfig binds a tier name to a concrete provider/model pairing. Loaded
// once at startup; never mutated at runtime.
type TierConfig struct {
	Name        TierName      `yaml:"name" mapstructure:"name"`
	Provider    string        `yaml:"provider" mapstructure:"provider"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Effort      string        `yaml:"effort" mapstructure:"effort"`
	MaxTokens   int64         `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature *float64      `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// TokenUsage tracks token consumption for a single tier call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

package model

import "time"

// EscalationRecord is one append-only audit entry per tier actually run.
// Never mutated after append; the superseded candidate is retained here for
// audit and never resurrected.
type EscalationRecord struct {
	RequestID  string     `json:"request_id"`
	Tier       TierName   `json:"tier"`
	Model      string     `json:"model"`
	Confidence int        `json:"confidence"`
	Improved   bool       `json:"improved"`
	DurationMS int64      `json:"duration_ms"`
	Usage      TokenUsage `json:"usage"`
	CostUSD    float64    `json:"cost_usd"`
	Err        string     `json:"error,omitempty"`
	Candidate  *Candidate `json:"candidate,omitempty"`
}

// IdentificationSummary is the persisted outcome of one request: the final
// candidate after any refinement, plus aggregates over the tiers that ran.
type IdentificationSummary struct {
	RequestID  string     `json:"request_id"`
	Kind       InputKind  `json:"kind"`
	Input      string     `json:"input,omitempty"`
	Candidate  *Candidate `json:"candidate,omitempty"`
	Confidence int        `json:"confidence"`
	Improved   bool       `json:"improved"`
	CostUSD    float64    `json:"cost_usd"`
	CreatedAt  time.Time  `json:"created_at"`
}

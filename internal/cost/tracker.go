package cost

import (
	"context"

	"go.uber.org/zap"

	"github.com/cellardex/cellarid/internal/model"
)

// Tracker receives escalation records as fire-and-forget notifications. A
// Tracker must never block or fail an identification; implementations swallow
// their own errors.
type Tracker interface {
	Record(ctx context.Context, rec model.EscalationRecord)
}

// LogTracker logs cost attribution per tier call with structured fields.
type LogTracker struct{}

// NewLogTracker creates a Tracker that only logs.
func NewLogTracker() *LogTracker {
	return &LogTracker{}
}

// Record logs the escalation record.
func (t *LogTracker) Record(_ context.Context, rec model.EscalationRecord) {
	zap.L().Info("cost attribution",
		zap.String("request_id", rec.RequestID),
		zap.String("tier", string(rec.Tier)),
		zap.String("model", rec.Model),
		zap.Int("confidence", rec.Confidence),
		zap.Bool("improved", rec.Improved),
		zap.Int64("duration_ms", rec.DurationMS),
		zap.Int64("input_tokens", rec.Usage.InputTokens),
		zap.Int64("output_tokens", rec.Usage.OutputTokens),
		zap.Float64("estimated_cost_usd", rec.CostUSD),
	)
}

// MultiTracker fans a record out to several trackers.
type MultiTracker []Tracker

// Record notifies every tracker in order.
func (m MultiTracker) Record(ctx context.Context, rec model.EscalationRecord) {
	for _, t := range m {
		t.Record(ctx, rec)
	}
}

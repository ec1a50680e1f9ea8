package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/cellardex/cellarid/internal/model"
)

// AuditTracker adapts a Store to the cost tracker contract: escalation
// records are appended best-effort and a failed write never surfaces to the
// request path.
type AuditTracker struct {
	store Store
}

// NewAuditTracker creates an AuditTracker over the given store.
func NewAuditTracker(s Store) *AuditTracker {
	return &AuditTracker{store: s}
}

func (t *AuditTracker) Record(ctx context.Context, rec model.EscalationRecord) {
	if err := t.store.AppendEscalations(ctx, []model.EscalationRecord{rec}); err != nil {
		zap.L().Warn("escalation audit append failed",
			zap.String("request_id", rec.RequestID),
			zap.String("tier", string(rec.Tier)),
			zap.Error(err))
	}
}

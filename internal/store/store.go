package store

import (
	"context"

	"github.com/cellardex/cellarid/internal/model"
)

// Filter specifies criteria for listing identifications.
type Filter struct {
	Kind          model.InputKind `json:"kind,omitempty"`
	MinConfidence int             `json:"min_confidence,omitempty"`
	Limit         int             `json:"limit,omitempty"`
	Offset        int             `json:"offset,omitempty"`
}

// Store is the persistence interface for the identification audit log:
// one summary row per request and one escalation row per tier that ran.
type Store interface {
	// Identifications
	SaveIdentification(ctx context.Context, sum model.IdentificationSummary) error
	GetIdentification(ctx context.Context, requestID string) (*model.IdentificationSummary, []model.EscalationRecord, error)
	ListIdentifications(ctx context.Context, filter Filter) ([]model.IdentificationSummary, error)

	// Escalations
	AppendEscalations(ctx context.Context, recs []model.EscalationRecord) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

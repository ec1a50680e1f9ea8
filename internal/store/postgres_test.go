package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellardex/cellarid/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetIdentification_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, kind, input, candidate, confidence, improved, cost_usd, created_at FROM identifications WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, _, err := s.GetIdentification(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendEscalations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"escalations"}, []string{
		"id", "request_id", "tier", "model", "confidence", "improved", "duration_ms",
		"input_tokens", "output_tokens", "cost_usd", "error", "candidate", "created_at",
	}).WillReturnResult(2)

	recs := []model.EscalationRecord{
		{RequestID: "req-1", Tier: model.TierFast, Model: "claude-haiku-4-5", Confidence: 60},
		{RequestID: "req-1", Tier: model.TierDetailed, Model: "claude-sonnet-4-5", Confidence: 95, Improved: true},
	}
	require.NoError(t, s.AppendEscalations(context.Background(), recs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendEscalations_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	require.NoError(t, s.AppendEscalations(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListIdentifications(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"id", "kind", "input", "candidate", "confidence", "improved", "cost_usd", "created_at"}).
		AddRow("req-1", "text", strPtr("dusty bottle"), strPtr(`{"name":"Red Blend","producer":null,"vintage":null,"category":null,"grapes":null,"confidence":60}`), 60, false, 0.001, sampleSummary("req-1").CreatedAt)

	mock.ExpectQuery(`SELECT id, kind, input, candidate, confidence, improved, cost_usd, created_at FROM identifications WHERE 1=1 AND confidence >= \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(50, 100).
		WillReturnRows(rows)

	sums, err := s.ListIdentifications(context.Background(), Filter{MinConfidence: 50})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "req-1", sums[0].RequestID)
	assert.Equal(t, 60, sums[0].Confidence)
	require.NotNil(t, sums[0].Candidate)
	assert.Equal(t, "Red Blend", *sums[0].Candidate.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS identifications`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

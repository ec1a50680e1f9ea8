package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cellardex/cellarid/internal/db"
	"github.com/cellardex/cellarid/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_identification":  `SELECT id, kind, input, candidate, confidence, improved, cost_usd, created_at FROM identifications WHERE id = $1`,
	"get_escalations":     `SELECT request_id, tier, model, confidence, improved, duration_ms, input_tokens, output_tokens, cost_usd, error, candidate FROM escalations WHERE request_id = $1 ORDER BY created_at, tier`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS identifications (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	input      TEXT,
	candidate  JSONB,
	confidence INTEGER NOT NULL DEFAULT 0,
	improved   BOOLEAN NOT NULL DEFAULT FALSE,
	cost_usd   DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS escalations (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	request_id    TEXT NOT NULL,
	tier          TEXT NOT NULL,
	model         TEXT NOT NULL,
	confidence    INTEGER NOT NULL DEFAULT 0,
	improved      BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	error         TEXT,
	candidate     JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_identifications_kind ON identifications(kind);
CREATE INDEX IF NOT EXISTS idx_identifications_created_at ON identifications(created_at);
CREATE INDEX IF NOT EXISTS idx_escalations_request_id ON escalations(request_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveIdentification(ctx context.Context, sum model.IdentificationSummary) error {
	var candidateJSON any
	if sum.Candidate != nil {
		b, err := json.Marshal(sum.Candidate)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal candidate")
		}
		candidateJSON = string(b)
	}

	createdAt := sum.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "identifications",
		Columns:      []string{"id", "kind", "input", "candidate", "confidence", "improved", "cost_usd", "created_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"candidate", "confidence", "improved", "cost_usd"},
	}, [][]any{{
		sum.RequestID, string(sum.Kind), sum.Input, candidateJSON,
		sum.Confidence, sum.Improved, sum.CostUSD, createdAt,
	}})
	return eris.Wrapf(err, "postgres: save identification %s", sum.RequestID)
}

func (s *PostgresStore) AppendEscalations(ctx context.Context, recs []model.EscalationRecord) error {
	if len(recs) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(recs))
	now := time.Now().UTC()
	for _, rec := range recs {
		var candidateJSON any
		if rec.Candidate != nil {
			b, err := json.Marshal(rec.Candidate)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal escalation candidate")
			}
			candidateJSON = string(b)
		}
		var errVal any
		if rec.Err != "" {
			errVal = rec.Err
		}
		rows = append(rows, []any{
			uuid.New().String(), rec.RequestID, string(rec.Tier), rec.Model,
			rec.Confidence, rec.Improved, rec.DurationMS,
			rec.Usage.InputTokens, rec.Usage.OutputTokens, rec.CostUSD,
			errVal, candidateJSON, now,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "escalations", []string{
		"id", "request_id", "tier", "model", "confidence", "improved", "duration_ms",
		"input_tokens", "output_tokens", "cost_usd", "error", "candidate", "created_at",
	}, rows)
	return eris.Wrap(err, "postgres: append escalations")
}

func (s *PostgresStore) GetIdentification(ctx context.Context, requestID string) (*model.IdentificationSummary, []model.EscalationRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kind, input, candidate, confidence, improved, cost_usd, created_at FROM identifications WHERE id = $1`,
		requestID,
	)

	sum, err := scanPGSummary(row)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT request_id, tier, model, confidence, improved, duration_ms, input_tokens, output_tokens, cost_usd, error, candidate FROM escalations WHERE request_id = $1 ORDER BY created_at, tier`,
		requestID,
	)
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres: query escalations")
	}
	defer rows.Close()

	var recs []model.EscalationRecord
	for rows.Next() {
		rec, err := scanPGEscalation(rows)
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, *rec)
	}
	return sum, recs, eris.Wrap(rows.Err(), "postgres: iterate escalations")
}

func (s *PostgresStore) ListIdentifications(ctx context.Context, filter Filter) ([]model.IdentificationSummary, error) {
	query := `SELECT id, kind, input, candidate, confidence, improved, cost_usd, created_at FROM identifications WHERE 1=1`
	var args []any
	arg := 0

	next := func(v any) string {
		arg++
		args = append(args, v)
		return placeholder(arg)
	}

	if filter.Kind != "" {
		query += ` AND kind = ` + next(string(filter.Kind))
	}
	if filter.MinConfidence > 0 {
		query += ` AND confidence >= ` + next(filter.MinConfidence)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + next(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + next(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list identifications")
	}
	defer rows.Close()

	var sums []model.IdentificationSummary
	for rows.Next() {
		sum, err := scanPGSummary(rows)
		if err != nil {
			return nil, err
		}
		sums = append(sums, *sum)
	}
	return sums, eris.Wrap(rows.Err(), "postgres: list identifications iterate")
}

// helpers

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func scanPGSummary(row scannable) (*model.IdentificationSummary, error) {
	var sum model.IdentificationSummary
	var kind string
	var input, candidateJSON *string

	err := row.Scan(&sum.RequestID, &kind, &input, &candidateJSON, &sum.Confidence, &sum.Improved, &sum.CostUSD, &sum.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("identification not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan identification")
	}

	sum.Kind = model.InputKind(kind)
	if input != nil {
		sum.Input = *input
	}
	if candidateJSON != nil {
		sum.Candidate = &model.Candidate{}
		if err := json.Unmarshal([]byte(*candidateJSON), sum.Candidate); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal candidate")
		}
	}
	return &sum, nil
}

func scanPGEscalation(row scannable) (*model.EscalationRecord, error) {
	var rec model.EscalationRecord
	var tier string
	var errStr, candidateJSON *string

	err := row.Scan(&rec.RequestID, &tier, &rec.Model, &rec.Confidence, &rec.Improved, &rec.DurationMS,
		&rec.Usage.InputTokens, &rec.Usage.OutputTokens, &rec.CostUSD, &errStr, &candidateJSON)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan escalation")
	}

	rec.Tier = model.TierName(tier)
	if errStr != nil {
		rec.Err = *errStr
	}
	if candidateJSON != nil {
		rec.Candidate = &model.Candidate{}
		if err := json.Unmarshal([]byte(*candidateJSON), rec.Candidate); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal escalation candidate")
		}
	}
	return &rec, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cellardex/cellarid/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS identifications (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	input      TEXT,
	candidate  TEXT,
	confidence INTEGER NOT NULL DEFAULT 0,
	improved   INTEGER NOT NULL DEFAULT 0,
	cost_usd   REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS escalations (
	id            TEXT PRIMARY KEY,
	request_id    TEXT NOT NULL,
	tier          TEXT NOT NULL,
	model         TEXT NOT NULL,
	confidence    INTEGER NOT NULL DEFAULT 0,
	improved      INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	error         TEXT,
	candidate     TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_identifications_kind ON identifications(kind);
CREATE INDEX IF NOT EXISTS idx_identifications_created_at ON identifications(created_at);
CREATE INDEX IF NOT EXISTS idx_escalations_request_id ON escalations(request_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveIdentification(ctx context.Context, sum model.IdentificationSummary) error {
	candidateJSON, err := marshalCandidate(sum.Candidate)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal candidate")
	}

	createdAt := sum.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// A re-identification of the same request replaces the summary; the
	// escalation rows accumulate and keep the full history.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO identifications (id, kind, input, candidate, confidence, improved, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			candidate = excluded.candidate,
			confidence = excluded.confidence,
			improved = excluded.improved,
			cost_usd = excluded.cost_usd`,
		sum.RequestID, string(sum.Kind), sum.Input, candidateJSON,
		sum.Confidence, boolToInt(sum.Improved), sum.CostUSD, createdAt,
	)
	return eris.Wrapf(err, "sqlite: save identification %s", sum.RequestID)
}

func (s *SQLiteStore) AppendEscalations(ctx context.Context, recs []model.EscalationRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, rec := range recs {
		candidateJSON, err := marshalCandidate(rec.Candidate)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal escalation candidate")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO escalations (id, request_id, tier, model, confidence, improved, duration_ms, input_tokens, output_tokens, cost_usd, error, candidate, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), rec.RequestID, string(rec.Tier), rec.Model,
			rec.Confidence, boolToInt(rec.Improved), rec.DurationMS,
			rec.Usage.InputTokens, rec.Usage.OutputTokens, rec.CostUSD,
			nullString(rec.Err), candidateJSON, time.Now().UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert escalation for %s", rec.RequestID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit escalations")
}

func (s *SQLiteStore) GetIdentification(ctx context.Context, requestID string) (*model.IdentificationSummary, []model.EscalationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, input, candidate, confidence, improved, cost_usd, created_at
		 FROM identifications WHERE id = ?`,
		requestID,
	)

	sum, err := scanSummary(row)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, tier, model, confidence, improved, duration_ms, input_tokens, output_tokens, cost_usd, error, candidate
		 FROM escalations WHERE request_id = ? ORDER BY created_at, tier`,
		requestID,
	)
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: query escalations")
	}
	defer rows.Close()

	var recs []model.EscalationRecord
	for rows.Next() {
		rec, err := scanEscalation(rows)
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, *rec)
	}
	return sum, recs, eris.Wrap(rows.Err(), "sqlite: iterate escalations")
}

func (s *SQLiteStore) ListIdentifications(ctx context.Context, filter Filter) ([]model.IdentificationSummary, error) {
	query := `SELECT id, kind, input, candidate, confidence, improved, cost_usd, created_at
	 FROM identifications WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.MinConfidence > 0 {
		query += ` AND confidence >= ?`
		args = append(args, filter.MinConfidence)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list identifications")
	}
	defer rows.Close()

	var sums []model.IdentificationSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		sums = append(sums, *sum)
	}
	return sums, eris.Wrap(rows.Err(), "sqlite: list identifications iterate")
}

// helpers

func marshalCandidate(c *model.Candidate) (sql.NullString, error) {
	if c == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSummary(row scannable) (*model.IdentificationSummary, error) {
	var sum model.IdentificationSummary
	var kind string
	var input, candidateJSON sql.NullString
	var improved int

	err := row.Scan(&sum.RequestID, &kind, &input, &candidateJSON, &sum.Confidence, &improved, &sum.CostUSD, &sum.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("identification not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan identification")
	}

	sum.Kind = model.InputKind(kind)
	sum.Input = input.String
	sum.Improved = improved != 0
	if candidateJSON.Valid {
		sum.Candidate = &model.Candidate{}
		if err := json.Unmarshal([]byte(candidateJSON.String), sum.Candidate); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal candidate")
		}
	}
	return &sum, nil
}

func scanEscalation(row scannable) (*model.EscalationRecord, error) {
	var rec model.EscalationRecord
	var tier string
	var improved int
	var errStr, candidateJSON sql.NullString

	err := row.Scan(&rec.RequestID, &tier, &rec.Model, &rec.Confidence, &improved, &rec.DurationMS,
		&rec.Usage.InputTokens, &rec.Usage.OutputTokens, &rec.CostUSD, &errStr, &candidateJSON)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan escalation")
	}

	rec.Tier = model.TierName(tier)
	rec.Improved = improved != 0
	rec.Err = errStr.String
	if candidateJSON.Valid {
		rec.Candidate = &model.Candidate{}
		if err := json.Unmarshal([]byte(candidateJSON.String), rec.Candidate); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal escalation candidate")
		}
	}
	return &rec, nil
}

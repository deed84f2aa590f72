package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crossfund/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS contributions (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL,
	contributor  TEXT NOT NULL,
	chain        TEXT NOT NULL,
	currency     TEXT NOT NULL,
	amount       DOUBLE PRECISION NOT NULL,
	usd_value    DOUBLE PRECISION NOT NULL,
	tx_hash      TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS contributions_project_idx ON contributions (project_id, recorded_at);
CREATE INDEX IF NOT EXISTS contributions_contributor_idx ON contributions (lower(contributor));
`

// Store provides Postgres persistence for contributions.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the contributions table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Create inserts one contribution. Existing ids are left untouched.
func (s *Store) Create(ctx context.Context, rec model.Contribution) error {
	return s.InsertContributions(ctx, []model.Contribution{rec})
}

// InsertContributions inserts contributions in one batch, skipping known ids.
func (s *Store) InsertContributions(ctx context.Context, recs []model.Contribution) error {
	if len(recs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(`
			INSERT INTO contributions (
				id, project_id, contributor, chain, currency, amount, usd_value, tx_hash, recorded_at, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING
		`,
			rec.ID,
			rec.ProjectID,
			rec.Contributor,
			string(rec.Chain),
			string(rec.Currency),
			rec.Amount,
			rec.USDValue,
			rec.TxHash,
			rec.Timestamp,
			string(rec.Status),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert contribution: %w", err)
		}
	}
	return nil
}

// List returns a project's contributions in recording order.
func (s *Store) List(ctx context.Context, projectID string) ([]model.Contribution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, contributor, chain, currency, amount, usd_value, tx_hash, recorded_at, status
		FROM contributions
		WHERE project_id = $1
		ORDER BY recorded_at, created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query contributions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Contribution, 0)
	for rows.Next() {
		var (
			rec             model.Contribution
			chain, currency string
			status          string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.ProjectID,
			&rec.Contributor,
			&chain,
			&currency,
			&rec.Amount,
			&rec.USDValue,
			&rec.TxHash,
			&rec.Timestamp,
			&status,
		); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		rec.Chain = model.Chain(chain)
		rec.Currency = model.Currency(currency)
		rec.Status = model.Status(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	return out, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/feedrelay/internal/domain"
)

// PostgresStore keeps the document as a single JSONB row. The table is
// created by migrations/000001_pipeline_document.up.sql.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by PostgreSQL. The store takes
// ownership of pool and closes it on Close.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Load(ctx context.Context) (*domain.Document, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM pipeline_document WHERE id = 1`).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	return decodeJSON(body)
}

func (s *PostgresStore) Save(ctx context.Context, doc *domain.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pipeline_document (id, version, body, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			version    = EXCLUDED.version,
			body       = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at`,
		doc.Version, body,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

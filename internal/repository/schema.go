package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS products (
		id             uuid PRIMARY KEY,
		product_id     text NOT NULL,
		source         text NOT NULL,
		product_url    text NOT NULL,
		image_url      text,
		brand          text NOT NULL,
		title          text NOT NULL,
		description    text,
		category       text,
		gender         text,
		price          numeric(12,2),
		currency       text NOT NULL DEFAULT 'EUR',
		second_hand    boolean NOT NULL DEFAULT false,
		sizes          text,
		availability   text,
		metadata       jsonb,
		embedding      vector(768),
		text_embedding vector(1536),
		created_at     timestamptz NOT NULL DEFAULT now(),
		updated_at     timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT products_source_product_url_key UNIQUE (source, product_url)
	)`,
}

// Schema manages the products table through the pgx pool.
type Schema struct {
	Pool *pgxpool.Pool
}

func (s *Schema) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

type Counts struct {
	Total    int64 `json:"total"`
	Embedded int64 `json:"embedded"`
}

func (s *Schema) CountBySource(ctx context.Context, source string) (Counts, error) {
	var c Counts
	err := s.Pool.QueryRow(ctx,
		`SELECT count(*), count(embedding) FROM products WHERE source = $1`, source,
	).Scan(&c.Total, &c.Embedded)
	return c, err
}

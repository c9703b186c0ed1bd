package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"catalogsync/internal/model"
)

var (
	ErrPersist          = errors.New("persist record")
	ErrStoreUnavailable = errors.New("store unavailable")
)

const (
	// writeAttempts is the first try plus one retry.
	writeAttempts = 2
	writeTimeout  = 15 * time.Second
)

const upsertSQL = `
	INSERT INTO products
	(id, product_id, source, product_url, image_url, brand, title, description, category,
	 gender, price, currency, second_hand, sizes, availability, metadata, embedding, text_embedding,
	 created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::jsonb, $17::vector, $18::vector, now(), now())
	ON CONFLICT (source, product_url) DO UPDATE SET
		product_id = EXCLUDED.product_id,
		image_url = EXCLUDED.image_url,
		brand = EXCLUDED.brand,
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		category = EXCLUDED.category,
		gender = EXCLUDED.gender,
		price = EXCLUDED.price,
		currency = EXCLUDED.currency,
		second_hand = EXCLUDED.second_hand,
		sizes = EXCLUDED.sizes,
		availability = EXCLUDED.availability,
		metadata = EXCLUDED.metadata,
		embedding = CASE
			WHEN EXCLUDED.image_url IS NOT DISTINCT FROM products.image_url
			THEN COALESCE(EXCLUDED.embedding, products.embedding)
			ELSE EXCLUDED.embedding
		END,
		text_embedding = CASE
			WHEN EXCLUDED.title IS NOT DISTINCT FROM products.title
			 AND EXCLUDED.description IS NOT DISTINCT FROM products.description
			THEN COALESCE(EXCLUDED.text_embedding, products.text_embedding)
			ELSE EXCLUDED.text_embedding
		END,
		updated_at = now()
`

// ProductRepository writes canonical products keyed by (source, product_url).
type ProductRepository struct {
	DB *sql.DB
}

// RowID is stable for a given source and product URL, so reruns address the
// same row.
func RowID(source, productURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"|"+productURL)).String()
}

func (r *ProductRepository) Ping(ctx context.Context) error {
	if err := r.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Upsert inserts or refreshes one product in a single statement. A failed
// write is retried once before ErrPersist is returned.
func (r *ProductRepository) Upsert(ctx context.Context, p *model.Product) error {
	p.ID = RowID(p.Source, p.ProductURL)

	args := []any{
		p.ID, p.ProductID, p.Source, p.ProductURL, p.ImageURL, p.Brand, p.Title,
		p.Description, p.Category, nullString(p.Gender), p.Price, p.Currency, p.SecondHand,
		p.Sizes, nullString(p.Availability), nullString(string(p.Metadata)),
		vectorLiteral(p.Embedding), vectorLiteral(p.TextEmbedding),
	}

	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		_, err = r.DB.ExecContext(wctx, upsertSQL, args...)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w %s: %w", ErrPersist, p.ProductURL, err)
}

// UpsertAll writes each product independently; errs[i] belongs to products[i].
func (r *ProductRepository) UpsertAll(ctx context.Context, products []model.Product) []error {
	errs := make([]error, len(products))
	for i := range products {
		errs[i] = r.Upsert(ctx, &products[i])
	}
	return errs
}

// ListMissingEmbeddings returns rows that have an image but no embedding yet.
func (r *ProductRepository) ListMissingEmbeddings(ctx context.Context, source string, limit int) ([]model.Product, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, product_id, source, product_url, image_url, title
		FROM products
		WHERE source = $1 AND embedding IS NULL AND image_url IS NOT NULL
		ORDER BY updated_at ASC
		LIMIT $2
	`, source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Product
	for rows.Next() {
		var p model.Product
		var image sql.NullString
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Source, &p.ProductURL, &image, &p.Title); err != nil {
			return nil, err
		}
		if image.Valid {
			p.ImageURL = model.StringPtr(image.String)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *ProductRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE products
		SET embedding = $2::vector, updated_at = now()
		WHERE id = $1
	`, id, vectorLiteral(embedding))
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrPersist, id, err)
	}
	return nil
}

// vectorLiteral renders "[v1,v2,...]" for pgvector, or NULL when empty.
func vectorLiteral(v []float32) sql.NullString {
	if len(v) == 0 {
		return sql.NullString{}
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return sql.NullString{String: "[" + strings.Join(parts, ",") + "]", Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

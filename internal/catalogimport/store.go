package catalogimport

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xenking/eyewear-store/internal/domain/product"
)

// upsertProductSQL keeps the id, image and creation time of an existing row.
// xmax is zero only for freshly inserted rows.
const upsertProductSQL = `INSERT INTO products
	(id, sku, name, brand, description, category, price, stock, attributes, active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (sku) DO UPDATE SET
		name = EXCLUDED.name,
		brand = EXCLUDED.brand,
		description = EXCLUDED.description,
		category = EXCLUDED.category,
		price = EXCLUDED.price,
		stock = EXCLUDED.stock,
		attributes = EXCLUDED.attributes,
		active = EXCLUDED.active,
		updated_at = EXCLUDED.updated_at
	RETURNING (xmax = 0) AS inserted`

type attributes struct {
	Glasses       *product.Glasses       `json:"glasses,omitempty"`
	Sunglasses    *product.Sunglasses    `json:"sunglasses,omitempty"`
	ContactLenses *product.ContactLenses `json:"contact_lenses,omitempty"`
}

var _ Store = (*SQLStore)(nil)

// SQLStore writes feeds through database/sql.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Upsert writes products in a single transaction and rolls it back on the
// first failure.
func (s *SQLStore) Upsert(ctx context.Context, products []product.Product) (c Counts, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return c, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertProductSQL)
	if err != nil {
		return c, fmt.Errorf("preparing upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range products {
		p := &products[i]
		attrs, err := json.Marshal(attributes{
			Glasses:       p.Glasses,
			Sunglasses:    p.Sunglasses,
			ContactLenses: p.ContactLenses,
		})
		if err != nil {
			return Counts{}, fmt.Errorf("marshaling attributes of %q: %w", p.SKU, err)
		}

		var inserted bool
		if err := stmt.QueryRowContext(ctx,
			p.ID, p.SKU, p.Name, p.Brand, p.Description, string(p.Category), p.Price, p.Stock,
			string(attrs), p.Active, p.CreatedAt, p.UpdatedAt,
		).Scan(&inserted); err != nil {
			return Counts{}, fmt.Errorf("upserting product %q: %w", p.SKU, err)
		}
		if inserted {
			c.Inserted++
		} else {
			c.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return Counts{}, fmt.Errorf("committing import: %w", err)
	}
	return c, nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eyewear-store/internal/domain/product"
)

const productColumns = `id, sku, name, brand, description, category, price, stock, attributes,
	image_key, active, created_at, updated_at`

const productFilterSQL = `($1::text = '' OR category = $1)
	AND (NOT $2::boolean OR active)
	AND ($3::text = '' OR name ILIKE $3 OR brand ILIKE $3 OR sku ILIKE $3)`

const (
	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE ` + productFilterSQL + `
		ORDER BY created_at DESC, id LIMIT $4 OFFSET $5`

	countProductsSQL = `SELECT count(*) FROM products WHERE ` + productFilterSQL

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	updateProductSQL = `UPDATE products SET sku = $2, name = $3, brand = $4, description = $5,
		category = $6, price = $7, stock = $8, attributes = $9, active = $10, updated_at = $11
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	setProductImageSQL = `UPDATE products SET image_key = $2, updated_at = now() WHERE id = $1`

	adjustStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

// productAttributes is the JSONB layout of the category subtype.
type productAttributes struct {
	Glasses       *product.Glasses       `json:"glasses,omitempty"`
	Sunglasses    *product.Sunglasses    `json:"sunglasses,omitempty"`
	ContactLenses *product.ContactLenses `json:"contact_lenses,omitempty"`
}

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns a filtered page of products and the number of matches.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, int, error) {
	q := conn(ctx, r.pool)

	pattern := containsPattern(f.Query)

	var total int
	if err := q.QueryRow(ctx, countProductsSQL, string(f.Category), f.ActiveOnly, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	rows, err := q.Query(ctx, listProductsSQL, string(f.Category), f.ActiveOnly, pattern, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	return products, total, nil
}

// likeEscaper escapes LIKE metacharacters with the default backslash escape.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns free text into an ILIKE substring pattern. Empty text
// yields "", which disables the filter.
func containsPattern(q string) string {
	if q == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(q) + "%"
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	attrs, err := marshalAttributes(p)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.pool).Exec(ctx, createProductSQL,
		p.ID, p.SKU, p.Name, p.Brand, p.Description, string(p.Category), p.Price, p.Stock, attrs,
		p.ImageKey, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrDuplicateSKU
		}
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update replaces the catalog fields of a product. The image key is managed
// by SetImage.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	attrs, err := marshalAttributes(p)
	if err != nil {
		return err
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, updateProductSQL,
		p.ID, p.SKU, p.Name, p.Brand, p.Description, string(p.Category), p.Price, p.Stock, attrs,
		p.Active, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrDuplicateSKU
		}
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// SetImage stores the object key of the product image.
func (r *ProductRepository) SetImage(ctx context.Context, id, key string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setProductImageSQL, id, key)
	if err != nil {
		return fmt.Errorf("setting image of product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// AdjustStock adds delta to the stock level in a single conditional update.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, adjustStockSQL, id, delta)
	if err != nil {
		return fmt.Errorf("adjusting stock of product %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %q: %w", id, err)
	}
	if !exists {
		return product.ErrNotFound
	}
	return product.ErrInsufficientStock
}

func marshalAttributes(p *product.Product) ([]byte, error) {
	b, err := json.Marshal(productAttributes{
		Glasses:       p.Glasses,
		Sunglasses:    p.Sunglasses,
		ContactLenses: p.ContactLenses,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling attributes of product %q: %w", p.ID, err)
	}
	return b, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		category string
		attrs    []byte
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Brand, &p.Description, &category, &p.Price, &p.Stock, &attrs,
		&p.ImageKey, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Category = product.Category(category)

	var a productAttributes
	if err := json.Unmarshal(attrs, &a); err != nil {
		return p, fmt.Errorf("decoding attributes of product %q: %w", p.ID, err)
	}
	p.Glasses = a.Glasses
	p.Sunglasses = a.Sunglasses
	p.ContactLenses = a.ContactLenses
	return p, nil
}

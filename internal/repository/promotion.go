package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eyewear-store/internal/domain/promotion"
)

const promotionColumns = `id, name, description, starts_at, ends_at, active, tiers, created_at, updated_at`

const (
	listPromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions ORDER BY starts_at DESC, id`

	getPromotionByIDSQL = `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

	findRunningPromotionSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE active AND starts_at <= $1 AND ends_at >= $1
		ORDER BY starts_at DESC, id LIMIT 1`

	createPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updatePromotionSQL = `UPDATE promotions SET name = $2, description = $3, starts_at = $4, ends_at = $5,
		active = $6, tiers = $7, updated_at = $8 WHERE id = $1`

	deletePromotionSQL = `DELETE FROM promotions WHERE id = $1`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// List returns every promotion, latest start first.
func (r *PromotionRepository) List(ctx context.Context) ([]promotion.Promotion, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listPromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	return pgx.CollectRows(rows, scanPromotion)
}

// GetByID returns a promotion by its identifier.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	return r.getOne(ctx, getPromotionByIDSQL, id)
}

// FindRunning returns the active promotion whose window contains at. When
// several overlap the latest start wins.
func (r *PromotionRepository) FindRunning(ctx context.Context, at time.Time) (*promotion.Promotion, error) {
	return r.getOne(ctx, findRunningPromotionSQL, at)
}

func (r *PromotionRepository) getOne(ctx context.Context, sql string, arg any) (*promotion.Promotion, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting promotion: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("getting promotion: %w", err)
	}
	return &p, nil
}

// Create inserts a new promotion.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	tiers, err := json.Marshal(p.Tiers)
	if err != nil {
		return fmt.Errorf("marshaling promotion tiers: %w", err)
	}
	_, err = conn(ctx, r.pool).Exec(ctx, createPromotionSQL,
		p.ID, p.Name, p.Description, p.StartsAt, p.EndsAt, p.Active, tiers, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating promotion %q: %w", p.ID, err)
	}
	return nil
}

// Update replaces a promotion.
func (r *PromotionRepository) Update(ctx context.Context, p *promotion.Promotion) error {
	tiers, err := json.Marshal(p.Tiers)
	if err != nil {
		return fmt.Errorf("marshaling promotion tiers: %w", err)
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, updatePromotionSQL,
		p.ID, p.Name, p.Description, p.StartsAt, p.EndsAt, p.Active, tiers, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating promotion %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

// Delete removes a promotion.
func (r *PromotionRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deletePromotionSQL, id)
	if err != nil {
		return fmt.Errorf("deleting promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p     promotion.Promotion
		tiers []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.StartsAt, &p.EndsAt, &p.Active, &tiers, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(tiers, &p.Tiers); err != nil {
		return p, fmt.Errorf("decoding tiers of promotion %q: %w", p.ID, err)
	}
	return p, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eyewear-store/internal/domain/settings"
)

const (
	getSettingsSQL = `SELECT store_name, currency, shipping_flat_rate, free_shipping_threshold,
		checkout_enabled, support_email, updated_at FROM settings WHERE id = 1`

	saveSettingsSQL = `INSERT INTO settings (id, store_name, currency, shipping_flat_rate,
		free_shipping_threshold, checkout_enabled, support_email, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			store_name = EXCLUDED.store_name,
			currency = EXCLUDED.currency,
			shipping_flat_rate = EXCLUDED.shipping_flat_rate,
			free_shipping_threshold = EXCLUDED.free_shipping_threshold,
			checkout_enabled = EXCLUDED.checkout_enabled,
			support_email = EXCLUDED.support_email,
			updated_at = EXCLUDED.updated_at`
)

var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository stores the singleton settings row.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the stored settings or settings.ErrNotFound.
func (r *SettingsRepository) Get(ctx context.Context) (*settings.Settings, error) {
	var s settings.Settings
	err := conn(ctx, r.pool).QueryRow(ctx, getSettingsSQL).Scan(
		&s.StoreName, &s.Currency, &s.ShippingFlatRate, &s.FreeShippingThreshold,
		&s.CheckoutEnabled, &s.SupportEmail, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settings.ErrNotFound
		}
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	return &s, nil
}

// Save upserts the settings row.
func (r *SettingsRepository) Save(ctx context.Context, s *settings.Settings) error {
	_, err := conn(ctx, r.pool).Exec(ctx, saveSettingsSQL,
		s.StoreName, s.Currency, s.ShippingFlatRate, s.FreeShippingThreshold,
		s.CheckoutEnabled, s.SupportEmail, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

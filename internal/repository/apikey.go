package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eyewear-store/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT k.id, k.user_id, k.key_hash, k.name, k.scopes, k.active, k.created_at,
		u.role = 'admin' AS owner_admin
		FROM api_keys k JOIN users u ON u.id = k.user_id
		WHERE k.key_hash = $1`

	createAPIKeySQL = `INSERT INTO api_keys (id, user_id, key_hash, name, scopes, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an API key by its HMAC-SHA256 hash together with the
// owner's current role.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKey, error) {
	var k auth.APIKey
	err := conn(ctx, r.pool).QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&k.ID, &k.UserID, &k.KeyHash, &k.Name, &k.Scopes, &k.Active, &k.CreatedAt, &k.OwnerAdmin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &k, nil
}

// Create stores a new API key.
func (r *APIKeyRepository) Create(ctx context.Context, k *auth.APIKey) error {
	scopes := k.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := conn(ctx, r.pool).Exec(ctx, createAPIKeySQL,
		k.ID, k.UserID, k.KeyHash, k.Name, scopes, k.Active, k.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating api key %q: %w", k.ID, err)
	}
	return nil
}

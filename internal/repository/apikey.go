package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/pos-checkout/internal/domain/auth"
)

const getAPIKeyByHashSQL = `SELECT k.id, k.key_hash, u.id, COALESCE(u.business_id, ''), u.role
	FROM api_keys k JOIN users u ON u.id = k.user_id
	WHERE k.key_hash = $1 AND k.active = TRUE`

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	db Querier
}

// NewAPIKeyRepository returns an APIKeyRepository that uses db.
func NewAPIKeyRepository(db Querier) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash together with
// the user it authenticates.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		info auth.APIKeyInfo
		role string
	)
	err := r.db.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.UserID, &info.BusinessID, &role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnauthorized
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	info.Role = auth.Role(role)
	return &info, nil
}

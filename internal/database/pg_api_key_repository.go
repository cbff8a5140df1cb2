package database

import (
	"context"
	"errors"
	"fmt"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ interfaces.APIKeyRepository = (*pgAPIKeyRepository)(nil)

type pgAPIKeyRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

func NewPgAPIKeyRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.APIKeyRepository {
	return &pgAPIKeyRepository{
		db:     db,
		logger: logger.Named("PgAPIKeyRepo"),
	}
}

// FindActiveByPrefix - кандидаты по префиксу; хэш проверяет вызывающий код.
func (r *pgAPIKeyRepository) FindActiveByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := pgxscan.Select(ctx, r.db, &keys, `
SELECT id, user_id, key_prefix, key_hash, scopes, is_active, expires_at, last_used_at, created_at
FROM api_keys
WHERE key_prefix = $1 AND is_active`, prefix)
	if err != nil {
		r.logger.Error("Failed to find api keys by prefix", zap.Error(err))
		return nil, fmt.Errorf("ошибка поиска ключей по префиксу: %w", err)
	}
	return keys, nil
}

func (r *pgAPIKeyRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := pgxscan.Get(ctx, r.db, &user, `SELECT id, email, name, role FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("ошибка получения пользователя %s: %w", userID, err)
	}
	return &user, nil
}

// TouchLastUsed обновляет last_used_at. Ошибку вызывающий код только логирует.
func (r *pgAPIKeyRepository) TouchLastUsed(ctx context.Context, keyID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, keyID); err != nil {
		return fmt.Errorf("ошибка обновления last_used_at ключа %s: %w", keyID, err)
	}
	return nil
}

func (r *pgAPIKeyRepository) CreateUser(ctx context.Context, user *models.User) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO users (id, email, name, role) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, role = EXCLUDED.role`,
		user.ID, user.Email, user.Name, user.Role)
	if err != nil {
		return fmt.Errorf("ошибка создания пользователя %s: %w", user.ID, err)
	}
	return nil
}

func (r *pgAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	err := r.db.QueryRow(ctx, `
INSERT INTO api_keys (user_id, key_prefix, key_hash, scopes, is_active, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`,
		key.UserID, key.KeyPrefix, key.KeyHash, key.Scopes, key.IsActive, key.ExpiresAt,
	).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания ключа для %s: %w", key.UserID, err)
	}
	return nil
}

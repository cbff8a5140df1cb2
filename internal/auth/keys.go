package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"

	"golang.org/x/crypto/bcrypt"
)

const keyPrefix = "fic_"

// IssuedKey - новый ключ. Raw показывается один раз, в БД лежит только хэш.
type IssuedKey struct {
	Key models.APIKey
	Raw string
}

// IssueKey создаёт пользователя (если его нет) и ключ с указанными скоупами.
func IssueKey(ctx context.Context, repo interfaces.APIKeyRepository, user models.User, scopes []string, ttl time.Duration) (*IssuedKey, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrBadRequest)
	}
	for _, s := range scopes {
		switch s {
		case models.ScopeStoriesRead, models.ScopeStoriesWrite, models.ScopeAdminAll:
		default:
			return nil, fmt.Errorf("%w: unknown scope %q", models.ErrBadRequest, s)
		}
	}

	raw, err := newRawKey()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка при хешировании ключа: %w", err)
	}

	if err := repo.CreateUser(ctx, &user); err != nil {
		return nil, err
	}
	key := models.APIKey{
		UserID:    user.ID,
		KeyPrefix: raw[:models.APIKeyPrefixLength],
		KeyHash:   string(hash),
		Scopes:    scopes,
		IsActive:  true,
	}
	if ttl > 0 {
		exp := time.Now().UTC().Add(ttl)
		key.ExpiresAt = &exp
	}
	if err := repo.Create(ctx, &key); err != nil {
		return nil, err
	}
	return &IssuedKey{Key: key, Raw: raw}, nil
}

func newRawKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(buf)
	body = strings.NewReplacer("-", "x", "_", "y").Replace(body)
	return keyPrefix + body, nil
}

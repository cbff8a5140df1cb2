package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
	"go.uber.org/zap"
)

const touchTimeout = 2 * time.Second

var (
	ErrMissingKey = fmt.Errorf("%w: missing api key", models.ErrUnauthorized)
	ErrInvalidKey = fmt.Errorf("%w: invalid api key", models.ErrUnauthorized)
	ErrExpiredKey = fmt.Errorf("%w: api key expired", models.ErrUnauthorized)
)

// Authenticator проверяет API-ключи: кандидаты по префиксу, затем bcrypt по полному ключу.
// Проверенные ключи кэшируются в памяти по SHA-256 от ключа.
type Authenticator struct {
	repo   interfaces.APIKeyRepository
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewAuthenticator(repo interfaces.APIKeyRepository, ttl time.Duration, logger *zap.Logger) *Authenticator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Authenticator{
		repo:   repo,
		cache:  cache.New(ttl, 2*ttl),
		ttl:    ttl,
		logger: logger.Named("Authenticator"),
		now:    time.Now,
	}
}

// Authenticate возвращает владельца и скоупы ключа.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey string) (*models.AuthResult, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, ErrMissingKey
	}
	if len(rawKey) < models.APIKeyPrefixLength {
		return nil, ErrInvalidKey
	}

	cacheKey := fingerprint(rawKey)
	if v, ok := a.cache.Get(cacheKey); ok {
		return v.(*models.AuthResult), nil
	}

	candidates, err := a.repo.FindActiveByPrefix(ctx, rawKey[:models.APIKeyPrefixLength])
	if err != nil {
		return nil, fmt.Errorf("api key lookup failed: %w", err)
	}

	for _, key := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) != nil {
			continue
		}
		if key.ExpiresAt != nil && key.ExpiresAt.Before(a.now()) {
			a.logger.Info("Expired api key used", zap.String("key_id", key.ID.String()), zap.String("user_id", key.UserID))
			return nil, ErrExpiredKey
		}

		res := &models.AuthResult{
			UserID:   key.UserID,
			KeyID:    key.ID,
			Scopes:   key.Scopes,
			Verified: a.now(),
		}
		if user, err := a.repo.GetUser(ctx, key.UserID); err == nil {
			res.Email = user.Email
		} else if !errors.Is(err, models.ErrNotFound) {
			a.logger.Warn("Failed to load api key owner", zap.String("user_id", key.UserID), zap.Error(err))
		}

		a.touch(key)
		// кэш не должен пережить срок действия ключа
		ttl := cache.DefaultExpiration
		if key.ExpiresAt != nil {
			if left := key.ExpiresAt.Sub(a.now()); left < a.ttl {
				ttl = left
			}
		}
		a.cache.Set(cacheKey, res, ttl)
		return res, nil
	}
	return nil, ErrInvalidKey
}

// Invalidate убирает ключ из кэша, например после отзыва.
func (a *Authenticator) Invalidate(rawKey string) {
	a.cache.Delete(fingerprint(rawKey))
}

// touch обновляет last_used_at в фоне. Ошибка не влияет на проверку.
func (a *Authenticator) touch(key models.APIKey) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := a.repo.TouchLastUsed(ctx, key.ID); err != nil {
			a.logger.Warn("Failed to touch api key", zap.String("key_id", key.ID.String()), zap.Error(err))
		}
	}()
}

func fingerprint(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

package handler

import (
	"context"
	"net/http"
	"time"

	"fictures-server/internal/models"
	"fictures-server/internal/service"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	apiKeyHeader = "x-api-key"
	authKey      = "auth"
)

// KeyAuthenticator - то, что middleware нужно от internal/auth.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*models.AuthResult, error)
}

// APIKeyMiddleware проверяет x-api-key и кладёт результат в контекст gin.
func APIKeyMiddleware(authenticator KeyAuthenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := authenticator.Authenticate(c.Request.Context(), c.GetHeader(apiKeyHeader))
		if err != nil {
			logger.Warn("API key verification failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
			handleServiceError(c, err)
			return
		}
		c.Set(authKey, res)
		logger.Debug("API key verified", zap.String("userID", res.UserID), zap.String("keyID", res.KeyID.String()))
		c.Next()
	}
}

// RequireScope должен идти после APIKeyMiddleware.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := authFromContext(c)
		if res == nil || !res.HasScope(scope) {
			zap.L().Warn("Scope check failed", zap.String("required", scope), zap.String("path", c.Request.URL.Path))
			handleServiceError(c, models.ErrForbidden)
			return
		}
		c.Next()
	}
}

func authFromContext(c *gin.Context) *models.AuthResult {
	v, ok := c.Get(authKey)
	if !ok {
		return nil
	}
	res, _ := v.(*models.AuthResult)
	return res
}

func actorFromContext(c *gin.Context) service.Actor {
	return service.ActorFromAuth(authFromContext(c))
}

// NewGenerateRateLimiter ограничивает запуски генерации на пользователя ключа.
func NewGenerateRateLimiter(client *redis.Client, perMinute uint, logger *zap.Logger) gin.HandlerFunc {
	store := ratelimit.RedisStore(&ratelimit.RedisOptions{
		RedisClient: client,
		Rate:        time.Minute,
		Limit:       perMinute,
	})
	return newRateLimiter(store, logger)
}

// NewInMemoryRateLimiter - тот же лимит без Redis, для тестов и локального запуска.
func NewInMemoryRateLimiter(perMinute uint, logger *zap.Logger) gin.HandlerFunc {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: perMinute,
	})
	return newRateLimiter(store, logger)
}

func newRateLimiter(store ratelimit.Store, logger *zap.Logger) gin.HandlerFunc {
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			logger.Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, APIError{
				Code:    ErrCodeTooManyRuns,
				Message: "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			if res := authFromContext(c); res != nil {
				return "user:" + res.UserID
			}
			return "ip:" + c.ClientIP()
		},
	})
}

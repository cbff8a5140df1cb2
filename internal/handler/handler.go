package handler

import (
	"context"
	"net/http"
	"time"

	"fictures-server/internal/models"
	"fictures-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger - проверка доступности БД для /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoryHandler обслуживает HTTP API генерации и управления историями.
type StoryHandler struct {
	runs    service.RunService
	publish service.PublishService
	admin   service.AdminService
	regen   service.RegenerationService
	status  service.StatusService
	auth    KeyAuthenticator
	db      Pinger
	logger  *zap.Logger

	// streamBuffer - ёмкость канала событий одного стрима.
	streamBuffer int
}

func NewStoryHandler(
	runs service.RunService,
	publish service.PublishService,
	admin service.AdminService,
	regen service.RegenerationService,
	status service.StatusService,
	authenticator KeyAuthenticator,
	db Pinger,
	logger *zap.Logger,
) *StoryHandler {
	return &StoryHandler{
		runs:         runs,
		publish:      publish,
		admin:        admin,
		regen:        regen,
		status:       status,
		auth:         authenticator,
		db:           db,
		logger:       logger.Named("StoryHandler"),
		streamBuffer: 256,
	}
}

// RegisterRoutes регистрирует маршруты. generateLimit применяется только к запуску генерации.
func (h *StoryHandler) RegisterRoutes(router gin.IRouter, generateLimit gin.HandlerFunc) {
	router.GET("/health", h.health)
	router.HEAD("/health", h.health)

	api := router.Group("/api/v1", APIKeyMiddleware(h.auth, h.logger))

	read := RequireScope(models.ScopeStoriesRead)
	write := RequireScope(models.ScopeStoriesWrite)
	generate := []gin.HandlerFunc{write}
	if generateLimit != nil {
		generate = append(generate, generateLimit)
	}

	api.POST("/stories/generate", append(generate, h.generateSSE)...)
	api.GET("/stories/generate/ws", append(generate, h.generateWS)...)

	api.GET("/runs/:id", read, h.getRun)
	api.POST("/runs/:id/cancel", write, h.cancelRun)

	stories := api.Group("/stories/:id")
	{
		stories.GET("/status", read, h.storyStatus)
		stories.POST("/publish", write, h.publishStory)
		stories.POST("/unpublish", write, h.unpublishStory)
		stories.POST("/comics/publish", write, h.publishComics)
		stories.POST("/images/regenerate", write, h.regenerateImages)
	}

	admin := api.Group("/admin", RequireScope(models.ScopeAdminAll))
	{
		admin.DELETE("/stories/:id", h.deleteStory)
		admin.DELETE("/users/:userId/stories", h.deleteUserStories)
	}
}

func (h *StoryHandler) health(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("Health check: database ping failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"fictures-server/internal/models"
	"fictures-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (h *StoryHandler) parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("Invalid ID format", zap.String("param", name), zap.String("value", raw))
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Code: ErrCodeBadRequest, Message: "Invalid " + name + " format"})
		return uuid.Nil, false
	}
	return id, true
}

// logUnexpected пишет в лог только ошибки, которые не являются штатным ответом.
func (h *StoryHandler) logUnexpected(msg string, err error, fields ...zap.Field) {
	if errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrRunNotFound) ||
		errors.Is(err, models.ErrRunNotActive) ||
		errors.Is(err, models.ErrConfirmationRequired) ||
		errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrBadRequest) {
		return
	}
	h.logger.Error(msg, append(fields, zap.Error(err))...)
}

func (h *StoryHandler) getRun(c *gin.Context) {
	runID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	record, err := h.runs.Status(c.Request.Context(), actorFromContext(c), runID)
	if err != nil {
		h.logUnexpected("Error getting run status", err, zap.String("run_id", runID.String()))
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *StoryHandler) cancelRun(c *gin.Context) {
	runID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	if err := h.runs.Cancel(c.Request.Context(), actorFromContext(c), runID); err != nil {
		h.logUnexpected("Error cancelling run", err, zap.String("run_id", runID.String()))
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"runId": runID.String(), "status": "cancelling"})
}

func (h *StoryHandler) storyStatus(c *gin.Context) {
	storyID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	report, err := h.status.StoryStatus(c.Request.Context(), actorFromContext(c), storyID)
	if err != nil {
		h.logUnexpected("Error checking story status", err, zap.String("story_id", storyID.String()))
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *StoryHandler) publishStory(c *gin.Context) {
	storyID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	story, err := h.publish.Publish(c.Request.Context(), actorFromContext(c), storyID)
	if err != nil {
		h.logUnexpected("Error publishing story", err, zap.String("story_id", storyID.String()))
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *StoryHandler) unpublishStory(c *gin.Context) {
	storyID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	story, err := h.publish.Unpublish(c.Request.Context(), actorFromContext(c), storyID)
	if err != nil {
		h.logUnexpected("Error unpublishing story", err, zap.String("story_id", storyID.String()))
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *StoryHandler) publishComics(c *gin.Context) {
	storyID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	n, err := h.publish.PublishComics(c.Request.Context(), actorFromContext(c), storyID)
	if err != nil {
		h.logUnexpected("Error publishing comics", err, zap.String("story_id", storyID.String()))
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"storyId": storyID.String(), "scenesPublished": n})
}

type regenerateImagesRequest struct {
	Kinds  []string `json:"kinds"`
	DryRun bool     `json:"dryRun"`
	Force  bool     `json:"force"`
}

func (h *StoryHandler) regenerateImages(c *gin.Context) {
	storyID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req regenerateImagesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Code: ErrCodeBadRequest, Message: "Invalid request body: " + err.Error()})
			return
		}
	}
	opts := service.RegenerateOptions{DryRun: req.DryRun, Force: req.Force}
	for _, k := range req.Kinds {
		kind, err := models.ParseImageKind(k)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Code: ErrCodeBadRequest, Message: err.Error()})
			return
		}
		opts.Kinds = append(opts.Kinds, kind)
	}

	result, err := h.regen.RegenerateImages(c.Request.Context(), actorFromContext(c), storyID, opts)
	if err != nil {
		h.logUnexpected("Error regenerating images", err, zap.String("story_id", storyID.String()))
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func confirmed(c *gin.Context) bool {
	v, err := strconv.ParseBool(c.Query("confirm"))
	return err == nil && v
}

func (h *StoryHandler) deleteStory(c *gin.Context) {
	storyID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	report, err := h.admin.DeleteStory(c.Request.Context(), storyID, confirmed(c))
	if err != nil {
		h.logUnexpected("Error deleting story", err, zap.String("story_id", storyID.String()))
		handleServiceError(c, err)
		return
	}
	h.logger.Info("Story deleted via admin API", zap.String("story_id", storyID.String()), zap.String("by", actorFromContext(c).UserID))
	c.JSON(http.StatusOK, report)
}

func (h *StoryHandler) deleteUserStories(c *gin.Context) {
	userID := c.Param("userId")
	report, err := h.admin.DeleteUserStories(c.Request.Context(), userID, confirmed(c))
	if err != nil {
		h.logUnexpected("Error deleting user stories", err, zap.String("user_id", userID))
		handleServiceError(c, err)
		return
	}
	h.logger.Info("User stories deleted via admin API",
		zap.String("user_id", userID),
		zap.Int("stories", len(report.StoryIDs)),
		zap.String("by", actorFromContext(c).UserID),
	)
	c.JSON(http.StatusOK, report)
}

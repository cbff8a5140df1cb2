package service

import (
	"context"
	"time"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/messaging"
	"fictures-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PublishService - явная публикация. Генерация всегда оставляет историю в writing.
type PublishService interface {
	Publish(ctx context.Context, actor Actor, storyID uuid.UUID) (*models.Story, error)
	Unpublish(ctx context.Context, actor Actor, storyID uuid.UUID) (*models.Story, error)
	// PublishComics переводит черновые комиксы сцен в published. Возвращает число сцен.
	PublishComics(ctx context.Context, actor Actor, storyID uuid.UUID) (int64, error)
}

type publishServiceImpl struct {
	repo      interfaces.StoryRepository
	publisher messaging.NotificationPublisher
	logger    *zap.Logger
}

func NewPublishService(repo interfaces.StoryRepository, publisher messaging.NotificationPublisher, logger *zap.Logger) PublishService {
	return &publishServiceImpl{
		repo:      repo,
		publisher: publisher,
		logger:    logger.Named("PublishService"),
	}
}

func (s *publishServiceImpl) Publish(ctx context.Context, actor Actor, storyID uuid.UUID) (*models.Story, error) {
	story, err := loadOwnedStory(ctx, s.repo, actor, storyID)
	if err != nil {
		return nil, err
	}
	if story.Status == models.StoryStatusPublished {
		return story, nil
	}
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, storyID, models.StoryStatusPublished, &now); err != nil {
		return nil, err
	}
	story.Status = models.StoryStatusPublished
	story.PublishedAt = &now
	s.logger.Info("Story published", zap.String("story_id", storyID.String()), zap.String("by", actor.UserID))

	notify(s.publisher, s.logger, models.RunNotification{
		Event:   models.NotificationStoryPublished,
		StoryID: storyID.String(),
		UserID:  story.UserID,
		Status:  string(story.Status),
	})
	return story, nil
}

func (s *publishServiceImpl) Unpublish(ctx context.Context, actor Actor, storyID uuid.UUID) (*models.Story, error) {
	story, err := loadOwnedStory(ctx, s.repo, actor, storyID)
	if err != nil {
		return nil, err
	}
	if story.Status == models.StoryStatusWriting {
		return story, nil
	}
	if err := s.repo.UpdateStatus(ctx, storyID, models.StoryStatusWriting, nil); err != nil {
		return nil, err
	}
	story.Status = models.StoryStatusWriting
	story.PublishedAt = nil
	s.logger.Info("Story unpublished", zap.String("story_id", storyID.String()), zap.String("by", actor.UserID))

	notify(s.publisher, s.logger, models.RunNotification{
		Event:   models.NotificationStoryUnpublished,
		StoryID: storyID.String(),
		UserID:  story.UserID,
		Status:  string(story.Status),
	})
	return story, nil
}

func (s *publishServiceImpl) PublishComics(ctx context.Context, actor Actor, storyID uuid.UUID) (int64, error) {
	if _, err := loadOwnedStory(ctx, s.repo, actor, storyID); err != nil {
		return 0, err
	}
	n, err := s.repo.PublishComics(ctx, storyID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Comics published", zap.String("story_id", storyID.String()), zap.Int64("scenes", n))
	return n, nil
}

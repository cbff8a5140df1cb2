package service

import (
	"context"
	"fmt"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/messaging"
	"fictures-server/internal/models"
	"fictures-server/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminService - разрушающие операции. Без явного подтверждения ничего не удаляется.
type AdminService interface {
	DeleteStory(ctx context.Context, storyID uuid.UUID, confirm bool) (*models.DeleteReport, error)
	DeleteUserStories(ctx context.Context, userID string, confirm bool) (*models.DeleteReport, error)
}

type adminServiceImpl struct {
	repo      interfaces.StoryRepository
	blobs     storage.BlobStore
	publisher messaging.NotificationPublisher
	logger    *zap.Logger
}

func NewAdminService(repo interfaces.StoryRepository, blobs storage.BlobStore, publisher messaging.NotificationPublisher, logger *zap.Logger) AdminService {
	return &adminServiceImpl{
		repo:      repo,
		blobs:     blobs,
		publisher: publisher,
		logger:    logger.Named("AdminService"),
	}
}

func (s *adminServiceImpl) DeleteStory(ctx context.Context, storyID uuid.UUID, confirm bool) (*models.DeleteReport, error) {
	if !confirm {
		return nil, models.ErrConfirmationRequired
	}
	story, err := s.repo.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return s.deleteStories(ctx, []uuid.UUID{storyID}, story.UserID)
}

func (s *adminServiceImpl) DeleteUserStories(ctx context.Context, userID string, confirm bool) (*models.DeleteReport, error) {
	if !confirm {
		return nil, models.ErrConfirmationRequired
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrBadRequest)
	}
	ids, err := s.repo.ListStoryIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		s.logger.Info("No stories to delete", zap.String("user_id", userID))
		return &models.DeleteReport{StoryIDs: []uuid.UUID{}}, nil
	}
	return s.deleteStories(ctx, ids, userID)
}

// deleteStories: сначала строки в одной транзакции, затем файлы по префиксам видов картинок.
// Ошибки удаления файлов не откатывают удаление строк, они попадают в отчёт.
func (s *adminServiceImpl) deleteStories(ctx context.Context, ids []uuid.UUID, userID string) (*models.DeleteReport, error) {
	log := s.logger.With(zap.String("user_id", userID), zap.Int("stories", len(ids)))

	tables, err := s.repo.DeleteStoriesCascade(ctx, ids)
	if err != nil {
		log.Error("Cascade delete failed", zap.Error(err))
		return nil, err
	}
	report := &models.DeleteReport{StoryIDs: ids, Tables: tables}

	for _, id := range ids {
		for _, kind := range models.AllImageKinds {
			prefix := storage.KindPrefix(id, kind)
			n, err := s.blobs.DeletePrefix(ctx, prefix)
			if err != nil {
				log.Warn("Failed to delete blobs", zap.String("prefix", prefix), zap.Error(err))
				report.BlobErrors = append(report.BlobErrors, fmt.Sprintf("%s: %v", prefix, err))
				continue
			}
			report.Blobs = append(report.Blobs, models.PrefixDeleteCount{Prefix: prefix, Blobs: n})
		}
		notify(s.publisher, s.logger, models.RunNotification{
			Event:   models.NotificationStoryDeleted,
			StoryID: id.String(),
			UserID:  userID,
		})
	}

	log.Info("Stories deleted", zap.Any("tables", report.Tables), zap.Int("blob_prefixes", len(report.Blobs)))
	return report, nil
}

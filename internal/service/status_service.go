package service

import (
	"context"
	"fmt"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusService сверяет записанный граф с тем, что запрашивалось.
// Незавершённый запуск оставляет историю с меньшим числом частей, глав или сцен.
type StatusService interface {
	StoryStatus(ctx context.Context, actor Actor, storyID uuid.UUID) (*models.StoryStatusReport, error)
}

type statusServiceImpl struct {
	repo   interfaces.StoryReader
	logger *zap.Logger
}

func NewStatusService(repo interfaces.StoryReader, logger *zap.Logger) StatusService {
	return &statusServiceImpl{repo: repo, logger: logger.Named("StatusService")}
}

func (s *statusServiceImpl) StoryStatus(ctx context.Context, actor Actor, storyID uuid.UUID) (*models.StoryStatusReport, error) {
	story, err := loadOwnedStory(ctx, s.repo, actor, storyID)
	if err != nil {
		return nil, err
	}
	actual, err := s.repo.CountChildren(ctx, storyID)
	if err != nil {
		return nil, err
	}

	report := &models.StoryStatusReport{
		StoryID:  storyID,
		Status:   story.Status,
		Expected: story.Expected,
		Actual:   actual,
	}
	check := func(name string, expected, got int) {
		if got < expected {
			report.Missing = append(report.Missing, fmt.Sprintf("%s: expected %d, got %d", name, expected, got))
		}
	}
	check("parts", story.Expected.Parts, actual.Parts)
	check("chapters", story.Expected.Chapters, actual.Chapters)
	check("scenes", story.Expected.Scenes, actual.Scenes)
	report.Complete = len(report.Missing) == 0

	if !report.Complete {
		s.logger.Debug("Story graph incomplete", zap.String("story_id", storyID.String()), zap.Strings("missing", report.Missing))
	}
	return report, nil
}

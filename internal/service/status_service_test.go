package service_test

import (
	"context"
	"testing"

	"fictures-server/internal/mocks"
	"fictures-server/internal/models"
	"fictures-server/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStatusService_StoryStatus(t *testing.T) {
	ctx := context.Background()
	actor := service.Actor{UserID: "user-1"}
	expected := models.ExpectedCount{Parts: 1, Chapters: 2, Scenes: 6}

	tests := []struct {
		name     string
		actual   models.StoryChildCounts
		complete bool
		missing  int
	}{
		{"complete graph", models.StoryChildCounts{Parts: 1, Chapters: 2, Scenes: 6}, true, 0},
		{"scenes missing", models.StoryChildCounts{Parts: 1, Chapters: 2, Scenes: 4}, false, 1},
		{"only story", models.StoryChildCounts{}, false, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := mocks.NewMockStoryRepository(t)
			svc := service.NewStatusService(repo, zap.NewNop())

			id := uuid.New()
			repo.On("GetStory", ctx, id).Return(&models.Story{ID: id, UserID: "user-1", Status: models.StoryStatusWriting, Expected: expected}, nil).Once()
			repo.On("CountChildren", ctx, id).Return(tc.actual, nil).Once()

			report, err := svc.StoryStatus(ctx, actor, id)
			require.NoError(t, err)
			assert.Equal(t, tc.complete, report.Complete)
			assert.Len(t, report.Missing, tc.missing)
			assert.Equal(t, expected, report.Expected)
			assert.Equal(t, tc.actual, report.Actual)
		})
	}
}

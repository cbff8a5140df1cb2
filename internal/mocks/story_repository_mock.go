package mocks

import (
	"context"
	"time"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStoryRepository is a mock type for the StoryRepository type
type MockStoryRepository struct {
	mock.Mock
}

func errorAt(ret mock.Arguments, i int) error {
	if ret.Get(i) == nil {
		return nil
	}
	return ret.Error(i)
}

// InsertStory provides a mock function with given fields: ctx, story
func (_m *MockStoryRepository) InsertStory(ctx context.Context, story *models.Story) error {
	ret := _m.Called(ctx, story)
	if rf, ok := ret.Get(0).(func(context.Context, *models.Story) error); ok {
		return rf(ctx, story)
	}
	return errorAt(ret, 0)
}

// InsertCharacters provides a mock function with given fields: ctx, storyID, characters
func (_m *MockStoryRepository) InsertCharacters(ctx context.Context, storyID uuid.UUID, characters []*models.Character) error {
	ret := _m.Called(ctx, storyID, characters)
	return errorAt(ret, 0)
}

// InsertSettings provides a mock function with given fields: ctx, storyID, settings
func (_m *MockStoryRepository) InsertSettings(ctx context.Context, storyID uuid.UUID, settings []*models.Setting) error {
	ret := _m.Called(ctx, storyID, settings)
	return errorAt(ret, 0)
}

// InsertParts provides a mock function with given fields: ctx, storyID, parts
func (_m *MockStoryRepository) InsertParts(ctx context.Context, storyID uuid.UUID, parts []*models.Part) error {
	ret := _m.Called(ctx, storyID, parts)
	return errorAt(ret, 0)
}

// InsertChapters provides a mock function with given fields: ctx, storyID, chapters
func (_m *MockStoryRepository) InsertChapters(ctx context.Context, storyID uuid.UUID, chapters []*models.Chapter) error {
	ret := _m.Called(ctx, storyID, chapters)
	return errorAt(ret, 0)
}

// InsertScenes provides a mock function with given fields: ctx, storyID, scenes
func (_m *MockStoryRepository) InsertScenes(ctx context.Context, storyID uuid.UUID, scenes []*models.Scene) error {
	ret := _m.Called(ctx, storyID, scenes)
	return errorAt(ret, 0)
}

// InsertComicPanels provides a mock function with given fields: ctx, storyID, sceneID, panels
func (_m *MockStoryRepository) InsertComicPanels(ctx context.Context, storyID, sceneID uuid.UUID, panels []*models.ComicPanel) error {
	ret := _m.Called(ctx, storyID, sceneID, panels)
	return errorAt(ret, 0)
}

// AttachImage provides a mock function with given fields: ctx, kind, entityID, ref
func (_m *MockStoryRepository) AttachImage(ctx context.Context, kind models.ImageKind, entityID uuid.UUID, ref models.ImageRef) error {
	ret := _m.Called(ctx, kind, entityID, ref)
	return errorAt(ret, 0)
}

// UpdateSceneComicStatus provides a mock function with given fields: ctx, sceneID, status
func (_m *MockStoryRepository) UpdateSceneComicStatus(ctx context.Context, sceneID uuid.UUID, status models.ComicStatus) error {
	ret := _m.Called(ctx, sceneID, status)
	return errorAt(ret, 0)
}

// GetStory provides a mock function with given fields: ctx, id
func (_m *MockStoryRepository) GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	ret := _m.Called(ctx, id)
	var r0 *models.Story
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.Story)
	}
	return r0, errorAt(ret, 1)
}

// ListCharacters provides a mock function with given fields: ctx, storyID
func (_m *MockStoryRepository) ListCharacters(ctx context.Context, storyID uuid.UUID) ([]*models.Character, error) {
	ret := _m.Called(ctx, storyID)
	var r0 []*models.Character
	if v := ret.Get(0); v != nil {
		r0 = v.([]*models.Character)
	}
	return r0, errorAt(ret, 1)
}

// ListSettings provides a mock function with given fields: ctx, storyID
func (_m *MockStoryRepository) ListSettings(ctx context.Context, storyID uuid.UUID) ([]*models.Setting, error) {
	ret := _m.Called(ctx, storyID)
	var r0 []*models.Setting
	if v := ret.Get(0); v != nil {
		r0 = v.([]*models.Setting)
	}
	return r0, errorAt(ret, 1)
}

// ListScenes provides a mock function with given fields: ctx, storyID
func (_m *MockStoryRepository) ListScenes(ctx context.Context, storyID uuid.UUID) ([]*models.Scene, error) {
	ret := _m.Called(ctx, storyID)
	var r0 []*models.Scene
	if v := ret.Get(0); v != nil {
		r0 = v.([]*models.Scene)
	}
	return r0, errorAt(ret, 1)
}

// ListComicPanels provides a mock function with given fields: ctx, storyID
func (_m *MockStoryRepository) ListComicPanels(ctx context.Context, storyID uuid.UUID) ([]*models.ComicPanel, error) {
	ret := _m.Called(ctx, storyID)
	var r0 []*models.ComicPanel
	if v := ret.Get(0); v != nil {
		r0 = v.([]*models.ComicPanel)
	}
	return r0, errorAt(ret, 1)
}

// CountChildren provides a mock function with given fields: ctx, storyID
func (_m *MockStoryRepository) CountChildren(ctx context.Context, storyID uuid.UUID) (models.StoryChildCounts, error) {
	ret := _m.Called(ctx, storyID)
	var r0 models.StoryChildCounts
	if v := ret.Get(0); v != nil {
		r0 = v.(models.StoryChildCounts)
	}
	return r0, errorAt(ret, 1)
}

// ListStoryIDsByUser provides a mock function with given fields: ctx, userID
func (_m *MockStoryRepository) ListStoryIDsByUser(ctx context.Context, userID string) ([]uuid.UUID, error) {
	ret := _m.Called(ctx, userID)
	var r0 []uuid.UUID
	if v := ret.Get(0); v != nil {
		r0 = v.([]uuid.UUID)
	}
	return r0, errorAt(ret, 1)
}

// UpdateStatus provides a mock function with given fields: ctx, id, status, publishedAt
func (_m *MockStoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus, publishedAt *time.Time) error {
	ret := _m.Called(ctx, id, status, publishedAt)
	return errorAt(ret, 0)
}

// PublishComics provides a mock function with given fields: ctx, storyID
func (_m *MockStoryRepository) PublishComics(ctx context.Context, storyID uuid.UUID) (int64, error) {
	ret := _m.Called(ctx, storyID)
	var r0 int64
	if v := ret.Get(0); v != nil {
		r0 = v.(int64)
	}
	return r0, errorAt(ret, 1)
}

// DeleteStoriesCascade provides a mock function with given fields: ctx, storyIDs
func (_m *MockStoryRepository) DeleteStoriesCascade(ctx context.Context, storyIDs []uuid.UUID) ([]models.TableDeleteCount, error) {
	ret := _m.Called(ctx, storyIDs)
	var r0 []models.TableDeleteCount
	if v := ret.Get(0); v != nil {
		r0 = v.([]models.TableDeleteCount)
	}
	return r0, errorAt(ret, 1)
}

// NewMockStoryRepository creates a new instance of MockStoryRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStoryRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryRepository {
	m := &MockStoryRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.StoryRepository = (*MockStoryRepository)(nil)

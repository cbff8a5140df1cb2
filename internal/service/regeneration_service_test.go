package service_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"fictures-server/internal/clients"
	"fictures-server/internal/imaging"
	"fictures-server/internal/mocks"
	"fictures-server/internal/models"
	"fictures-server/internal/pipeline"
	"fictures-server/internal/prompts"
	"fictures-server/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func tinyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type regenFixture struct {
	svc    service.RegenerationService
	repo   *mocks.MockStoryRepository
	images *mocks.MockImageGenerator
	blobs  *mocks.MockBlobStore
	story  *models.Story
}

// newRegenFixture: у истории есть обложка, один персонаж с картинкой и один без, одна сцена без картинки.
func newRegenFixture(t *testing.T) (*regenFixture, *models.Character, *models.Scene) {
	repo := mocks.NewMockStoryRepository(t)
	images := mocks.NewMockImageGenerator(t)
	blobs := mocks.NewMockBlobStore(t)

	lib := prompts.MustLoad()
	fanout := pipeline.NewImageFanout(images, blobs, repo, imaging.NewValidator(models.DefaultImageSpecs()), lib.Negative(),
		pipeline.FanoutConfig{Concurrency: 1}, zap.NewNop())
	svc := service.NewRegenerationService(repo, pipeline.NewTargets(lib, zap.NewNop()), fanout, zap.NewNop())

	story := &models.Story{ID: uuid.New(), UserID: "user-1", Title: "Salt Road", Image: models.ImageRef{URL: "https://cdn/cover.png"}}
	withImage := &models.Character{ID: uuid.New(), StoryID: story.ID, Name: "Mira", Image: models.ImageRef{URL: "https://cdn/mira.png"}}
	without := &models.Character{ID: uuid.New(), StoryID: story.ID, Name: "Oren"}
	scene := &models.Scene{ID: uuid.New(), StoryID: story.ID, Title: "The Ferry"}

	repo.On("GetStory", mock.Anything, story.ID).Return(story, nil)
	repo.On("ListCharacters", mock.Anything, story.ID).Return([]*models.Character{withImage, without}, nil).Maybe()
	repo.On("ListSettings", mock.Anything, story.ID).Return([]*models.Setting{}, nil).Maybe()
	repo.On("ListScenes", mock.Anything, story.ID).Return([]*models.Scene{scene}, nil).Maybe()
	repo.On("ListComicPanels", mock.Anything, story.ID).Return([]*models.ComicPanel{}, nil).Maybe()

	return &regenFixture{svc: svc, repo: repo, images: images, blobs: blobs, story: story}, without, scene
}

func TestRegenerationService_DryRunPlansMissingOnly(t *testing.T) {
	f, without, scene := newRegenFixture(t)

	res, err := f.svc.RegenerateImages(context.Background(), service.Actor{UserID: "user-1"}, f.story.ID, service.RegenerateOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Nil(t, res.Report)

	require.Len(t, res.Planned, 2)
	assert.Equal(t, models.ImageKindCharacter, res.Planned[0].Kind)
	assert.Equal(t, without.ID, res.Planned[0].EntityID)
	assert.Equal(t, models.ImageKindScene, res.Planned[1].Kind)
	assert.Equal(t, scene.ID, res.Planned[1].EntityID)
	assert.NotEmpty(t, res.Planned[0].Prompt)

	f.images.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything)
}

func TestRegenerationService_ForceAndKinds(t *testing.T) {
	f, _, _ := newRegenFixture(t)

	res, err := f.svc.RegenerateImages(context.Background(), service.Actor{UserID: "user-1"}, f.story.ID, service.RegenerateOptions{
		DryRun: true,
		Force:  true,
		Kinds:  []models.ImageKind{models.ImageKindStory, models.ImageKindCharacter},
	})
	require.NoError(t, err)
	require.Len(t, res.Planned, 3)
	assert.Equal(t, models.ImageKindStory, res.Planned[0].Kind)
	f.repo.AssertNotCalled(t, "ListScenes", mock.Anything, mock.Anything)
}

func TestRegenerationService_RunsFanout(t *testing.T) {
	f, without, scene := newRegenFixture(t)
	ctx := context.Background()

	f.images.On("GenerateImage", mock.Anything, mock.MatchedBy(func(r clients.ImageRequest) bool {
		return r.Width == 1024 && r.Height == 1024
	})).Return(clients.ImageResult{Data: tinyPNG(t, 64, 64)}, nil).Once()
	f.images.On("GenerateImage", mock.Anything, mock.Anything).Return(clients.ImageResult{}, errors.New("backend busy")).Once()
	f.blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, "image/png").Return("https://cdn/oren.png", nil).Once()
	f.repo.On("AttachImage", mock.Anything, models.ImageKindCharacter, without.ID, mock.MatchedBy(func(ref models.ImageRef) bool {
		return ref.URL == "https://cdn/oren.png"
	})).Return(nil).Once()

	res, err := f.svc.RegenerateImages(ctx, service.Actor{UserID: "user-1"}, f.story.ID, service.RegenerateOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Report)
	assert.Equal(t, 2, res.Report.Total)
	assert.Equal(t, 1, res.Report.Succeeded)
	assert.Equal(t, 1, res.Report.Failed)
	require.Len(t, res.Report.Failures, 1)
	assert.Equal(t, scene.ID, res.Report.Failures[0].EntityID)
}

func TestRegenerationService_ForeignStory(t *testing.T) {
	f, _, _ := newRegenFixture(t)

	_, err := f.svc.RegenerateImages(context.Background(), service.Actor{UserID: "user-2"}, f.story.ID, service.RegenerateOptions{DryRun: true})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

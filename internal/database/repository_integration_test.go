//go:build integration

package database_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fictures-server/internal/database"
	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"
	"fictures-server/pkg/migration"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type RepositoryIntegrationSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	rdContainer *tcredis.RedisContainer
	pool        *pgxpool.Pool
	redisClient *redis.Client
	repo        interfaces.StoryRepository
	keys        interfaces.APIKeyRepository
	runs        interfaces.RunStateStore
}

func TestRepositoryIntegration(t *testing.T) {
	suite.Run(t, new(RepositoryIntegrationSuite))
}

func (s *RepositoryIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	logger := zap.NewNop()

	pgContainer, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fictures-test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)
	s.pool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err)

	migrator := migration.NewMigrator(database.MigrationConfig(), s.pool, logger)
	require.NoError(s.T(), migrator.Up())
	version, dirty, err := migrator.Version()
	require.NoError(s.T(), err)
	require.False(s.T(), dirty)
	require.Equal(s.T(), uint(1), version)

	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").WithOccurrence(1).WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(s.T(), err)
	host, err := s.rdContainer.Host(s.ctx)
	require.NoError(s.T(), err)
	port, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	require.NoError(s.T(), err)
	s.redisClient = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(s.T(), s.redisClient.Ping(s.ctx).Err())

	s.repo = database.NewPgStoryRepository(s.pool, logger)
	s.keys = database.NewPgAPIKeyRepository(s.pool, logger)
	s.runs = database.NewRedisRunStore(s.redisClient, time.Minute, logger)
}

func (s *RepositoryIntegrationSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

// seedGraph пишет небольшой граф: 2 персонажа, 1 локация, 1 часть, 2 главы по 2 сцены, 1 панель.
func (s *RepositoryIntegrationSuite) seedGraph(userID string) (*models.Story, []*models.Scene) {
	t := s.T()
	story := &models.Story{
		UserID:   userID,
		Title:    "The Lighthouse Keeper",
		Summary:  "A keeper guards a light nobody needs.",
		Genre:    "literary",
		Tone:     models.ToneBittersweet,
		Language: "en",
		Expected: models.ExpectedCount{Parts: 1, Chapters: 2, Scenes: 4},
	}
	require.NoError(t, s.repo.InsertStory(s.ctx, story))
	require.NotEqual(t, uuid.Nil, story.ID)

	chars := []*models.Character{
		{Name: "Mara", IsMain: true, Personality: map[string]string{"traits": "stubborn"}, Relationships: map[string]string{"Ilan": "brother"}},
		{Name: "Ilan"},
	}
	require.NoError(t, s.repo.InsertCharacters(s.ctx, story.ID, chars))
	settings := []*models.Setting{{Name: "The Lighthouse", SensoryDetails: []string{"salt", "wind"}}}
	require.NoError(t, s.repo.InsertSettings(s.ctx, story.ID, settings))

	parts := []*models.Part{{Title: "Part One", CharacterArcs: []models.CharacterArc{{CharacterID: &chars[0].ID, Arc: "from duty to choice"}}}}
	require.NoError(t, s.repo.InsertParts(s.ctx, story.ID, parts))

	chapters := []*models.Chapter{
		{PartID: &parts[0].ID, Title: "Fog", OrderIndex: 0, CharacterID: &chars[0].ID, FocusCharacters: []uuid.UUID{chars[0].ID, chars[1].ID}},
		{PartID: &parts[0].ID, Title: "Storm", OrderIndex: 1},
	}
	require.NoError(t, s.repo.InsertChapters(s.ctx, story.ID, chapters))

	var scenes []*models.Scene
	for _, ch := range chapters {
		for i := 0; i < 2; i++ {
			scenes = append(scenes, &models.Scene{
				ChapterID:  ch.ID,
				SettingID:  &settings[0].ID,
				Title:      fmt.Sprintf("%s %d", ch.Title, i),
				OrderIndex: i,
			})
		}
	}
	require.NoError(t, s.repo.InsertScenes(s.ctx, story.ID, scenes))

	panels := []*models.ComicPanel{{PanelNumber: 1, ShotType: "wide", Dialogue: []models.DialogueLine{{Speaker: "Mara", Text: "Again."}}}}
	require.NoError(t, s.repo.InsertComicPanels(s.ctx, story.ID, scenes[0].ID, panels))
	require.NoError(t, s.repo.UpdateSceneComicStatus(s.ctx, scenes[0].ID, models.ComicStatusDraft))
	return story, scenes
}

func (s *RepositoryIntegrationSuite) TestInsertAndReadGraph() {
	t := s.T()
	story, scenes := s.seedGraph("user-read")

	got, err := s.repo.GetStory(s.ctx, story.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StoryStatusWriting, got.Status)
	assert.Equal(t, story.Expected, got.Expected)
	assert.False(t, got.Image.Present())

	counts, err := s.repo.CountChildren(s.ctx, story.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StoryChildCounts{Characters: 2, Settings: 1, Parts: 1, Chapters: 2, Scenes: 4, ComicPanels: 1}, counts)

	listed, err := s.repo.ListScenes(s.ctx, story.ID)
	require.NoError(t, err)
	require.Len(t, listed, 4)
	for i := range scenes {
		assert.Equal(t, scenes[i].ID, listed[i].ID, "scene order must follow chapter then index")
	}
	assert.Equal(t, models.ComicStatusDraft, listed[0].ComicStatus)

	chars, err := s.repo.ListCharacters(s.ctx, story.ID)
	require.NoError(t, err)
	require.Len(t, chars, 2)
	assert.Equal(t, "brother", chars[0].Relationships["Ilan"])

	panels, err := s.repo.ListComicPanels(s.ctx, story.ID)
	require.NoError(t, err)
	require.Len(t, panels, 1)
	assert.Equal(t, "Mara", panels[0].Dialogue[0].Speaker)
}

func (s *RepositoryIntegrationSuite) TestAttachImageAndPublish() {
	t := s.T()
	story, scenes := s.seedGraph("user-publish")

	ref := models.ImageRef{
		URL:      "https://cdn.example/stories/x/story/y/original.png",
		Variants: models.ImageVariantSet{{Name: "w640", URL: "https://cdn.example/w640.jpg", Width: 640, Height: 366, Format: "jpeg"}},
	}
	require.NoError(t, s.repo.AttachImage(s.ctx, models.ImageKindStory, story.ID, ref))
	require.NoError(t, s.repo.AttachImage(s.ctx, models.ImageKindScene, scenes[1].ID, ref))
	assert.ErrorIs(t, s.repo.AttachImage(s.ctx, models.ImageKindCharacter, uuid.New(), ref), models.ErrNotFound)

	got, err := s.repo.GetStory(s.ctx, story.ID)
	require.NoError(t, err)
	assert.Equal(t, ref, got.Image)

	now := time.Now().UTC()
	require.NoError(t, s.repo.UpdateStatus(s.ctx, story.ID, models.StoryStatusPublished, &now))
	got, err = s.repo.GetStory(s.ctx, story.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StoryStatusPublished, got.Status)
	require.NotNil(t, got.PublishedAt)

	n, err := s.repo.PublishComics(s.ctx, story.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.ErrorIs(t, s.repo.UpdateStatus(s.ctx, uuid.New(), models.StoryStatusPublished, nil), models.ErrNotFound)
}

func (s *RepositoryIntegrationSuite) TestDeleteStoriesCascade() {
	t := s.T()
	a, _ := s.seedGraph("user-delete")
	b, _ := s.seedGraph("user-delete")

	ids, err := s.repo.ListStoryIDsByUser(s.ctx, "user-delete")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids)

	counts, err := s.repo.DeleteStoriesCascade(s.ctx, ids)
	require.NoError(t, err)
	require.Len(t, counts, len(database.CascadeDeleteOrder))
	for i, table := range database.CascadeDeleteOrder {
		assert.Equal(t, table, counts[i].Table)
	}
	report := models.DeleteReport{Tables: counts}
	assert.EqualValues(t, 2, report.Rows("comic_panels"))
	assert.EqualValues(t, 8, report.Rows("scenes"))
	assert.EqualValues(t, 4, report.Rows("chapters"))
	assert.EqualValues(t, 2, report.Rows("stories"))

	_, err = s.repo.GetStory(s.ctx, a.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func (s *RepositoryIntegrationSuite) TestAPIKeys() {
	t := s.T()
	require.NoError(t, s.keys.CreateUser(s.ctx, &models.User{ID: "u-keys", Email: "writer@fictures.xyz", Name: "Writer", Role: "writer"}))

	key := &models.APIKey{UserID: "u-keys", KeyPrefix: "fic_abcdefghijkl", KeyHash: "$2a$10$hash", Scopes: []string{models.ScopeStoriesWrite}, IsActive: true}
	require.NoError(t, s.keys.Create(s.ctx, key))

	found, err := s.keys.FindActiveByPrefix(s.ctx, "fic_abcdefghijkl")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []string{models.ScopeStoriesWrite}, found[0].Scopes)
	assert.Nil(t, found[0].LastUsedAt)

	require.NoError(t, s.keys.TouchLastUsed(s.ctx, key.ID))
	found, err = s.keys.FindActiveByPrefix(s.ctx, "fic_abcdefghijkl")
	require.NoError(t, err)
	assert.NotNil(t, found[0].LastUsedAt)

	user, err := s.keys.GetUser(s.ctx, "u-keys")
	require.NoError(t, err)
	assert.Equal(t, "writer@fictures.xyz", user.Email)
}

func (s *RepositoryIntegrationSuite) TestRedisRunStore() {
	t := s.T()
	runID := uuid.New()
	_, err := s.runs.Get(s.ctx, runID)
	assert.ErrorIs(t, err, models.ErrRunNotFound)

	require.NoError(t, s.runs.Save(s.ctx, models.RunRecord{
		RunID:  runID,
		UserID: "u1",
		Status: models.RunStatusRunning,
		Phase:  string(models.PhaseChapters),
	}))
	got, err := s.runs.Get(s.ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.Equal(t, "chapters", got.Phase)
	assert.False(t, got.UpdatedAt.IsZero())

	ttl, err := s.redisClient.TTL(s.ctx, "fictures:run:"+runID.String()).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}

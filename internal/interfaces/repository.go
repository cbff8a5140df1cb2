package interfaces

import (
	"context"
	"time"

	"fictures-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX - общий интерфейс для *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// StoryGraphWriter пишет граф истории. Каждый Insert* - один батч, durable ID
// назначает база и они проставляются в переданные структуры.
type StoryGraphWriter interface {
	InsertStory(ctx context.Context, story *models.Story) error
	InsertCharacters(ctx context.Context, storyID uuid.UUID, characters []*models.Character) error
	InsertSettings(ctx context.Context, storyID uuid.UUID, settings []*models.Setting) error
	InsertParts(ctx context.Context, storyID uuid.UUID, parts []*models.Part) error
	InsertChapters(ctx context.Context, storyID uuid.UUID, chapters []*models.Chapter) error
	InsertScenes(ctx context.Context, storyID uuid.UUID, scenes []*models.Scene) error
	InsertComicPanels(ctx context.Context, storyID, sceneID uuid.UUID, panels []*models.ComicPanel) error

	// AttachImage обновляет image_url и image_variants сущности нужного вида.
	AttachImage(ctx context.Context, kind models.ImageKind, entityID uuid.UUID, ref models.ImageRef) error
	UpdateSceneComicStatus(ctx context.Context, sceneID uuid.UUID, status models.ComicStatus) error
}

// StoryReader читает уже записанный граф.
type StoryReader interface {
	GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error)
	ListCharacters(ctx context.Context, storyID uuid.UUID) ([]*models.Character, error)
	ListSettings(ctx context.Context, storyID uuid.UUID) ([]*models.Setting, error)
	ListScenes(ctx context.Context, storyID uuid.UUID) ([]*models.Scene, error)
	ListComicPanels(ctx context.Context, storyID uuid.UUID) ([]*models.ComicPanel, error)
	CountChildren(ctx context.Context, storyID uuid.UUID) (models.StoryChildCounts, error)
	ListStoryIDsByUser(ctx context.Context, userID string) ([]uuid.UUID, error)
}

// StoryRepository - полный набор операций над историями.
type StoryRepository interface {
	StoryGraphWriter
	StoryReader

	// UpdateStatus меняет статус истории. publishedAt == nil сбрасывает дату публикации.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus, publishedAt *time.Time) error
	// PublishComics переводит draft-комиксы сцен истории в published, возвращает число сцен.
	PublishComics(ctx context.Context, storyID uuid.UUID) (int64, error)
	// DeleteStoriesCascade удаляет истории и всё, чем они владеют, в обратном порядке зависимостей.
	DeleteStoriesCascade(ctx context.Context, storyIDs []uuid.UUID) ([]models.TableDeleteCount, error)
}

// APIKeyRepository - ключи доступа и их владельцы.
type APIKeyRepository interface {
	FindActiveByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	TouchLastUsed(ctx context.Context, keyID uuid.UUID) error
	CreateUser(ctx context.Context, user *models.User) error
	Create(ctx context.Context, key *models.APIKey) error
}

// RunStateStore хранит живой статус запусков.
type RunStateStore interface {
	Save(ctx context.Context, record models.RunRecord) error
	Get(ctx context.Context, runID uuid.UUID) (*models.RunRecord, error)
}

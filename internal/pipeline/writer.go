package pipeline

import (
	"context"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Graph - всё, что текстовые фазы сгенерировали за запуск, до записи в базу.
// Scenes упорядочены по главам, внутри главы по OrderIndex.
type Graph struct {
	Story      *models.Story
	Characters []*models.Character
	Settings   []*models.Setting
	Parts      []*models.Part
	Chapters   []*models.Chapter
	Scenes     []*models.Scene
}

// Writer пишет граф по видам сущностей, одной пачкой на вид, в порядке зависимостей.
// Общей транзакции нет: каждая пачка коммитится сама.
type Writer struct {
	repo   interfaces.StoryGraphWriter
	logger *zap.Logger
}

func NewWriter(repo interfaces.StoryGraphWriter, logger *zap.Logger) *Writer {
	return &Writer{repo: repo, logger: logger.Named("PersistenceWriter")}
}

// WriteStep - коллбэк после каждой закоммиченной пачки.
type WriteStep func(kind models.EntityKind, rows int)

// Persist записывает граф. Ссылки переписываются через remap перед вставкой каждого вида.
func (w *Writer) Persist(ctx context.Context, g *Graph, remap *Remapper, step WriteStep) (models.RunCounts, error) {
	var counts models.RunCounts
	if step == nil {
		step = func(models.EntityKind, int) {}
	}

	if err := w.repo.InsertStory(ctx, g.Story); err != nil {
		return counts, w.fail(models.KindStory, err)
	}
	step(models.KindStory, 1)

	if err := w.repo.InsertCharacters(ctx, g.Story.ID, g.Characters); err != nil {
		return counts, w.fail(models.KindCharacter, err)
	}
	for _, c := range g.Characters {
		remap.Register(models.KindCharacter, c.TempID, c.ID)
		remap.Alias(models.KindCharacter, c.Name, c.ID)
	}
	counts.Characters = len(g.Characters)
	step(models.KindCharacter, counts.Characters)

	if err := w.repo.InsertSettings(ctx, g.Story.ID, g.Settings); err != nil {
		return counts, w.fail(models.KindSetting, err)
	}
	for _, s := range g.Settings {
		remap.Register(models.KindSetting, s.TempID, s.ID)
		remap.Alias(models.KindSetting, s.Name, s.ID)
	}
	counts.Settings = len(g.Settings)
	step(models.KindSetting, counts.Settings)

	for _, p := range g.Parts {
		for i := range p.CharacterArcs {
			p.CharacterArcs[i].CharacterID = remap.RemapOptional(models.KindCharacter, p.CharacterArcs[i].CharacterTempID)
		}
	}
	if err := w.repo.InsertParts(ctx, g.Story.ID, g.Parts); err != nil {
		return counts, w.fail(models.KindPart, err)
	}
	for _, p := range g.Parts {
		remap.Register(models.KindPart, p.TempID, p.ID)
	}
	counts.Parts = len(g.Parts)
	step(models.KindPart, counts.Parts)

	for _, ch := range g.Chapters {
		ch.PartID = remap.RemapOptional(models.KindPart, ch.PartTempID)
		ch.CharacterID = remap.RemapOptional(models.KindCharacter, ch.CharacterTempID)
		ch.FocusCharacters = remap.RemapList(models.KindCharacter, ch.FocusCharacterTemps)
	}
	if err := w.repo.InsertChapters(ctx, g.Story.ID, g.Chapters); err != nil {
		return counts, w.fail(models.KindChapter, err)
	}
	for _, ch := range g.Chapters {
		remap.Register(models.KindChapter, ch.TempID, ch.ID)
	}
	counts.Chapters = len(g.Chapters)
	step(models.KindChapter, counts.Chapters)

	// Сцена без главы не пишется: chapter_id обязателен.
	scenes := make([]*models.Scene, 0, len(g.Scenes))
	for _, sc := range g.Scenes {
		chapterID, err := remap.Remap(models.KindChapter, sc.ChapterTempID)
		if err != nil {
			w.logger.Warn("Skipping scene without a persisted chapter",
				zap.String("scene_temp_id", sc.TempID),
				zap.String("chapter_temp_id", sc.ChapterTempID),
			)
			continue
		}
		sc.ChapterID = chapterID
		sc.SettingID = remap.RemapOptional(models.KindSetting, sc.SettingTempID)
		sc.CharacterFocus = remap.RemapList(models.KindCharacter, sc.CharacterFocusTemp)
		scenes = append(scenes, sc)
	}
	g.Scenes = scenes
	if err := w.repo.InsertScenes(ctx, g.Story.ID, g.Scenes); err != nil {
		return counts, w.fail(models.KindScene, err)
	}
	for _, sc := range g.Scenes {
		remap.Register(models.KindScene, sc.TempID, sc.ID)
	}
	counts.Scenes = len(g.Scenes)
	step(models.KindScene, counts.Scenes)

	w.logger.Info("Story graph persisted",
		zap.String("story_id", g.Story.ID.String()),
		zap.Int("characters", counts.Characters),
		zap.Int("settings", counts.Settings),
		zap.Int("parts", counts.Parts),
		zap.Int("chapters", counts.Chapters),
		zap.Int("scenes", counts.Scenes),
	)
	return counts, nil
}

// PersistPanels пишет панели одной сцены и помечает её комикс как черновик.
func (w *Writer) PersistPanels(ctx context.Context, storyID, sceneID uuid.UUID, panels []*models.ComicPanel) error {
	if err := w.repo.InsertComicPanels(ctx, storyID, sceneID, panels); err != nil {
		return w.fail(models.KindComicPanel, err)
	}
	if err := w.repo.UpdateSceneComicStatus(ctx, sceneID, models.ComicStatusDraft); err != nil {
		return w.fail(models.KindScene, err)
	}
	return nil
}

func (w *Writer) fail(kind models.EntityKind, err error) error {
	w.logger.Error("Batch insert failed", zap.String("kind", string(kind)), zap.Error(err))
	return &models.PersistenceError{Kind: kind, Err: err}
}

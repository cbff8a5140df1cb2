package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

type pgStoryRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

func NewPgStoryRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

const insertStoryQuery = `
INSERT INTO stories (user_id, title, summary, genre, tone, moral_framework, language, status,
                     expected_parts, expected_chapters, expected_scenes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, created_at, updated_at`

const insertCharacterQuery = `
INSERT INTO characters (story_id, name, is_main, core_trait, internal_flaw, external_goal,
                        personality, backstory, relationships, physical_description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`

const insertSettingQuery = `
INSERT INTO settings (story_id, name, description, mood, sensory_details, symbolic_meaning, color_palette)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

const insertPartQuery = `
INSERT INTO parts (story_id, title, summary, order_index, character_arcs)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

const insertChapterQuery = `
INSERT INTO chapters (story_id, part_id, title, summary, order_index, character_id, focus_characters,
                      arc_position, adversity_type, virtue_type, connects_to_previous, creates_next_adversity)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`

const insertSceneQuery = `
INSERT INTO scenes (story_id, chapter_id, setting_id, title, summary, content, order_index,
                    cycle_phase, emotional_beat, character_focus, comic_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`

const insertComicPanelQuery = `
INSERT INTO comic_panels (story_id, scene_id, panel_number, shot_type, description, dialogue, sfx, narrative)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

// sendInsertBatch отправляет батч одним запросом и читает RETURNING id по порядку.
// Батч pgx выполняется в неявной транзакции: либо все строки, либо ни одной.
func sendInsertBatch(ctx context.Context, db interfaces.DBTX, batch *pgx.Batch, scan func(i int, row pgx.Row) error) error {
	br := db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if err := scan(i, br.QueryRow()); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func (r *pgStoryRepository) InsertStory(ctx context.Context, story *models.Story) error {
	if story.Status == "" {
		story.Status = models.StoryStatusWriting
	}
	err := r.db.QueryRow(ctx, insertStoryQuery,
		story.UserID,
		story.Title,
		story.Summary,
		story.Genre,
		string(story.Tone),
		story.MoralFramework,
		story.Language,
		string(story.Status),
		story.Expected.Parts,
		story.Expected.Chapters,
		story.Expected.Scenes,
	).Scan(&story.ID, &story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert story", zap.String("user_id", story.UserID), zap.Error(err))
		return fmt.Errorf("ошибка создания истории: %w", err)
	}
	r.logger.Debug("Story inserted", zap.String("story_id", story.ID.String()))
	return nil
}

func (r *pgStoryRepository) InsertCharacters(ctx context.Context, storyID uuid.UUID, characters []*models.Character) error {
	if len(characters) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range characters {
		batch.Queue(insertCharacterQuery,
			storyID, c.Name, c.IsMain, c.CoreTrait, c.InternalFlaw, c.ExternalGoal,
			c.Personality, c.Backstory, c.Relationships, c.PhysicalDescription,
		)
	}
	err := sendInsertBatch(ctx, r.db, batch, func(i int, row pgx.Row) error {
		characters[i].StoryID = storyID
		return row.Scan(&characters[i].ID)
	})
	if err != nil {
		r.logger.Error("Failed to insert characters", zap.String("story_id", storyID.String()), zap.Int("count", len(characters)), zap.Error(err))
		return fmt.Errorf("ошибка записи персонажей: %w", err)
	}
	return nil
}

func (r *pgStoryRepository) InsertSettings(ctx context.Context, storyID uuid.UUID, settings []*models.Setting) error {
	if len(settings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range settings {
		batch.Queue(insertSettingQuery,
			storyID, s.Name, s.Description, s.Mood, nonNilStrings(s.SensoryDetails), s.SymbolicMeaning, nonNilStrings(s.ColorPalette),
		)
	}
	err := sendInsertBatch(ctx, r.db, batch, func(i int, row pgx.Row) error {
		settings[i].StoryID = storyID
		return row.Scan(&settings[i].ID)
	})
	if err != nil {
		r.logger.Error("Failed to insert settings", zap.String("story_id", storyID.String()), zap.Error(err))
		return fmt.Errorf("ошибка записи локаций: %w", err)
	}
	return nil
}

func (r *pgStoryRepository) InsertParts(ctx context.Context, storyID uuid.UUID, parts []*models.Part) error {
	if len(parts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range parts {
		batch.Queue(insertPartQuery, storyID, p.Title, p.Summary, p.OrderIndex, p.CharacterArcs)
	}
	err := sendInsertBatch(ctx, r.db, batch, func(i int, row pgx.Row) error {
		parts[i].StoryID = storyID
		return row.Scan(&parts[i].ID)
	})
	if err != nil {
		r.logger.Error("Failed to insert parts", zap.String("story_id", storyID.String()), zap.Error(err))
		return fmt.Errorf("ошибка записи частей: %w", err)
	}
	return nil
}

func (r *pgStoryRepository) InsertChapters(ctx context.Context, storyID uuid.UUID, chapters []*models.Chapter) error {
	if len(chapters) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chapters {
		batch.Queue(insertChapterQuery,
			storyID, c.PartID, c.Title, c.Summary, c.OrderIndex, c.CharacterID, nonNilUUIDs(c.FocusCharacters),
			c.ArcPosition, c.AdversityType, c.VirtueType, c.ConnectsToPrevious, c.CreatesNextAdversity,
		)
	}
	err := sendInsertBatch(ctx, r.db, batch, func(i int, row pgx.Row) error {
		chapters[i].StoryID = storyID
		return row.Scan(&chapters[i].ID)
	})
	if err != nil {
		r.logger.Error("Failed to insert chapters", zap.String("story_id", storyID.String()), zap.Error(err))
		return fmt.Errorf("ошибка записи глав: %w", err)
	}
	return nil
}

func (r *pgStoryRepository) InsertScenes(ctx context.Context, storyID uuid.UUID, scenes []*models.Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range scenes {
		status := s.ComicStatus
		if status == "" {
			status = models.ComicStatusNone
		}
		batch.Queue(insertSceneQuery,
			storyID, s.ChapterID, s.SettingID, s.Title, s.Summary, s.Content, s.OrderIndex,
			s.CyclePhase, s.EmotionalBeat, nonNilUUIDs(s.CharacterFocus), string(status),
		)
	}
	err := sendInsertBatch(ctx, r.db, batch, func(i int, row pgx.Row) error {
		scenes[i].StoryID = storyID
		return row.Scan(&scenes[i].ID)
	})
	if err != nil {
		r.logger.Error("Failed to insert scenes", zap.String("story_id", storyID.String()), zap.Error(err))
		return fmt.Errorf("ошибка записи сцен: %w", err)
	}
	return nil
}

func (r *pgStoryRepository) InsertComicPanels(ctx context.Context, storyID, sceneID uuid.UUID, panels []*models.ComicPanel) error {
	if len(panels) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range panels {
		batch.Queue(insertComicPanelQuery,
			storyID, sceneID, p.PanelNumber, p.ShotType, p.Description, p.Dialogue, nonNilStrings(p.SFX), p.Narrative,
		)
	}
	err := sendInsertBatch(ctx, r.db, batch, func(i int, row pgx.Row) error {
		panels[i].SceneID = sceneID
		return row.Scan(&panels[i].ID)
	})
	if err != nil {
		r.logger.Error("Failed to insert comic panels", zap.String("scene_id", sceneID.String()), zap.Error(err))
		return fmt.Errorf("ошибка записи панелей комикса: %w", err)
	}
	return nil
}

var imageTables = map[models.ImageKind]string{
	models.ImageKindStory:      "stories",
	models.ImageKindCharacter:  "characters",
	models.ImageKindSetting:    "settings",
	models.ImageKindScene:      "scenes",
	models.ImageKindComicPanel: "comic_panels",
}

func (r *pgStoryRepository) AttachImage(ctx context.Context, kind models.ImageKind, entityID uuid.UUID, ref models.ImageRef) error {
	table, ok := imageTables[kind]
	if !ok {
		return fmt.Errorf("%w: unknown image kind %q", models.ErrInvalidInput, kind)
	}
	query := fmt.Sprintf(`UPDATE %s SET image_url = $2, image_variants = $3 WHERE id = $1`, table)
	if kind == models.ImageKindStory {
		query = `UPDATE stories SET image_url = $2, image_variants = $3, updated_at = NOW() WHERE id = $1`
	}
	tag, err := r.db.Exec(ctx, query, entityID, ref.URL, ref.Variants)
	if err != nil {
		r.logger.Error("Failed to attach image", zap.String("kind", string(kind)), zap.String("entity_id", entityID.String()), zap.Error(err))
		return fmt.Errorf("ошибка сохранения картинки %s %s: %w", kind, entityID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", models.ErrNotFound, kind, entityID)
	}
	return nil
}

func (r *pgStoryRepository) UpdateSceneComicStatus(ctx context.Context, sceneID uuid.UUID, status models.ComicStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE scenes SET comic_status = $2 WHERE id = $1`, sceneID, string(status))
	if err != nil {
		return fmt.Errorf("ошибка обновления comic_status сцены %s: %w", sceneID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: scene %s", models.ErrNotFound, sceneID)
	}
	return nil
}

type storyRow struct {
	ID               uuid.UUID              `db:"id"`
	UserID           string                 `db:"user_id"`
	Title            string                 `db:"title"`
	Summary          string                 `db:"summary"`
	Genre            string                 `db:"genre"`
	Tone             string                 `db:"tone"`
	MoralFramework   string                 `db:"moral_framework"`
	Language         string                 `db:"language"`
	Status           string                 `db:"status"`
	ExpectedParts    int                    `db:"expected_parts"`
	ExpectedChapters int                    `db:"expected_chapters"`
	ExpectedScenes   int                    `db:"expected_scenes"`
	ImageURL         *string                `db:"image_url"`
	ImageVariants    models.ImageVariantSet `db:"image_variants"`
	PublishedAt      *time.Time             `db:"published_at"`
	CreatedAt        time.Time              `db:"created_at"`
	UpdatedAt        time.Time              `db:"updated_at"`
}

func (r *pgStoryRepository) GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	var row storyRow
	err := pgxscan.Get(ctx, r.db, &row, `
SELECT id, user_id, title, summary, genre, tone, moral_framework, language, status,
       expected_parts, expected_chapters, expected_scenes, image_url, image_variants,
       published_at, created_at, updated_at
FROM stories WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: story %s", models.ErrNotFound, id)
		}
		r.logger.Error("Failed to get story", zap.String("story_id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения истории %s: %w", id, err)
	}
	return &models.Story{
		ID:             row.ID,
		UserID:         row.UserID,
		Title:          row.Title,
		Summary:        row.Summary,
		Genre:          row.Genre,
		Tone:           models.Tone(row.Tone),
		MoralFramework: row.MoralFramework,
		Language:       row.Language,
		Status:         models.StoryStatus(row.Status),
		Image:          imageRef(row.ImageURL, row.ImageVariants),
		Expected: models.ExpectedCount{
			Parts:    row.ExpectedParts,
			Chapters: row.ExpectedChapters,
			Scenes:   row.ExpectedScenes,
		},
		PublishedAt: row.PublishedAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

type characterRow struct {
	ID                  uuid.UUID              `db:"id"`
	StoryID             uuid.UUID              `db:"story_id"`
	Name                string                 `db:"name"`
	IsMain              bool                   `db:"is_main"`
	CoreTrait           string                 `db:"core_trait"`
	InternalFlaw        string                 `db:"internal_flaw"`
	ExternalGoal        string                 `db:"external_goal"`
	Personality         map[string]string      `db:"personality"`
	Backstory           string                 `db:"backstory"`
	Relationships       map[string]string      `db:"relationships"`
	PhysicalDescription string                 `db:"physical_description"`
	ImageURL            *string                `db:"image_url"`
	ImageVariants       models.ImageVariantSet `db:"image_variants"`
}

func (r *pgStoryRepository) ListCharacters(ctx context.Context, storyID uuid.UUID) ([]*models.Character, error) {
	var rows []characterRow
	err := pgxscan.Select(ctx, r.db, &rows, `
SELECT id, story_id, name, is_main, core_trait, internal_flaw, external_goal, personality,
       backstory, relationships, physical_description, image_url, image_variants
FROM characters WHERE story_id = $1 ORDER BY created_at, id`, storyID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения персонажей истории %s: %w", storyID, err)
	}
	out := make([]*models.Character, 0, len(rows))
	for _, row := range rows {
		out = append(out, &models.Character{
			ID:                  row.ID,
			StoryID:             row.StoryID,
			Name:                row.Name,
			IsMain:              row.IsMain,
			CoreTrait:           row.CoreTrait,
			InternalFlaw:        row.InternalFlaw,
			ExternalGoal:        row.ExternalGoal,
			Personality:         row.Personality,
			Backstory:           row.Backstory,
			Relationships:       row.Relationships,
			PhysicalDescription: row.PhysicalDescription,
			Image:               imageRef(row.ImageURL, row.ImageVariants),
		})
	}
	return out, nil
}

type settingRow struct {
	ID              uuid.UUID              `db:"id"`
	StoryID         uuid.UUID              `db:"story_id"`
	Name            string                 `db:"name"`
	Description     string                 `db:"description"`
	Mood            string                 `db:"mood"`
	SensoryDetails  []string               `db:"sensory_details"`
	SymbolicMeaning string                 `db:"symbolic_meaning"`
	ColorPalette    []string               `db:"color_palette"`
	ImageURL        *string                `db:"image_url"`
	ImageVariants   models.ImageVariantSet `db:"image_variants"`
}

func (r *pgStoryRepository) ListSettings(ctx context.Context, storyID uuid.UUID) ([]*models.Setting, error) {
	var rows []settingRow
	err := pgxscan.Select(ctx, r.db, &rows, `
SELECT id, story_id, name, description, mood, sensory_details, symbolic_meaning, color_palette,
       image_url, image_variants
FROM settings WHERE story_id = $1 ORDER BY created_at, id`, storyID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения локаций истории %s: %w", storyID, err)
	}
	out := make([]*models.Setting, 0, len(rows))
	for _, row := range rows {
		out = append(out, &models.Setting{
			ID:              row.ID,
			StoryID:         row.StoryID,
			Name:            row.Name,
			Description:     row.Description,
			Mood:            row.Mood,
			SensoryDetails:  row.SensoryDetails,
			SymbolicMeaning: row.SymbolicMeaning,
			ColorPalette:    row.ColorPalette,
			Image:           imageRef(row.ImageURL, row.ImageVariants),
		})
	}
	return out, nil
}

type sceneRow struct {
	ID             uuid.UUID              `db:"id"`
	StoryID        uuid.UUID              `db:"story_id"`
	ChapterID      uuid.UUID              `db:"chapter_id"`
	SettingID      *uuid.UUID             `db:"setting_id"`
	Title          string                 `db:"title"`
	Summary        string                 `db:"summary"`
	Content        string                 `db:"content"`
	OrderIndex     int                    `db:"order_index"`
	CyclePhase     string                 `db:"cycle_phase"`
	EmotionalBeat  string                 `db:"emotional_beat"`
	CharacterFocus []uuid.UUID            `db:"character_focus"`
	ImageURL       *string                `db:"image_url"`
	ImageVariants  models.ImageVariantSet `db:"image_variants"`
	ComicStatus    string                 `db:"comic_status"`
}

// ListScenes возвращает сцены в порядке чтения: глава, затем позиция в главе.
func (r *pgStoryRepository) ListScenes(ctx context.Context, storyID uuid.UUID) ([]*models.Scene, error) {
	var rows []sceneRow
	err := pgxscan.Select(ctx, r.db, &rows, `
SELECT s.id, s.story_id, s.chapter_id, s.setting_id, s.title, s.summary, s.content, s.order_index,
       s.cycle_phase, s.emotional_beat, s.character_focus, s.image_url, s.image_variants, s.comic_status
FROM scenes s
JOIN chapters c ON c.id = s.chapter_id
WHERE s.story_id = $1
ORDER BY c.order_index, s.order_index`, storyID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сцен истории %s: %w", storyID, err)
	}
	out := make([]*models.Scene, 0, len(rows))
	for _, row := range rows {
		out = append(out, &models.Scene{
			ID:             row.ID,
			StoryID:        row.StoryID,
			ChapterID:      row.ChapterID,
			SettingID:      row.SettingID,
			Title:          row.Title,
			Summary:        row.Summary,
			Content:        row.Content,
			OrderIndex:     row.OrderIndex,
			CyclePhase:     row.CyclePhase,
			EmotionalBeat:  row.EmotionalBeat,
			CharacterFocus: row.CharacterFocus,
			Image:          imageRef(row.ImageURL, row.ImageVariants),
			ComicStatus:    models.ComicStatus(row.ComicStatus),
		})
	}
	return out, nil
}

type comicPanelRow struct {
	ID            uuid.UUID              `db:"id"`
	SceneID       uuid.UUID              `db:"scene_id"`
	PanelNumber   int                    `db:"panel_number"`
	ShotType      string                 `db:"shot_type"`
	Description   string                 `db:"description"`
	Dialogue      []models.DialogueLine  `db:"dialogue"`
	SFX           []string               `db:"sfx"`
	Narrative     string                 `db:"narrative"`
	ImageURL      *string                `db:"image_url"`
	ImageVariants models.ImageVariantSet `db:"image_variants"`
}

func (r *pgStoryRepository) ListComicPanels(ctx context.Context, storyID uuid.UUID) ([]*models.ComicPanel, error) {
	var rows []comicPanelRow
	err := pgxscan.Select(ctx, r.db, &rows, `
SELECT id, scene_id, panel_number, shot_type, description, dialogue, sfx, narrative, image_url, image_variants
FROM comic_panels WHERE story_id = $1 ORDER BY scene_id, panel_number`, storyID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения панелей истории %s: %w", storyID, err)
	}
	out := make([]*models.ComicPanel, 0, len(rows))
	for _, row := range rows {
		out = append(out, &models.ComicPanel{
			ID:          row.ID,
			SceneID:     row.SceneID,
			PanelNumber: row.PanelNumber,
			ShotType:    row.ShotType,
			Description: row.Description,
			Dialogue:    row.Dialogue,
			SFX:         row.SFX,
			Narrative:   row.Narrative,
			Image:       imageRef(row.ImageURL, row.ImageVariants),
		})
	}
	return out, nil
}

func (r *pgStoryRepository) CountChildren(ctx context.Context, storyID uuid.UUID) (models.StoryChildCounts, error) {
	var counts models.StoryChildCounts
	err := pgxscan.Get(ctx, r.db, &counts, `
SELECT (SELECT COUNT(*) FROM characters   WHERE story_id = $1) AS characters,
       (SELECT COUNT(*) FROM settings     WHERE story_id = $1) AS settings,
       (SELECT COUNT(*) FROM parts        WHERE story_id = $1) AS parts,
       (SELECT COUNT(*) FROM chapters     WHERE story_id = $1) AS chapters,
       (SELECT COUNT(*) FROM scenes       WHERE story_id = $1) AS scenes,
       (SELECT COUNT(*) FROM comic_panels WHERE story_id = $1) AS comic_panels`, storyID)
	if err != nil {
		return counts, fmt.Errorf("ошибка подсчёта сущностей истории %s: %w", storyID, err)
	}
	return counts, nil
}

func (r *pgStoryRepository) ListStoryIDsByUser(ctx context.Context, userID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := pgxscan.Select(ctx, r.db, &ids, `SELECT id FROM stories WHERE user_id = $1 ORDER BY created_at`, userID); err != nil {
		return nil, fmt.Errorf("ошибка получения историй пользователя %s: %w", userID, err)
	}
	return ids, nil
}

func (r *pgStoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus, publishedAt *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE stories SET status = $2, published_at = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), publishedAt)
	if err != nil {
		r.logger.Error("Failed to update story status", zap.String("story_id", id.String()), zap.String("status", string(status)), zap.Error(err))
		return fmt.Errorf("ошибка обновления статуса истории %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: story %s", models.ErrNotFound, id)
	}
	return nil
}

func (r *pgStoryRepository) PublishComics(ctx context.Context, storyID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE scenes SET comic_status = 'published' WHERE story_id = $1 AND comic_status = 'draft'`, storyID)
	if err != nil {
		return 0, fmt.Errorf("ошибка публикации комиксов истории %s: %w", storyID, err)
	}
	return tag.RowsAffected(), nil
}

// CascadeDeleteOrder - порядок удаления: производные данные, сцены, главы, части, персонажи и локации, история.
var CascadeDeleteOrder = []string{
	"comic_panels",
	"scenes",
	"chapters",
	"parts",
	"characters",
	"settings",
	"stories",
}

func (r *pgStoryRepository) DeleteStoriesCascade(ctx context.Context, storyIDs []uuid.UUID) ([]models.TableDeleteCount, error) {
	if len(storyIDs) == 0 {
		return nil, nil
	}
	var counts []models.TableDeleteCount
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		counts = make([]models.TableDeleteCount, 0, len(CascadeDeleteOrder))
		for _, table := range CascadeDeleteOrder {
			column := "story_id"
			if table == "stories" {
				column = "id"
			}
			tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ANY($1)`, table, column), storyIDs)
			if err != nil {
				return fmt.Errorf("ошибка удаления из %s: %w", table, err)
			}
			counts = append(counts, models.TableDeleteCount{Table: table, Rows: tag.RowsAffected()})
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Cascade delete failed", zap.Int("stories", len(storyIDs)), zap.Error(err))
		return nil, err
	}
	r.logger.Info("Cascade delete completed", zap.Int("stories", len(storyIDs)), zap.Any("tables", counts))
	return counts, nil
}

func imageRef(url *string, variants models.ImageVariantSet) models.ImageRef {
	if url == nil {
		return models.ImageRef{}
	}
	return models.ImageRef{URL: *url, Variants: variants}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilUUIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

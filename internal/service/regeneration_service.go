package service

import (
	"context"
	"fmt"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"
	"fictures-server/internal/pipeline"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegenerateOptions - какие картинки перегенерировать.
type RegenerateOptions struct {
	// Kinds пустой - все виды.
	Kinds  []models.ImageKind `json:"kinds,omitempty"`
	DryRun bool               `json:"dryRun"`
	// Force перегенерирует и те картинки, что уже есть.
	Force bool `json:"force"`
}

// PlannedImage - строка плана для dry-run.
type PlannedImage struct {
	Kind     models.ImageKind `json:"kind"`
	EntityID uuid.UUID        `json:"entityId"`
	Label    string           `json:"label"`
	Prompt   string           `json:"prompt"`
}

type RegenerateResult struct {
	StoryID uuid.UUID           `json:"storyId"`
	DryRun  bool                `json:"dryRun"`
	Planned []PlannedImage      `json:"planned"`
	Report  *models.ImageReport `json:"report,omitempty"`
}

// RegenerationService повторно запускает фан-аут картинок для уже записанной истории.
type RegenerationService interface {
	RegenerateImages(ctx context.Context, actor Actor, storyID uuid.UUID, opts RegenerateOptions) (*RegenerateResult, error)
}

type regenerationServiceImpl struct {
	repo    interfaces.StoryReader
	targets *pipeline.Targets
	fanout  *pipeline.ImageFanout
	logger  *zap.Logger
}

func NewRegenerationService(repo interfaces.StoryReader, targets *pipeline.Targets, fanout *pipeline.ImageFanout, logger *zap.Logger) RegenerationService {
	return &regenerationServiceImpl{
		repo:    repo,
		targets: targets,
		fanout:  fanout,
		logger:  logger.Named("RegenerationService"),
	}
}

func (s *regenerationServiceImpl) RegenerateImages(ctx context.Context, actor Actor, storyID uuid.UUID, opts RegenerateOptions) (*RegenerateResult, error) {
	story, err := loadOwnedStory(ctx, s.repo, actor, storyID)
	if err != nil {
		return nil, err
	}
	targets, err := s.plan(ctx, story, opts)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("story_id", storyID.String()), zap.Int("targets", len(targets)), zap.Bool("dry_run", opts.DryRun))
	result := &RegenerateResult{StoryID: storyID, DryRun: opts.DryRun, Planned: make([]PlannedImage, 0, len(targets))}
	for _, t := range targets {
		result.Planned = append(result.Planned, PlannedImage{Kind: t.Kind, EntityID: t.EntityID, Label: t.Label, Prompt: t.Prompt})
	}
	if opts.DryRun || len(targets) == 0 {
		log.Info("Image regeneration planned")
		return result, nil
	}

	log.Info("Regenerating images")
	result.Report = s.fanout.Run(ctx, nil, targets, func(done, total int, o pipeline.ItemOutcome) {
		if o.Error != "" {
			log.Warn("Image regeneration failed", zap.String("kind", string(o.Kind)), zap.String("entity_id", o.EntityID.String()), zap.String("error", o.Error))
			return
		}
		log.Debug("Image regenerated", zap.Int("done", done), zap.Int("total", total), zap.String("url", o.URL))
	})
	log.Info("Image regeneration finished",
		zap.Int("succeeded", result.Report.Succeeded),
		zap.Int("failed", result.Report.Failed),
		zap.Int("invalid", result.Report.Invalid),
	)
	return result, nil
}

// plan собирает цели в том же порядке видов, что и основной запуск.
func (s *regenerationServiceImpl) plan(ctx context.Context, story *models.Story, opts RegenerateOptions) ([]pipeline.ImageTarget, error) {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = models.AllImageKinds
	}
	want := make(map[models.ImageKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	needs := func(ref models.ImageRef) bool { return opts.Force || !ref.Present() }

	var (
		characters []*models.Character
		settings   []*models.Setting
		scenes     []*models.Scene
		err        error
	)
	if want[models.ImageKindCharacter] || want[models.ImageKindScene] {
		if characters, err = s.repo.ListCharacters(ctx, story.ID); err != nil {
			return nil, fmt.Errorf("failed to load characters: %w", err)
		}
	}
	if want[models.ImageKindSetting] || want[models.ImageKindScene] || want[models.ImageKindComicPanel] {
		if settings, err = s.repo.ListSettings(ctx, story.ID); err != nil {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
	}
	if want[models.ImageKindScene] || want[models.ImageKindComicPanel] {
		if scenes, err = s.repo.ListScenes(ctx, story.ID); err != nil {
			return nil, fmt.Errorf("failed to load scenes: %w", err)
		}
	}

	var out []pipeline.ImageTarget
	if want[models.ImageKindStory] && needs(story.Image) {
		out = append(out, s.targets.Story(story))
	}
	if want[models.ImageKindCharacter] {
		var pick []*models.Character
		for _, c := range characters {
			if needs(c.Image) {
				pick = append(pick, c)
			}
		}
		out = append(out, s.targets.Characters(story, pick)...)
	}
	if want[models.ImageKindSetting] {
		var pick []*models.Setting
		for _, st := range settings {
			if needs(st.Image) {
				pick = append(pick, st)
			}
		}
		out = append(out, s.targets.Settings(story, pick)...)
	}
	if want[models.ImageKindScene] {
		var pick []*models.Scene
		for _, sc := range scenes {
			if needs(sc.Image) {
				pick = append(pick, sc)
			}
		}
		out = append(out, s.targets.Scenes(story, pick, characters, settings)...)
	}
	if want[models.ImageKindComicPanel] {
		panels, err := s.repo.ListComicPanels(ctx, story.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load comic panels: %w", err)
		}
		byScene := make(map[uuid.UUID][]*models.ComicPanel)
		for _, p := range panels {
			if needs(p.Image) {
				byScene[p.SceneID] = append(byScene[p.SceneID], p)
			}
		}
		for _, sc := range scenes {
			if ps := byScene[sc.ID]; len(ps) > 0 {
				out = append(out, s.targets.Panels(story, sc, ps, settings)...)
			}
		}
	}
	return out, nil
}

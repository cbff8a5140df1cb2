package pipeline

import (
	"fmt"

	"fictures-server/internal/models"
	"fictures-server/internal/prompts"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Targets собирает промты картинок для сущностей графа.
// Используется и пайплайном, и регенерацией картинок уже записанной истории.
type Targets struct {
	prompts *prompts.Library
	logger  *zap.Logger
}

func NewTargets(lib *prompts.Library, logger *zap.Logger) *Targets {
	return &Targets{prompts: lib, logger: logger.Named("ImageTargets")}
}

func (t *Targets) render(kind models.ImageKind, data map[string]any, fallback string) string {
	prompt, err := t.prompts.Image(kind, data)
	if err != nil || prompt == "" {
		t.logger.Warn("Image prompt render failed, using fallback", zap.String("kind", string(kind)), zap.Error(err))
		return fallback
	}
	return prompt
}

func (t *Targets) Story(story *models.Story) ImageTarget {
	return ImageTarget{
		Kind:     models.ImageKindStory,
		StoryID:  story.ID,
		EntityID: story.ID,
		Label:    story.Title,
		Prompt: t.render(models.ImageKindStory, map[string]any{
			"Title":   story.Title,
			"Genre":   story.Genre,
			"Tone":    string(story.Tone),
			"Summary": story.Summary,
		}, story.Title),
	}
}

func (t *Targets) Characters(story *models.Story, characters []*models.Character) []ImageTarget {
	out := make([]ImageTarget, 0, len(characters))
	for _, c := range characters {
		out = append(out, ImageTarget{
			Kind:     models.ImageKindCharacter,
			StoryID:  story.ID,
			EntityID: c.ID,
			Label:    c.Name,
			Prompt: t.render(models.ImageKindCharacter, map[string]any{
				"Name":                c.Name,
				"PhysicalDescription": c.PhysicalDescription,
				"CoreTrait":           c.CoreTrait,
				"Genre":               story.Genre,
			}, "Portrait of "+c.Name),
		})
	}
	return out
}

func (t *Targets) Settings(story *models.Story, settings []*models.Setting) []ImageTarget {
	out := make([]ImageTarget, 0, len(settings))
	for _, s := range settings {
		out = append(out, ImageTarget{
			Kind:     models.ImageKindSetting,
			StoryID:  story.ID,
			EntityID: s.ID,
			Label:    s.Name,
			Prompt: t.render(models.ImageKindSetting, map[string]any{
				"Name":         s.Name,
				"Description":  s.Description,
				"Mood":         s.Mood,
				"ColorPalette": s.ColorPalette,
			}, s.Name+": "+s.Description),
		})
	}
	return out
}

func (t *Targets) Scenes(story *models.Story, scenes []*models.Scene, characters []*models.Character, settings []*models.Setting) []ImageTarget {
	names := characterNames(characters)
	places := settingNames(settings)
	out := make([]ImageTarget, 0, len(scenes))
	for _, sc := range scenes {
		var focus []string
		for _, id := range sc.CharacterFocus {
			if name, ok := names[id]; ok {
				focus = append(focus, name)
			}
		}
		out = append(out, ImageTarget{
			Kind:     models.ImageKindScene,
			StoryID:  story.ID,
			EntityID: sc.ID,
			Label:    sc.Title,
			Prompt: t.render(models.ImageKindScene, map[string]any{
				"Title":         sc.Title,
				"Summary":       sc.Summary,
				"SettingName":   lookupName(places, sc.SettingID),
				"Characters":    focus,
				"EmotionalBeat": sc.EmotionalBeat,
			}, sc.Title+": "+sc.Summary),
		})
	}
	return out
}

func (t *Targets) Panels(story *models.Story, scene *models.Scene, panels []*models.ComicPanel, settings []*models.Setting) []ImageTarget {
	places := settingNames(settings)
	out := make([]ImageTarget, 0, len(panels))
	for _, p := range panels {
		out = append(out, ImageTarget{
			Kind:     models.ImageKindComicPanel,
			StoryID:  story.ID,
			EntityID: p.ID,
			Label:    fmt.Sprintf("%s #%d", scene.Title, p.PanelNumber),
			Prompt: t.render(models.ImageKindComicPanel, map[string]any{
				"ShotType":    p.ShotType,
				"Description": p.Description,
				"SettingName": lookupName(places, scene.SettingID),
			}, p.Description),
		})
	}
	return out
}

func characterNames(characters []*models.Character) map[uuid.UUID]string {
	m := make(map[uuid.UUID]string, len(characters))
	for _, c := range characters {
		m[c.ID] = c.Name
	}
	return m
}

func settingNames(settings []*models.Setting) map[uuid.UUID]string {
	m := make(map[uuid.UUID]string, len(settings))
	for _, s := range settings {
		m[s.ID] = s.Name
	}
	return m
}

func lookupName(m map[uuid.UUID]string, id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return m[*id]
}

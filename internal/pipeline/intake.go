package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"fictures-server/internal/config"
	"fictures-server/internal/models"
)

const maxLanguageTagLength = 16

// Intake проверяет запрос и подставляет значения по умолчанию. Побочных эффектов нет.
type Intake struct {
	limits config.IntakeLimits
}

func NewIntake(limits config.IntakeLimits) *Intake {
	return &Intake{limits: limits}
}

// Normalize возвращает *models.ValidationError на первую найденную проблему.
func (i *Intake) Normalize(userID string, in models.GenerationRequestInput) (models.GenerationRequest, error) {
	prompt := strings.TrimSpace(in.UserPrompt)
	if prompt == "" {
		return models.GenerationRequest{}, &models.ValidationError{Field: "userPrompt", Message: "must not be empty"}
	}
	if i.limits.PromptMaxLength > 0 && utf8.RuneCountInString(prompt) > i.limits.PromptMaxLength {
		return models.GenerationRequest{}, &models.ValidationError{
			Field:   "userPrompt",
			Message: fmt.Sprintf("must be at most %d characters", i.limits.PromptMaxLength),
		}
	}

	req := models.GenerationRequest{
		UserID:         userID,
		UserPrompt:     prompt,
		Genre:          strings.TrimSpace(in.PreferredGenre),
		Tone:           models.DefaultTone,
		GenerateComics: true,
	}
	if tone := strings.TrimSpace(in.PreferredTone); tone != "" {
		req.Tone = models.NormalizeTone(tone)
		req.ToneRequested = true
	}
	if in.GenerateComics != nil {
		req.GenerateComics = *in.GenerateComics
	}

	var err error
	if req.CharacterCount, err = count("characterCount", in.CharacterCount, i.limits.DefaultCharacters, i.limits.MaxCharacters); err != nil {
		return models.GenerationRequest{}, err
	}
	if req.SettingCount, err = count("settingCount", in.SettingCount, i.limits.DefaultSettings, i.limits.MaxSettings); err != nil {
		return models.GenerationRequest{}, err
	}
	if req.PartsCount, err = count("partsCount", in.PartsCount, i.limits.DefaultParts, i.limits.MaxParts); err != nil {
		return models.GenerationRequest{}, err
	}
	if req.ChaptersPerPart, err = count("chaptersPerPart", in.ChaptersPerPart, i.limits.DefaultChaptersPerPart, i.limits.MaxChaptersPerPart); err != nil {
		return models.GenerationRequest{}, err
	}
	if req.ScenesPerChapter, err = count("scenesPerChapter", in.ScenesPerChapter, i.limits.DefaultScenesPerChapter, i.limits.MaxScenesPerChapter); err != nil {
		return models.GenerationRequest{}, err
	}

	req.Language = strings.TrimSpace(in.Language)
	if req.Language == "" {
		req.Language = i.limits.DefaultLanguage
	}
	if len(req.Language) > maxLanguageTagLength {
		return models.GenerationRequest{}, &models.ValidationError{Field: "language", Message: "is not a valid language tag"}
	}
	return req, nil
}

func count(field string, value *int, def, limit int) (int, error) {
	if value == nil {
		return def, nil
	}
	if *value <= 0 {
		return 0, &models.ValidationError{Field: field, Message: "must be a positive integer"}
	}
	if limit > 0 && *value > limit {
		return 0, &models.ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d", limit)}
	}
	return *value, nil
}

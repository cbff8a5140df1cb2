package models

import "strings"

// Tone - допустимые тональности истории.
type Tone string

const (
	ToneHopeful     Tone = "hopeful"
	ToneDark        Tone = "dark"
	ToneBittersweet Tone = "bittersweet"
	ToneSatirical   Tone = "satirical"

	DefaultTone = ToneHopeful
)

var validTones = map[Tone]struct{}{
	ToneHopeful:     {},
	ToneDark:        {},
	ToneBittersweet: {},
	ToneSatirical:   {},
}

// NormalizeTone приводит произвольную строку к допустимой тональности.
// Генератор иногда отдаёт составные значения вроде "dark, hopeful": берём первый сегмент.
func NormalizeTone(raw string) Tone {
	first, _, _ := strings.Cut(raw, ",")
	candidate := Tone(strings.ToLower(strings.TrimSpace(first)))
	if _, ok := validTones[candidate]; ok {
		return candidate
	}
	return DefaultTone
}

// GenerationRequestInput - тело запроса как оно пришло от клиента.
// Указатели отличают "не задано" (подставим дефолт) от явного неверного значения.
type GenerationRequestInput struct {
	UserPrompt       string `json:"userPrompt"`
	PreferredGenre   string `json:"preferredGenre,omitempty"`
	PreferredTone    string `json:"preferredTone,omitempty"`
	CharacterCount   *int   `json:"characterCount,omitempty"`
	SettingCount     *int   `json:"settingCount,omitempty"`
	PartsCount       *int   `json:"partsCount,omitempty"`
	ChaptersPerPart  *int   `json:"chaptersPerPart,omitempty"`
	ScenesPerChapter *int   `json:"scenesPerChapter,omitempty"`
	Language         string `json:"language,omitempty"`
	GenerateComics   *bool  `json:"generateComics,omitempty"`
}

// GenerationRequest - проверенный и нормализованный запрос. После старта не меняется.
type GenerationRequest struct {
	UserID           string `json:"userId"`
	UserPrompt       string `json:"userPrompt"`
	Genre            string `json:"genre,omitempty"`
	Tone             Tone   `json:"tone"`
	ToneRequested    bool   `json:"toneRequested"`
	CharacterCount   int    `json:"characterCount"`
	SettingCount     int    `json:"settingCount"`
	PartsCount       int    `json:"partsCount"`
	ChaptersPerPart  int    `json:"chaptersPerPart"`
	ScenesPerChapter int    `json:"scenesPerChapter"`
	Language         string `json:"language"`
	GenerateComics   bool   `json:"generateComics"`
}

// Expected - ожидаемые размеры графа для проверки полноты.
func (r GenerationRequest) Expected() ExpectedCount {
	chapters := r.PartsCount * r.ChaptersPerPart
	return ExpectedCount{
		Parts:    r.PartsCount,
		Chapters: chapters,
		Scenes:   chapters * r.ScenesPerChapter,
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// StoryStatus - статус публикации текста истории.
type StoryStatus string

const (
	StoryStatusWriting   StoryStatus = "writing"
	StoryStatusPublished StoryStatus = "published"
)

// ComicStatus отслеживается отдельно от статуса текста.
type ComicStatus string

const (
	ComicStatusNone      ComicStatus = "none"
	ComicStatusDraft     ComicStatus = "draft"
	ComicStatusPublished ComicStatus = "published"
)

// Story - корень графа, создаётся один раз за запуск пайплайна.
type Story struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	UserID         string        `json:"userId" db:"user_id"`
	Title          string        `json:"title" db:"title"`
	Summary        string        `json:"summary" db:"summary"`
	Genre          string        `json:"genre" db:"genre"`
	Tone           Tone          `json:"tone" db:"tone"`
	MoralFramework string        `json:"moralFramework" db:"moral_framework"`
	Language       string        `json:"language" db:"language"`
	Status         StoryStatus   `json:"status" db:"status"`
	Image          ImageRef      `json:"image" db:"-"`
	Expected       ExpectedCount `json:"expected" db:"-"`
	PublishedAt    *time.Time    `json:"publishedAt,omitempty" db:"published_at"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time     `json:"updatedAt" db:"updated_at"`
}

// ExpectedCount - сколько дочерних сущностей должно было получиться.
// По расхождению с фактом запуск считается незавершённым.
type ExpectedCount struct {
	Parts    int `json:"parts"`
	Chapters int `json:"chapters"`
	Scenes   int `json:"scenes"`
}

// Character принадлежит одной истории.
type Character struct {
	ID                  uuid.UUID         `json:"id"`
	TempID              string            `json:"tempId,omitempty"`
	StoryID             uuid.UUID         `json:"storyId"`
	Name                string            `json:"name"`
	IsMain              bool              `json:"isMain"`
	CoreTrait           string            `json:"coreTrait"`
	InternalFlaw        string            `json:"internalFlaw"`
	ExternalGoal        string            `json:"externalGoal"`
	Personality         map[string]string `json:"personality,omitempty"`
	Backstory           string            `json:"backstory"`
	Relationships       map[string]string `json:"relationships,omitempty"` // ключ - имя персонажа
	PhysicalDescription string            `json:"physicalDescription"`
	Image               ImageRef          `json:"image"`
}

// Setting - место действия.
type Setting struct {
	ID              uuid.UUID `json:"id"`
	TempID          string    `json:"tempId,omitempty"`
	StoryID         uuid.UUID `json:"storyId"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Mood            string    `json:"mood"`
	SensoryDetails  []string  `json:"sensoryDetails,omitempty"`
	SymbolicMeaning string    `json:"symbolicMeaning"`
	ColorPalette    []string  `json:"colorPalette,omitempty"`
	Image           ImageRef  `json:"image"`
}

// CharacterArc - аннотация арки персонажа внутри части.
type CharacterArc struct {
	CharacterID     *uuid.UUID `json:"characterId,omitempty"`
	CharacterTempID string     `json:"-"`
	Arc             string     `json:"arc"`
}

type Part struct {
	ID            uuid.UUID      `json:"id"`
	TempID        string         `json:"tempId,omitempty"`
	StoryID       uuid.UUID      `json:"storyId"`
	Title         string         `json:"title"`
	Summary       string         `json:"summary"`
	OrderIndex    int            `json:"orderIndex"`
	CharacterArcs []CharacterArc `json:"characterArcs,omitempty"`
}

type Chapter struct {
	ID                   uuid.UUID   `json:"id"`
	TempID               string      `json:"tempId,omitempty"`
	StoryID              uuid.UUID   `json:"storyId"`
	PartID               *uuid.UUID  `json:"partId,omitempty"`
	PartTempID           string      `json:"-"`
	Title                string      `json:"title"`
	Summary              string      `json:"summary"`
	OrderIndex           int         `json:"orderIndex"`
	CharacterID          *uuid.UUID  `json:"characterId,omitempty"`
	CharacterTempID      string      `json:"-"`
	FocusCharacters      []uuid.UUID `json:"focusCharacters"`
	FocusCharacterTemps  []string    `json:"-"`
	ArcPosition          string      `json:"arcPosition"`
	AdversityType        string      `json:"adversityType"`
	VirtueType           string      `json:"virtueType"`
	ConnectsToPrevious   string      `json:"connectsToPreviousChapter"`
	CreatesNextAdversity string      `json:"createsNextAdversity"`
}

type Scene struct {
	ID                 uuid.UUID   `json:"id"`
	TempID             string      `json:"tempId,omitempty"`
	StoryID            uuid.UUID   `json:"storyId"`
	ChapterID          uuid.UUID   `json:"chapterId"`
	ChapterTempID      string      `json:"-"`
	Title              string      `json:"title"`
	Summary            string      `json:"summary"`
	Content            string      `json:"content"`
	OrderIndex         int         `json:"orderIndex"`
	CyclePhase         string      `json:"cyclePhase"`
	EmotionalBeat      string      `json:"emotionalBeat"`
	CharacterFocus     []uuid.UUID `json:"characterFocus"`
	CharacterFocusTemp []string    `json:"-"`
	SettingID          *uuid.UUID  `json:"settingId,omitempty"`
	SettingTempID      string      `json:"-"`
	Image              ImageRef    `json:"image"`
	ComicStatus        ComicStatus `json:"comicStatus"`
}

// DialogueLine - реплика в панели комикса.
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type ComicPanel struct {
	ID          uuid.UUID      `json:"id"`
	SceneID     uuid.UUID      `json:"sceneId"`
	PanelNumber int            `json:"panelNumber"`
	ShotType    string         `json:"shotType"`
	Description string         `json:"description"`
	Dialogue    []DialogueLine `json:"dialogue,omitempty"`
	SFX         []string       `json:"sfx,omitempty"`
	Narrative   string         `json:"narrative"`
	Image       ImageRef       `json:"image"`
}

// StoryChildCounts - фактическое число записей графа в БД.
type StoryChildCounts struct {
	Characters  int `json:"characters" db:"characters"`
	Settings    int `json:"settings" db:"settings"`
	Parts       int `json:"parts" db:"parts"`
	Chapters    int `json:"chapters" db:"chapters"`
	Scenes      int `json:"scenes" db:"scenes"`
	ComicPanels int `json:"comicPanels" db:"comic_panels"`
}

package pipeline

import (
	"fmt"
	"strings"

	"fictures-server/internal/models"
)

// Ответы генератора. ID в них временные, их назначает сама модель.

type storyDraft struct {
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	Genre          string `json:"genre"`
	Tone           string `json:"tone"`
	MoralFramework string `json:"moralFramework"`
}

type characterDraft struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	IsMain              bool              `json:"isMain"`
	CoreTrait           string            `json:"coreTrait"`
	InternalFlaw        string            `json:"internalFlaw"`
	ExternalGoal        string            `json:"externalGoal"`
	Personality         map[string]string `json:"personality"`
	Backstory           string            `json:"backstory"`
	Relationships       map[string]string `json:"relationships"`
	PhysicalDescription string            `json:"physicalDescription"`
}

type settingDraft struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Mood            string   `json:"mood"`
	SensoryDetails  []string `json:"sensoryDetails"`
	SymbolicMeaning string   `json:"symbolicMeaning"`
	ColorPalette    []string `json:"colorPalette"`
}

type characterArcDraft struct {
	CharacterID string `json:"characterId"`
	Arc         string `json:"arc"`
}

type partDraft struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Summary       string              `json:"summary"`
	CharacterArcs []characterArcDraft `json:"characterArcs"`
}

type chapterDraft struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Summary              string   `json:"summary"`
	CharacterID          string   `json:"characterId"`
	FocusCharacters      []string `json:"focusCharacters"`
	ArcPosition          string   `json:"arcPosition"`
	AdversityType        string   `json:"adversityType"`
	VirtueType           string   `json:"virtueType"`
	ConnectsToPrevious   string   `json:"connectsToPreviousChapter"`
	CreatesNextAdversity string   `json:"createsNextAdversity"`
}

type sceneSummaryDraft struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	CyclePhase     string   `json:"cyclePhase"`
	EmotionalBeat  string   `json:"emotionalBeat"`
	CharacterFocus []string `json:"characterFocus"`
	SettingID      string   `json:"settingId"`
}

type sceneContentDraft struct {
	Content string `json:"content"`
}

type panelDraft struct {
	ShotType    string                `json:"shotType"`
	Description string                `json:"description"`
	Dialogue    []models.DialogueLine `json:"dialogue"`
	SFX         []string              `json:"sfx"`
	Narrative   string                `json:"narrative"`
}

type charactersResponse struct {
	Characters []characterDraft `json:"characters"`
}

type settingsResponse struct {
	Settings []settingDraft `json:"settings"`
}

type partsResponse struct {
	Parts []partDraft `json:"parts"`
}

type chaptersResponse struct {
	Chapters []chapterDraft `json:"chapters"`
}

type scenesResponse struct {
	Scenes []sceneSummaryDraft `json:"scenes"`
}

type panelsResponse struct {
	Panels []panelDraft `json:"panels"`
}

// tempIDs раздаёт временные ID внутри запуска: пустые и повторные получают синтетический.
type tempIDs struct {
	seen map[string]struct{}
}

func newTempIDs() *tempIDs {
	return &tempIDs{seen: make(map[string]struct{})}
}

func (t *tempIDs) claim(proposed, fallbackPrefix string, n int) string {
	id := strings.TrimSpace(proposed)
	if id != "" {
		if _, dup := t.seen[id]; !dup {
			t.seen[id] = struct{}{}
			return id
		}
	}
	for i := n; ; i++ {
		candidate := fmt.Sprintf("%s_%d", fallbackPrefix, i)
		if _, dup := t.seen[candidate]; !dup {
			t.seen[candidate] = struct{}{}
			return candidate
		}
	}
}

// takeExactly обрезает лишнее и считает нехватку ошибкой фазы.
func takeExactly[T any](items []T, want int, what string) ([]T, error) {
	if len(items) < want {
		return nil, fmt.Errorf("expected %d %s, got %d", want, what, len(items))
	}
	return items[:want], nil
}

func (d storyDraft) toModel(req models.GenerationRequest) (*models.Story, error) {
	if strings.TrimSpace(d.Title) == "" {
		return nil, fmt.Errorf("story title is empty")
	}
	genre := strings.TrimSpace(d.Genre)
	if genre == "" {
		genre = req.Genre
	}
	tone := models.NormalizeTone(d.Tone)
	if req.ToneRequested {
		tone = req.Tone
	}
	return &models.Story{
		UserID:         req.UserID,
		Title:          strings.TrimSpace(d.Title),
		Summary:        d.Summary,
		Genre:          genre,
		Tone:           tone,
		MoralFramework: d.MoralFramework,
		Language:       req.Language,
		Status:         models.StoryStatusWriting,
		Expected:       req.Expected(),
	}, nil
}

func (d characterDraft) toModel(tempID string) *models.Character {
	return &models.Character{
		TempID:              tempID,
		Name:                strings.TrimSpace(d.Name),
		IsMain:              d.IsMain,
		CoreTrait:           d.CoreTrait,
		InternalFlaw:        d.InternalFlaw,
		ExternalGoal:        d.ExternalGoal,
		Personality:         d.Personality,
		Backstory:           d.Backstory,
		Relationships:       d.Relationships,
		PhysicalDescription: d.PhysicalDescription,
	}
}

func (d settingDraft) toModel(tempID string) *models.Setting {
	return &models.Setting{
		TempID:          tempID,
		Name:            strings.TrimSpace(d.Name),
		Description:     d.Description,
		Mood:            d.Mood,
		SensoryDetails:  d.SensoryDetails,
		SymbolicMeaning: d.SymbolicMeaning,
		ColorPalette:    d.ColorPalette,
	}
}

func (d partDraft) toModel(tempID string, order int) *models.Part {
	p := &models.Part{
		TempID:     tempID,
		Title:      d.Title,
		Summary:    d.Summary,
		OrderIndex: order,
	}
	for _, arc := range d.CharacterArcs {
		p.CharacterArcs = append(p.CharacterArcs, models.CharacterArc{CharacterTempID: arc.CharacterID, Arc: arc.Arc})
	}
	return p
}

func (d chapterDraft) toModel(tempID, partTempID string, order int) *models.Chapter {
	return &models.Chapter{
		TempID:               tempID,
		PartTempID:           partTempID,
		Title:                d.Title,
		Summary:              d.Summary,
		OrderIndex:           order,
		CharacterTempID:      d.CharacterID,
		FocusCharacterTemps:  d.FocusCharacters,
		ArcPosition:          d.ArcPosition,
		AdversityType:        d.AdversityType,
		VirtueType:           d.VirtueType,
		ConnectsToPrevious:   d.ConnectsToPrevious,
		CreatesNextAdversity: d.CreatesNextAdversity,
	}
}

func (d sceneSummaryDraft) toModel(tempID, chapterTempID string, order int) *models.Scene {
	return &models.Scene{
		TempID:             tempID,
		ChapterTempID:      chapterTempID,
		Title:              d.Title,
		Summary:            d.Summary,
		OrderIndex:         order,
		CyclePhase:         d.CyclePhase,
		EmotionalBeat:      d.EmotionalBeat,
		CharacterFocusTemp: d.CharacterFocus,
		SettingTempID:      d.SettingID,
		ComicStatus:        models.ComicStatusNone,
	}
}

func (d panelDraft) toModel(number int) *models.ComicPanel {
	return &models.ComicPanel{
		PanelNumber: number,
		ShotType:    d.ShotType,
		Description: d.Description,
		Dialogue:    d.Dialogue,
		SFX:         d.SFX,
		Narrative:   d.Narrative,
	}
}

package models

// Phase - шаг пайплайна.
type Phase string

const (
	PhaseStory          Phase = "story"
	PhaseCharacters     Phase = "characters"
	PhaseSettings       Phase = "settings"
	PhaseParts          Phase = "parts"
	PhaseChapters       Phase = "chapters"
	PhaseSceneSummaries Phase = "scene_summaries"
	PhaseSceneContent   Phase = "scene_content"
	PhaseImages         Phase = "images"
	PhaseComics         Phase = "comics"

	// PhaseSaving - запись графа в БД между текстовыми фазами и картинками.
	PhaseSaving Phase = "saving"
)

// PhaseOrder - порядок, в котором фазы (и их события) обязаны идти.
var PhaseOrder = []Phase{
	PhaseStory,
	PhaseCharacters,
	PhaseSettings,
	PhaseParts,
	PhaseChapters,
	PhaseSceneSummaries,
	PhaseSceneContent,
	PhaseSaving,
	PhaseImages,
	PhaseComics,
}

// TextPhases - фазы, провал которых фатален для запуска.
var TextPhases = []Phase{
	PhaseStory,
	PhaseCharacters,
	PhaseSettings,
	PhaseParts,
	PhaseChapters,
	PhaseSceneSummaries,
	PhaseSceneContent,
}

const (
	EventComplete = "complete"
	EventError    = "error"
)

func (p Phase) Start() string    { return string(p) + "_start" }
func (p Phase) Progress() string { return string(p) + "_progress" }
func (p Phase) Complete() string { return string(p) + "_complete" }

// ProgressEvent - одна запись потока прогресса.
type ProgressEvent struct {
	Phase   string        `json:"phase"`
	Message string        `json:"message"`
	Data    *ProgressData `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ProgressData - структурная часть события. Payload зависит от фазы.
type ProgressData struct {
	RunID       string `json:"runId,omitempty"`
	StoryID     string `json:"storyId,omitempty"`
	CurrentItem int    `json:"currentItem,omitempty"`
	TotalItems  int    `json:"totalItems,omitempty"`
	Percentage  int    `json:"percentage,omitempty"`
	Payload     any    `json:"payload,omitempty"`
}

// IsTerminal - complete или error, после них поток закрывается.
func (e ProgressEvent) IsTerminal() bool {
	return e.Phase == EventComplete || e.Phase == EventError
}

// Percent считает процент без деления на ноль.
func Percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	return current * 100 / total
}

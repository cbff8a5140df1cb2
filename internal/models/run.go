package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus - статус запуска пайплайна.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunRecord - живой статус запуска. Нужен клиенту, у которого поток оборвался без терминального события.
type RunRecord struct {
	RunID     uuid.UUID `json:"runId"`
	UserID    string    `json:"userId"`
	StoryID   string    `json:"storyId,omitempty"`
	Status    RunStatus `json:"status"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RunResult - итог успешного (или частично успешного) запуска.
type RunResult struct {
	RunID        uuid.UUID    `json:"runId"`
	StoryID      uuid.UUID    `json:"storyId"`
	Counts       RunCounts    `json:"counts"`
	Images       *ImageReport `json:"images,omitempty"`
	Comics       *ComicReport `json:"comics,omitempty"`
	MappingDrops int          `json:"mappingDrops"`
	Cancelled    bool         `json:"cancelled,omitempty"`
}

// RunCounts - сколько сущностей записано.
type RunCounts struct {
	Characters  int `json:"characters"`
	Settings    int `json:"settings"`
	Parts       int `json:"parts"`
	Chapters    int `json:"chapters"`
	Scenes      int `json:"scenes"`
	ComicPanels int `json:"comicPanels"`
}

// ImageFailure - описание одной неудачной картинки для отчёта.
type ImageFailure struct {
	Kind     ImageKind `json:"kind"`
	EntityID uuid.UUID `json:"entityId"`
	Stage    string    `json:"stage"`
	Error    string    `json:"error"`
}

// ValidationResult - итог проверки размеров картинки.
type ValidationResult struct {
	Kind          ImageKind `json:"kind"`
	EntityID      uuid.UUID `json:"entityId,omitempty"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	ActualRatio   string    `json:"actualRatio"`
	ExpectedRatio string    `json:"expectedRatio"`
	Passed        bool      `json:"passed"`
	Matched       string    `json:"matched,omitempty"` // primary или подпись альтернативы
	Message       string    `json:"message,omitempty"`
}

// ImageReport разделяет "обработано" и "прошло проверку".
type ImageReport struct {
	Total       int                `json:"total"`
	Processed   int                `json:"processed"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Validated   int                `json:"validated"`
	Invalid     int                `json:"invalid"`
	Skipped     int                `json:"skipped"`
	Failures    []ImageFailure     `json:"failures,omitempty"`
	Validations []ValidationResult `json:"validations,omitempty"`
}

// ComicReport - итог фазы комиксов.
type ComicReport struct {
	Scenes       int          `json:"scenes"`
	ScenesFailed int          `json:"scenesFailed"`
	Panels       int          `json:"panels"`
	Images       *ImageReport `json:"images,omitempty"`
}

// RunNotification уходит в RabbitMQ при смене жизненного цикла запуска или истории.
type RunNotification struct {
	Event     string     `json:"event"`
	RunID     string     `json:"runId,omitempty"`
	StoryID   string     `json:"storyId,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	Status    string     `json:"status,omitempty"`
	Message   string     `json:"message,omitempty"`
	Counts    *RunCounts `json:"counts,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

const (
	NotificationRunCompleted     = "run_completed"
	NotificationRunFailed        = "run_failed"
	NotificationRunCancelled     = "run_cancelled"
	NotificationStoryPublished   = "story_published"
	NotificationStoryUnpublished = "story_unpublished"
	NotificationStoryDeleted     = "story_deleted"
)

// TableDeleteCount - сколько строк удалено из таблицы.
type TableDeleteCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// PrefixDeleteCount - сколько файлов удалено под префиксом хранилища.
type PrefixDeleteCount struct {
	Prefix string `json:"prefix"`
	Blobs  int    `json:"blobs"`
}

// DeleteReport - итог каскадного удаления. Tables идут в порядке удаления.
type DeleteReport struct {
	StoryIDs   []uuid.UUID         `json:"storyIds"`
	Tables     []TableDeleteCount  `json:"tables"`
	Blobs      []PrefixDeleteCount `json:"blobs"`
	BlobErrors []string            `json:"blobErrors,omitempty"`
}

// Rows возвращает число удалённых строк таблицы.
func (r *DeleteReport) Rows(table string) int64 {
	for _, t := range r.Tables {
		if t.Table == table {
			return t.Rows
		}
	}
	return 0
}

// StoryStatusReport - проверка полноты уже записанного графа.
type StoryStatusReport struct {
	StoryID  uuid.UUID        `json:"storyId"`
	Status   StoryStatus      `json:"status"`
	Expected ExpectedCount    `json:"expected"`
	Actual   StoryChildCounts `json:"actual"`
	Complete bool             `json:"complete"`
	Missing  []string         `json:"missing,omitempty"`
}

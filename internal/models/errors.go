package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Общие ошибки приложения.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrBadRequest           = errors.New("bad request")
	ErrInvalidInput         = errors.New("invalid input data")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrConfirmationRequired = errors.New("destructive operation requires explicit confirmation")
	ErrRunNotFound          = errors.New("generation run not found")
	ErrRunNotActive         = errors.New("generation run is not active")
	ErrTooManyRuns          = errors.New("too many active generation runs")
	ErrRunCancelled         = errors.New("generation run cancelled")
	ErrInvalidStatus        = errors.New("operation not allowed in current status")
)

// Сентинелы таксономии ошибок пайплайна, для errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrPhaseGeneration = errors.New("phase generation error")
	ErrMapping         = errors.New("mapping error")
	ErrImageGeneration = errors.New("image generation error")
	ErrPersistence     = errors.New("persistence error")
)

// ValidationError - неверный входной запрос. Пайплайн не стартует.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == ErrInvalidInput
}

// PhaseGenerationError - генератор упал или вернул непригодный ответ. Фатально для запуска.
type PhaseGenerationError struct {
	Phase Phase
	Err   error
}

func (e *PhaseGenerationError) Error() string {
	return fmt.Sprintf("phase %s generation failed: %v", e.Phase, e.Err)
}

func (e *PhaseGenerationError) Unwrap() error { return e.Err }

func (e *PhaseGenerationError) Is(target error) bool { return target == ErrPhaseGeneration }

// EntityKind - вид сущности графа.
type EntityKind string

const (
	KindStory      EntityKind = "story"
	KindCharacter  EntityKind = "character"
	KindSetting    EntityKind = "setting"
	KindPart       EntityKind = "part"
	KindChapter    EntityKind = "chapter"
	KindScene      EntityKind = "scene"
	KindComicPanel EntityKind = "comic_panel"
)

// MappingError - временный ID не нашёлся в таблице соответствий. Не фатально: ссылка отбрасывается.
type MappingError struct {
	Kind   EntityKind
	TempID string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("no durable id for %s temp id %q", e.Kind, e.TempID)
}

func (e *MappingError) Is(target error) bool { return target == ErrMapping }

// ImageGenerationError - одна картинка не сгенерировалась, не загрузилась или не прошла проверку.
type ImageGenerationError struct {
	Kind     ImageKind
	EntityID uuid.UUID
	Stage    string // generate, decode, upload, validate, attach
	Err      error
}

func (e *ImageGenerationError) Error() string {
	return fmt.Sprintf("image %s for %s %s failed: %v", e.Stage, e.Kind, e.EntityID, e.Err)
}

func (e *ImageGenerationError) Unwrap() error { return e.Err }

func (e *ImageGenerationError) Is(target error) bool { return target == ErrImageGeneration }

// PersistenceError - запись в БД не удалась. Уже закоммиченные батчи не откатываются.
type PersistenceError struct {
	Kind EntityKind
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s failed: %v", e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

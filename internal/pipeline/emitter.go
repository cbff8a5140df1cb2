package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"fictures-server/internal/metrics"
	"fictures-server/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrSinkClosed - получатель отключился.
	ErrSinkClosed = errors.New("progress sink closed")
	// ErrSinkFull - получатель не успевает читать.
	ErrSinkFull = errors.New("progress sink buffer full")
)

// Sink - один транспорт событий прогресса.
type Sink interface {
	Name() string
	Send(ev models.ProgressEvent) error
}

// Emitter сериализует события прогресса и раздаёт их всем sink'ам.
// После терминального события (complete или error) новые события отбрасываются.
// Ошибка записи в sink логируется один раз, дальше этот sink пропускается.
type Emitter struct {
	mu       sync.Mutex
	sinks    []Sink
	broken   []bool
	runID    string
	storyID  string
	terminal bool
	count    int
	logger   *zap.Logger
}

func NewEmitter(runID string, logger *zap.Logger, sinks ...Sink) *Emitter {
	return &Emitter{
		sinks:  sinks,
		broken: make([]bool, len(sinks)),
		runID:  runID,
		logger: logger.Named("ProgressEmitter"),
	}
}

// SetStoryID - после записи истории все события несут её ID.
func (e *Emitter) SetStoryID(id string) {
	e.mu.Lock()
	e.storyID = id
	e.mu.Unlock()
}

// Emit отправляет событие. Возвращает false, если событие отброшено после терминального.
func (e *Emitter) Emit(ev models.ProgressEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminal {
		e.logger.Debug("Dropping event after terminal event", zap.String("phase", ev.Phase))
		return false
	}
	if ev.Data == nil {
		ev.Data = &models.ProgressData{}
	}
	if ev.Data.RunID == "" {
		ev.Data.RunID = e.runID
	}
	if ev.Data.StoryID == "" {
		ev.Data.StoryID = e.storyID
	}
	e.count++
	if ev.IsTerminal() {
		e.terminal = true
	}

	for i, sink := range e.sinks {
		if e.broken[i] {
			continue
		}
		if err := sink.Send(ev); err != nil {
			e.broken[i] = true
			metrics.ProgressWriteFailuresTotal.WithLabelValues(sink.Name()).Inc()
			e.logger.Warn("Progress sink failed, further events to it are dropped",
				zap.String("sink", sink.Name()),
				zap.String("phase", ev.Phase),
				zap.Error(err),
			)
		}
	}
	return true
}

// Start - событие <phase>_start.
func (e *Emitter) Start(phase models.Phase, message string, total int) {
	e.Emit(models.ProgressEvent{
		Phase:   phase.Start(),
		Message: message,
		Data:    &models.ProgressData{TotalItems: total},
	})
}

// Progress - событие <phase>_progress.
func (e *Emitter) Progress(phase models.Phase, message string, current, total int, payload any) {
	e.Emit(models.ProgressEvent{
		Phase:   phase.Progress(),
		Message: message,
		Data: &models.ProgressData{
			CurrentItem: current,
			TotalItems:  total,
			Percentage:  models.Percent(current, total),
			Payload:     payload,
		},
	})
}

// Complete - событие <phase>_complete.
func (e *Emitter) Complete(phase models.Phase, message string, payload any) {
	e.Emit(models.ProgressEvent{
		Phase:   phase.Complete(),
		Message: message,
		Data:    &models.ProgressData{Percentage: 100, Payload: payload},
	})
}

// Fail - терминальное событие error.
func (e *Emitter) Fail(message string, err error) {
	ev := models.ProgressEvent{Phase: models.EventError, Message: message}
	if err != nil {
		ev.Error = err.Error()
	}
	e.Emit(ev)
}

// Done - терминальное событие complete.
func (e *Emitter) Done(message string, payload any) {
	e.Emit(models.ProgressEvent{
		Phase:   models.EventComplete,
		Message: message,
		Data:    &models.ProgressData{Percentage: 100, Payload: payload},
	})
}

// Terminated - было ли уже терминальное событие.
func (e *Emitter) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

// Count - сколько событий принято.
func (e *Emitter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// FormatSSE кодирует событие в кадр "data: <json>\n\n".
func FormatSSE(ev models.ProgressEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal progress event: %w", err)
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// WriterSink пишет SSE-кадры в io.Writer (HTTP-ответ или stdout).
type WriterSink struct {
	name  string
	w     io.Writer
	flush func()
}

func NewWriterSink(name string, w io.Writer, flush func()) *WriterSink {
	return &WriterSink{name: name, w: w, flush: flush}
}

func (s *WriterSink) Name() string { return s.name }

func (s *WriterSink) Send(ev models.ProgressEvent) error {
	frame, err := FormatSSE(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}

// ChannelSink передаёт события из фонового запуска обработчику запроса.
// Отправка не блокирует: если читатель отстал или ушёл, sink считается сломанным.
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan models.ProgressEvent
	closed bool
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelSink{ch: make(chan models.ProgressEvent, buffer)}
}

func (s *ChannelSink) Name() string { return "stream" }

// Events закрывается после терминального события или Detach.
func (s *ChannelSink) Events() <-chan models.ProgressEvent { return s.ch }

func (s *ChannelSink) Send(ev models.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.ch <- ev:
	default:
		s.closed = true
		close(s.ch)
		return ErrSinkFull
	}
	if ev.IsTerminal() {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Detach вызывает читатель, когда клиент отключился.
func (s *ChannelSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// FuncSink вызывает функцию на каждое событие. Ошибка функции ломает sink.
type FuncSink struct {
	name string
	fn   func(models.ProgressEvent) error
}

func NewFuncSink(name string, fn func(models.ProgressEvent) error) *FuncSink {
	return &FuncSink{name: name, fn: fn}
}

func (s *FuncSink) Name() string { return s.name }

func (s *FuncSink) Send(ev models.ProgressEvent) error { return s.fn(ev) }

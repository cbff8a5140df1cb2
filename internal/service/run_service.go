package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/messaging"
	"fictures-server/internal/models"
	"fictures-server/internal/pipeline"
	"fictures-server/pkg/taskmanager"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const runStateTimeout = 2 * time.Second

// Runner - то, что RunService запускает в фоне. Реализуется *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, stop <-chan struct{}, runID uuid.UUID, req models.GenerationRequest, em *pipeline.Emitter) (*models.RunResult, error)
}

// RunService запускает пайплайн отдельно от HTTP-запроса и следит за статусом запусков.
type RunService interface {
	// Start проверяет запрос и ставит запуск в очередь. События идут в переданные sink'и.
	Start(ctx context.Context, actor Actor, in models.GenerationRequestInput, sinks ...pipeline.Sink) (uuid.UUID, error)
	// Wait блокируется до завершения запуска.
	Wait(ctx context.Context, runID uuid.UUID) (*models.RunResult, error)
	Cancel(ctx context.Context, actor Actor, runID uuid.UUID) error
	Status(ctx context.Context, actor Actor, runID uuid.UUID) (*models.RunRecord, error)
}

type runServiceImpl struct {
	intake    *pipeline.Intake
	runner    Runner
	manager   *taskmanager.Manager
	store     interfaces.RunStateStore
	publisher messaging.NotificationPublisher
	logger    *zap.Logger

	mu   sync.Mutex
	live map[uuid.UUID]models.RunRecord
}

func NewRunService(
	intake *pipeline.Intake,
	runner Runner,
	manager *taskmanager.Manager,
	store interfaces.RunStateStore,
	publisher messaging.NotificationPublisher,
	logger *zap.Logger,
) RunService {
	s := &runServiceImpl{
		intake:    intake,
		runner:    runner,
		manager:   manager,
		store:     store,
		publisher: publisher,
		logger:    logger.Named("RunService"),
		live:      make(map[uuid.UUID]models.RunRecord),
	}
	manager.OnStatusChange(s.onTaskStatus)
	return s
}

func (s *runServiceImpl) Start(ctx context.Context, actor Actor, in models.GenerationRequestInput, sinks ...pipeline.Sink) (uuid.UUID, error) {
	req, err := s.intake.Normalize(actor.UserID, in)
	if err != nil {
		s.logger.Info("Generation request rejected", zap.String("user_id", actor.UserID), zap.Error(err))
		return uuid.Nil, err
	}

	runID := uuid.New()
	log := s.logger.With(zap.String("run_id", runID.String()), zap.String("user_id", actor.UserID))

	record := models.RunRecord{RunID: runID, UserID: actor.UserID, Status: models.RunStatusPending}
	s.remember(record)
	s.save(record)

	statusSink := pipeline.NewFuncSink("run_state", func(ev models.ProgressEvent) error {
		return s.track(runID, ev)
	})
	em := pipeline.NewEmitter(runID.String(), s.logger, append(sinks, statusSink)...)

	err = s.manager.Submit(runID, actor.UserID, func(ctx context.Context, stop <-chan struct{}) (interface{}, error) {
		return s.runner.Run(ctx, stop, runID, req, em)
	})
	if err != nil {
		s.forget(runID)
		if errors.Is(err, taskmanager.ErrTooManyTasks) {
			log.Warn("Too many active runs")
			return uuid.Nil, models.ErrTooManyRuns
		}
		log.Error("Failed to submit run", zap.Error(err))
		return uuid.Nil, fmt.Errorf("failed to start generation run: %w", err)
	}
	log.Info("Generation run submitted")
	return runID, nil
}

func (s *runServiceImpl) Wait(ctx context.Context, runID uuid.UUID) (*models.RunResult, error) {
	done, err := s.manager.Done(runID)
	if err != nil {
		return nil, mapTaskError(err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	task, err := s.manager.Get(runID)
	if err != nil {
		return nil, mapTaskError(err)
	}
	result, _ := task.Result.(*models.RunResult)
	return result, task.Err
}

func (s *runServiceImpl) Cancel(ctx context.Context, actor Actor, runID uuid.UUID) error {
	task, err := s.manager.Get(runID)
	if err != nil {
		return mapTaskError(err)
	}
	if !actor.owns(task.OwnerID) {
		return fmt.Errorf("%w: run %s", models.ErrRunNotFound, runID)
	}
	if err := s.manager.Cancel(runID); err != nil {
		return mapTaskError(err)
	}
	s.logger.Info("Run cancellation requested", zap.String("run_id", runID.String()), zap.String("by", actor.UserID))
	return nil
}

func (s *runServiceImpl) Status(ctx context.Context, actor Actor, runID uuid.UUID) (*models.RunRecord, error) {
	record, err := s.store.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, models.ErrRunNotFound) {
			if live, ok := s.lookup(runID); ok {
				record = &live
			} else {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	if !actor.owns(record.UserID) {
		return nil, fmt.Errorf("%w: run %s", models.ErrRunNotFound, runID)
	}
	return record, nil
}

// track зеркалит события в хранилище статусов.
func (s *runServiceImpl) track(runID uuid.UUID, ev models.ProgressEvent) error {
	s.mu.Lock()
	record, ok := s.live[runID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if !ev.IsTerminal() {
		record.Status = models.RunStatusRunning
	}
	record.Phase = ev.Phase
	record.Message = ev.Message
	if ev.Error != "" {
		record.Message = ev.Error
	}
	if ev.Data != nil && ev.Data.StoryID != "" {
		record.StoryID = ev.Data.StoryID
	}
	s.live[runID] = record
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), runStateTimeout)
	defer cancel()
	return s.store.Save(ctx, record)
}

// onTaskStatus фиксирует финальный статус и рассылает уведомление.
func (s *runServiceImpl) onTaskStatus(task taskmanager.Task) {
	var status models.RunStatus
	event := ""
	switch task.Status {
	case taskmanager.TaskStatusCompleted:
		status, event = models.RunStatusCompleted, models.NotificationRunCompleted
	case taskmanager.TaskStatusFailed:
		status, event = models.RunStatusFailed, models.NotificationRunFailed
	case taskmanager.TaskStatusCancelled:
		status, event = models.RunStatusCancelled, models.NotificationRunCancelled
	default:
		return
	}

	record, ok := s.lookup(task.ID)
	if !ok {
		record = models.RunRecord{RunID: task.ID, UserID: task.OwnerID}
	}
	record.Status = status
	record.UpdatedAt = time.Now().UTC()
	if task.Err != nil {
		record.Message = task.Err.Error()
	}
	var counts *models.RunCounts
	if result, ok := task.Result.(*models.RunResult); ok && result != nil {
		record.StoryID = result.StoryID.String()
		counts = &result.Counts
	}
	s.save(record)
	s.forget(task.ID)

	notify(s.publisher, s.logger, models.RunNotification{
		Event:   event,
		RunID:   task.ID.String(),
		StoryID: record.StoryID,
		UserID:  record.UserID,
		Status:  string(status),
		Message: record.Message,
		Counts:  counts,
	})
}

func (s *runServiceImpl) save(record models.RunRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), runStateTimeout)
	defer cancel()
	if err := s.store.Save(ctx, record); err != nil {
		s.logger.Warn("Failed to save run state", zap.String("run_id", record.RunID.String()), zap.Error(err))
	}
}

func (s *runServiceImpl) remember(record models.RunRecord) {
	s.mu.Lock()
	s.live[record.RunID] = record
	s.mu.Unlock()
}

func (s *runServiceImpl) forget(runID uuid.UUID) {
	s.mu.Lock()
	delete(s.live, runID)
	s.mu.Unlock()
}

func (s *runServiceImpl) lookup(runID uuid.UUID) (models.RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.live[runID]
	return r, ok
}

func mapTaskError(err error) error {
	switch {
	case errors.Is(err, taskmanager.ErrTaskNotFound):
		return models.ErrRunNotFound
	case errors.Is(err, taskmanager.ErrTaskNotActive):
		return models.ErrRunNotActive
	case errors.Is(err, taskmanager.ErrTooManyTasks):
		return models.ErrTooManyRuns
	}
	return err
}

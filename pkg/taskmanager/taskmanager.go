package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTooManyTasks   = errors.New("too many active tasks")
	ErrTaskNotActive  = errors.New("task is not active")
	ErrManagerClosing = errors.New("task manager is shutting down")
)

// TaskStatus - состояние задачи.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Active сообщает, выполняется ли ещё задача.
func (s TaskStatus) Active() bool {
	return s == TaskStatusPending || s == TaskStatusRunning
}

// TaskFunc - тело задачи.
// ctx отменяется только по жёсткому таймауту или при аварийной остановке менеджера.
// stop закрывается при мягкой отмене: задача перестаёт запускать новую работу,
// но начатые вызовы доводит до конца.
type TaskFunc func(ctx context.Context, stop <-chan struct{}) (interface{}, error)

// TaskCallback вызывается при каждой смене статуса (в отдельной горутине).
type TaskCallback func(task Task)

// Task - снимок состояния задачи. Менеджер отдаёт копии, наружу указатели не уходят.
type Task struct {
	ID            uuid.UUID
	OwnerID       string
	Status        TaskStatus
	Message       string
	Result        interface{}
	Err           error
	StopRequested bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type taskEntry struct {
	Task
	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func (e *taskEntry) requestStop() {
	e.stopOnce.Do(func() {
		e.StopRequested = true
		close(e.stop)
	})
}

// Config - настройки менеджера.
type Config struct {
	MaxTasks int           // лимит одновременно активных задач
	Timeout  time.Duration // жёсткий лимит длительности одной задачи, 0 = без лимита
}

// Manager запускает задачи в фоне, независимо от контекста HTTP-запроса.
type Manager struct {
	mu        sync.RWMutex
	tasks     map[uuid.UUID]*taskEntry
	maxTasks  int
	timeout   time.Duration
	callbacks []TaskCallback
	closing   bool
	wg        sync.WaitGroup
	logger    *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Manager {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}
	return &Manager{
		tasks:    make(map[uuid.UUID]*taskEntry),
		maxTasks: maxTasks,
		timeout:  cfg.Timeout,
		logger:   logger.Named("TaskManager"),
	}
}

// OnStatusChange регистрирует коллбэк на смену статуса любой задачи.
func (m *Manager) OnStatusChange(cb TaskCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Submit регистрирует и запускает задачу с заранее выбранным ID.
func (m *Manager) Submit(id uuid.UUID, ownerID string, fn TaskFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return ErrManagerClosing
	}
	if _, exists := m.tasks[id]; exists {
		return fmt.Errorf("task %s already registered", id)
	}
	active := 0
	for _, t := range m.tasks {
		if t.Status.Active() {
			active++
		}
	}
	if active >= m.maxTasks {
		return ErrTooManyTasks
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if m.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), m.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	now := time.Now()
	entry := &taskEntry{
		Task: Task{
			ID:        id,
			OwnerID:   ownerID,
			Status:    TaskStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		stop:   make(chan struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.tasks[id] = entry

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer close(entry.done)
		m.run(ctx, entry, fn)
	}()
	return nil
}

func (m *Manager) run(ctx context.Context, entry *taskEntry, fn TaskFunc) {
	m.setStatus(entry, TaskStatusRunning, "task started", nil, nil)

	result, err := fn(ctx, entry.stop)

	m.mu.RLock()
	stopRequested := entry.StopRequested
	m.mu.RUnlock()

	switch {
	case err == nil:
		m.setStatus(entry, TaskStatusCompleted, "task completed", result, nil)
	case stopRequested:
		m.setStatus(entry, TaskStatusCancelled, "task cancelled", result, err)
	default:
		m.logger.Warn("Task failed", zap.String("task_id", entry.ID.String()), zap.Error(err))
		m.setStatus(entry, TaskStatusFailed, err.Error(), result, err)
	}
}

func (m *Manager) setStatus(entry *taskEntry, status TaskStatus, message string, result interface{}, err error) {
	m.mu.Lock()
	entry.Status = status
	entry.Message = message
	entry.UpdatedAt = time.Now()
	if result != nil {
		entry.Result = result
	}
	entry.Err = err
	snapshot := entry.Task
	callbacks := append([]TaskCallback(nil), m.callbacks...)
	m.mu.Unlock()

	m.logger.Debug("Task status changed",
		zap.String("task_id", snapshot.ID.String()),
		zap.String("status", string(status)),
	)
	for _, cb := range callbacks {
		go cb(snapshot)
	}
}

// Get возвращает снимок задачи.
func (m *Manager) Get(id uuid.UUID) (Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return entry.Task, nil
}

// Done возвращает канал, закрывающийся по завершении задачи.
func (m *Manager) Done(id uuid.UUID) (<-chan struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return entry.done, nil
}

// Cancel мягко останавливает задачу. Статус сменится, когда задача вернёт управление.
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if !entry.Status.Active() {
		return fmt.Errorf("%w: status %s", ErrTaskNotActive, entry.Status)
	}
	entry.requestStop()
	entry.Message = "stop requested"
	entry.UpdatedAt = time.Now()
	m.logger.Info("Task stop requested", zap.String("task_id", id.String()))
	return nil
}

// Cleanup удаляет завершённые задачи старше age.
func (m *Manager) Cleanup(age time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	now := time.Now()
	for id, entry := range m.tasks {
		if !entry.Status.Active() && now.Sub(entry.UpdatedAt) > age {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

// Shutdown перестаёт принимать задачи, мягко останавливает активные и ждёт их.
// Если ctx истёк раньше, контексты задач отменяются жёстко.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	for _, entry := range m.tasks {
		if entry.Status.Active() {
			entry.requestStop()
		}
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for _, entry := range m.tasks {
			entry.cancel()
		}
		m.mu.Unlock()
		<-done
		return fmt.Errorf("task manager shutdown: %w", ctx.Err())
	}
}

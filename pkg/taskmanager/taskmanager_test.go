package taskmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitDone(t *testing.T, m *Manager, id uuid.UUID) Task {
	t.Helper()
	done, err := m.Done(id)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish in time")
	}
	task, err := m.Get(id)
	require.NoError(t, err)
	return task
}

func TestManager_CompletesTask(t *testing.T) {
	m := New(Config{MaxTasks: 2}, zap.NewNop())
	id := uuid.New()

	err := m.Submit(id, "user-1", func(ctx context.Context, stop <-chan struct{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	task := waitDone(t, m, id)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, "ok", task.Result)
	assert.Equal(t, "user-1", task.OwnerID)
}

func TestManager_FailedTask(t *testing.T) {
	m := New(Config{}, zap.NewNop())
	id := uuid.New()
	boom := errors.New("boom")

	require.NoError(t, m.Submit(id, "", func(ctx context.Context, stop <-chan struct{}) (interface{}, error) {
		return nil, boom
	}))

	task := waitDone(t, m, id)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.ErrorIs(t, task.Err, boom)
}

func TestManager_SoftCancelLetsTaskFinish(t *testing.T) {
	m := New(Config{}, zap.NewNop())
	id := uuid.New()
	started := make(chan struct{})

	require.NoError(t, m.Submit(id, "", func(ctx context.Context, stop <-chan struct{}) (interface{}, error) {
		close(started)
		<-stop
		// контекст при мягкой отмене остаётся живым
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return "partial", errors.New("stopped")
	}))

	<-started
	require.NoError(t, m.Cancel(id))

	task := waitDone(t, m, id)
	assert.Equal(t, TaskStatusCancelled, task.Status)
	assert.True(t, task.StopRequested)
	assert.Equal(t, "partial", task.Result)

	err := m.Cancel(id)
	assert.ErrorIs(t, err, ErrTaskNotActive)
}

func TestManager_MaxTasks(t *testing.T) {
	m := New(Config{MaxTasks: 1}, zap.NewNop())
	release := make(chan struct{})
	first := uuid.New()

	require.NoError(t, m.Submit(first, "", func(ctx context.Context, stop <-chan struct{}) (interface{}, error) {
		<-release
		return nil, nil
	}))

	err := m.Submit(uuid.New(), "", func(ctx context.Context, stop <-chan struct{}) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrTooManyTasks)

	close(release)
	waitDone(t, m, first)
}

func TestManager_TimeoutCancelsContext(t *testing.T) {
	m := New(Config{Timeout: 20 * time.Millisecond}, zap.NewNop())
	id := uuid.New()

	require.NoError(t, m.Submit(id, "", func(ctx context.Context, stop <-chan struct{}) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	task := waitDone(t, m, id)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.ErrorIs(t, task.Err, context.DeadlineExceeded)
}

func TestManager_ShutdownRejectsNewTasks(t *testing.T) {
	m := New(Config{}, zap.NewNop())
	id := uuid.New()
	require.NoError(t, m.Submit(id, "", func(ctx context.Context, stop <-chan struct{}) (interface{}, error) {
		<-stop
		return nil, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, task.Status)

	err = m.Submit(uuid.New(), "", func(ctx context.Context, stop <-chan struct{}) (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrManagerClosing)
}

func TestManager_CallbacksAndCleanup(t *testing.T) {
	m := New(Config{}, zap.NewNop())
	statuses := make(chan TaskStatus, 4)
	m.OnStatusChange(func(task Task) { statuses <- task.Status })

	id := uuid.New()
	require.NoError(t, m.Submit(id, "", func(ctx context.Context, stop <-chan struct{}) (interface{}, error) {
		return nil, nil
	}))
	waitDone(t, m, id)

	seen := map[TaskStatus]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-statuses:
			seen[s] = true
		case <-time.After(time.Second):
			t.Fatal("callback not invoked")
		}
	}
	assert.True(t, seen[TaskStatusRunning])
	assert.True(t, seen[TaskStatusCompleted])

	assert.Equal(t, 0, m.Cleanup(time.Hour))
	assert.Equal(t, 1, m.Cleanup(0))
	_, err := m.Get(id)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

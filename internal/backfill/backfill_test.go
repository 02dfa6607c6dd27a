package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/ingestd/internal/model"
)

type fakeTaskRepo struct {
	tasks map[int64]model.BackfillTask
	next  int64
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[int64]model.BackfillTask)}
}

func (r *fakeTaskRepo) Create(ctx context.Context, task model.BackfillTask) (int64, error) {
	r.next++
	task.ID = r.next
	task.Status = model.TaskPending
	r.tasks[task.ID] = task
	return task.ID, nil
}

func (r *fakeTaskRepo) ListPending(ctx context.Context, limit int) ([]model.BackfillTask, error) {
	var out []model.BackfillTask
	for _, t := range r.tasks {
		if t.Status == model.TaskPending {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) ListFailed(ctx context.Context, limit int) ([]model.BackfillTask, error) {
	var out []model.BackfillTask
	for _, t := range r.tasks {
		if t.Status == model.TaskFailed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) UpdateStatus(ctx context.Context, id int64, status model.TaskStatus, actualCount int, errMsg string) error {
	t, ok := r.tasks[id]
	if !ok {
		return errors.New("not found")
	}
	t.Status = status
	t.ActualCount = actualCount
	t.ErrorMessage = errMsg
	if status == model.TaskFailed {
		t.RetryCount++
	}
	t.UpdatedAt = time.Now()
	r.tasks[id] = t
	return nil
}

func TestClaimMarksTaskRunning(t *testing.T) {
	repo := newFakeTaskRepo()
	id, err := repo.Create(context.Background(), model.BackfillTask{MarketID: 1, ExpectedCount: 10})
	require.NoError(t, err)

	s := New(repo, 5, time.Minute, nil, zerolog.Nop())
	task, ok, err := s.Claim(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, task.ID)
	require.Equal(t, model.TaskRunning, repo.tasks[id].Status)
}

func TestCompleteMarksCompletedWhenThresholdMet(t *testing.T) {
	repo := newFakeTaskRepo()
	id, _ := repo.Create(context.Background(), model.BackfillTask{MarketID: 1, ExpectedCount: 10})
	task := repo.tasks[id]

	s := New(repo, 5, time.Minute, nil, zerolog.Nop())
	err := s.Complete(context.Background(), task, 9, nil, 0.8)
	require.NoError(t, err)
	require.Equal(t, model.TaskCompleted, repo.tasks[id].Status)
}

func TestCompleteMarksFailedWhenBelowThreshold(t *testing.T) {
	repo := newFakeTaskRepo()
	id, _ := repo.Create(context.Background(), model.BackfillTask{MarketID: 1, ExpectedCount: 10})
	task := repo.tasks[id]

	s := New(repo, 5, time.Minute, nil, zerolog.Nop())
	err := s.Complete(context.Background(), task, 2, nil, 0.8)
	require.NoError(t, err)
	require.Equal(t, model.TaskFailed, repo.tasks[id].Status)
	require.Equal(t, 1, repo.tasks[id].RetryCount)
}

func TestSweepRequeuesFailedTaskPastCooldown(t *testing.T) {
	repo := newFakeTaskRepo()
	id, _ := repo.Create(context.Background(), model.BackfillTask{MarketID: 1})
	repo.tasks[id] = model.BackfillTask{
		ID: id, Status: model.TaskFailed, RetryCount: 1, UpdatedAt: time.Now().Add(-time.Hour),
	}

	s := New(repo, 5, time.Minute, nil, zerolog.Nop())
	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, model.TaskPending, repo.tasks[id].Status)
}

func TestSweepLeavesTaskWithinCooldownAlone(t *testing.T) {
	repo := newFakeTaskRepo()
	id, _ := repo.Create(context.Background(), model.BackfillTask{MarketID: 1})
	repo.tasks[id] = model.BackfillTask{
		ID: id, Status: model.TaskFailed, RetryCount: 1, UpdatedAt: time.Now(),
	}

	s := New(repo, 5, time.Minute, nil, zerolog.Nop())
	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, model.TaskFailed, repo.tasks[id].Status)
}

func TestSweepLeavesExhaustedRetriesTerminal(t *testing.T) {
	repo := newFakeTaskRepo()
	id, _ := repo.Create(context.Background(), model.BackfillTask{MarketID: 1})
	repo.tasks[id] = model.BackfillTask{
		ID: id, Status: model.TaskFailed, RetryCount: 5, UpdatedAt: time.Now().Add(-time.Hour),
	}

	s := New(repo, 5, time.Minute, nil, zerolog.Nop())
	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, model.TaskFailed, repo.tasks[id].Status)
}

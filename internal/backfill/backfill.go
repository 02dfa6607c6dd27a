// Package backfill manages the lifecycle of backfill tasks: claiming
// pending work for the REST collector, recording outcomes, and sweeping
// failed tasks back to pending once their retry cooldown elapses.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/ingestd/internal/metrics"
	"github.com/sawpanic/ingestd/internal/model"
	"github.com/sawpanic/ingestd/internal/storage"
)

// Sweeper periodically requeues failed tasks that have not exhausted their
// retry budget, per §4.5's "Retry of failed tasks".
type Sweeper struct {
	tasks      storage.BackfillTaskRepo
	maxRetries int
	cooldown   time.Duration
	metrics    *metrics.Registry
	log        zerolog.Logger
}

// New constructs a Sweeper.
func New(tasks storage.BackfillTaskRepo, maxRetries int, cooldown time.Duration, m *metrics.Registry, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		tasks:      tasks,
		maxRetries: maxRetries,
		cooldown:   cooldown,
		metrics:    m,
		log:        log.With().Str("component", "backfill_sweeper").Logger(),
	}
}

// Claim marks a pending task running, returning false if nothing is pending.
func (s *Sweeper) Claim(ctx context.Context) (model.BackfillTask, bool, error) {
	pending, err := s.tasks.ListPending(ctx, 1)
	if err != nil {
		return model.BackfillTask{}, false, fmt.Errorf("list pending backfill tasks: %w", err)
	}
	if len(pending) == 0 {
		return model.BackfillTask{}, false, nil
	}
	task := pending[0]
	if err := s.tasks.UpdateStatus(ctx, task.ID, model.TaskRunning, 0, ""); err != nil {
		return model.BackfillTask{}, false, fmt.Errorf("claim backfill task %d: %w", task.ID, err)
	}
	task.Status = model.TaskRunning
	return task, true, nil
}

// Complete records the outcome of a claimed task. A write of fewer than
// expected*completionThreshold rows is treated as a failure, per §4.5.
func (s *Sweeper) Complete(ctx context.Context, task model.BackfillTask, actualCount int, fetchErr error, completionThreshold float64) error {
	market := fmt.Sprintf("%d", task.MarketID)
	if fetchErr == nil && float64(actualCount) >= float64(task.ExpectedCount)*completionThreshold {
		if err := s.tasks.UpdateStatus(ctx, task.ID, model.TaskCompleted, actualCount, ""); err != nil {
			return fmt.Errorf("complete backfill task %d: %w", task.ID, err)
		}
		if s.metrics != nil {
			s.metrics.BackfillTasksDone.WithLabelValues(market, "completed").Inc()
		}
		return nil
	}

	msg := "insufficient rows written"
	if fetchErr != nil {
		msg = fetchErr.Error()
	}
	if err := s.tasks.UpdateStatus(ctx, task.ID, model.TaskFailed, actualCount, msg); err != nil {
		return fmt.Errorf("fail backfill task %d: %w", task.ID, err)
	}
	if s.metrics != nil {
		s.metrics.BackfillTasksDone.WithLabelValues(market, "failed").Inc()
	}
	s.log.Warn().Int64("task_id", task.ID).Str("error", msg).Msg("backfill task failed")
	return nil
}

// Sweep is the periodic pass that requeues failed tasks past their cooldown
// and still within the retry budget. Terminal tasks (retry_count >=
// maxRetries) are left as-is for audit, per §4.5.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	failed, err := s.tasks.ListFailed(ctx, 500)
	if err != nil {
		return 0, fmt.Errorf("list failed backfill tasks: %w", err)
	}

	var requeued int
	for _, task := range failed {
		ok, err := s.Requeue(ctx, task)
		if err != nil {
			s.log.Warn().Err(err).Int64("task_id", task.ID).Msg("requeue failed")
			continue
		}
		if ok {
			requeued++
		}
	}
	return requeued, nil
}

// Requeue moves a single failed task back to pending if it is still within
// the retry budget and has cleared its cooldown.
func (s *Sweeper) Requeue(ctx context.Context, task model.BackfillTask) (bool, error) {
	if task.Status != model.TaskFailed {
		return false, nil
	}
	if task.RetryCount >= s.maxRetries {
		return false, nil
	}
	if time.Since(task.UpdatedAt) < s.cooldown {
		return false, nil
	}
	if err := s.tasks.UpdateStatus(ctx, task.ID, model.TaskPending, 0, ""); err != nil {
		return false, fmt.Errorf("requeue backfill task %d: %w", task.ID, err)
	}
	return true, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sawpanic/ingestd/internal/model"
)

type backfillTaskRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBackfillTaskRepo creates the Postgres-backed BackfillTaskRepo.
func NewBackfillTaskRepo(db *sqlx.DB, timeout time.Duration) *backfillTaskRepo {
	return &backfillTaskRepo{db: db, timeout: timeout}
}

func (r *backfillTaskRepo) Create(ctx context.Context, task model.BackfillTask) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO backfill_tasks (market_id, data_type, timeframe, start_time, end_time, status, priority, expected_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		task.MarketID, task.DataType, task.Timeframe, task.Start, task.End, model.TaskPending, task.Priority, task.ExpectedCount).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create backfill task: %w", err)
	}
	return id, nil
}

// ListPending returns pending tasks ordered highest priority first, oldest
// first within a priority tier, matching the backfill queue's scheduling
// discipline (§4.5).
func (r *backfillTaskRepo) ListPending(ctx context.Context, limit int) ([]model.BackfillTask, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, market_id, data_type, timeframe, start_time, end_time, status, priority,
		       retry_count, expected_count, actual_count, error_message, created_at, updated_at
		FROM backfill_tasks
		WHERE status = $1
		ORDER BY priority DESC, created_at ASC
		LIMIT $2`, model.TaskPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending backfill tasks: %w", err)
	}
	defer rows.Close()

	var out []model.BackfillTask
	for rows.Next() {
		var t model.BackfillTask
		if err := rows.Scan(&t.ID, &t.MarketID, &t.DataType, &t.Timeframe, &t.Start, &t.End, &t.Status,
			&t.Priority, &t.RetryCount, &t.ExpectedCount, &t.ActualCount, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan backfill task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListFailed returns failed tasks still within the retry budget, oldest
// first, for the periodic retry sweep (§4.5).
func (r *backfillTaskRepo) ListFailed(ctx context.Context, limit int) ([]model.BackfillTask, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, market_id, data_type, timeframe, start_time, end_time, status, priority,
		       retry_count, expected_count, actual_count, error_message, created_at, updated_at
		FROM backfill_tasks
		WHERE status = $1
		ORDER BY updated_at ASC
		LIMIT $2`, model.TaskFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed backfill tasks: %w", err)
	}
	defer rows.Close()

	var out []model.BackfillTask
	for rows.Next() {
		var t model.BackfillTask
		if err := rows.Scan(&t.ID, &t.MarketID, &t.DataType, &t.Timeframe, &t.Start, &t.End, &t.Status,
			&t.Priority, &t.RetryCount, &t.ExpectedCount, &t.ActualCount, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan backfill task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *backfillTaskRepo) UpdateStatus(ctx context.Context, id int64, status model.TaskStatus, actualCount int, errMsg string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE backfill_tasks
		SET status = $1, actual_count = $2, error_message = $3, updated_at = now(),
		    retry_count = CASE WHEN $1 = 'failed' THEN retry_count + 1 ELSE retry_count END
		WHERE id = $4`, status, actualCount, errMsg, id)
	if err != nil {
		return fmt.Errorf("update backfill task status: %w", err)
	}
	return nil
}

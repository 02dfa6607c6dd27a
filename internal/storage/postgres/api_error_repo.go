package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sawpanic/ingestd/internal/model"
)

type apiErrorLogRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAPIErrorLogRepo creates the Postgres-backed APIErrorLogRepo.
func NewAPIErrorLogRepo(db *sqlx.DB, timeout time.Duration) *apiErrorLogRepo {
	return &apiErrorLogRepo{db: db, timeout: timeout}
}

// RecordAPIError appends one failed-call record; rows are never updated or
// deleted outside retention pruning, per the §7 audit trail.
func (r *apiErrorLogRepo) RecordAPIError(ctx context.Context, entry model.APIErrorLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_error_logs (exchange, endpoint, class, code, message, parameters, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.Exchange, entry.Endpoint, entry.Class, entry.Code, entry.Message, entry.Parameters, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("record api error log: %w", err)
	}
	return nil
}

type criticalEventRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCriticalEventRepo creates the Postgres-backed CriticalEventRepo.
func NewCriticalEventRepo(db *sqlx.DB, timeout time.Duration) *criticalEventRepo {
	return &criticalEventRepo{db: db, timeout: timeout}
}

// ActiveFor returns critical events overlapping tr and affecting marketID,
// consulted by the retention job before it deletes anything (§4.6, §9
// decision: rollup is additive and runs regardless, only deletion is
// suppressed).
func (r *criticalEventRepo) ActiveFor(ctx context.Context, marketID int64, tr model.TimeRange) ([]model.CriticalEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, name, kind, start_time, end_time, affected_markets, preserve_raw
		FROM critical_events
		WHERE $1 = ANY(affected_markets) AND start_time < $3 AND end_time > $2`,
		marketID, tr.Start, tr.End)
	if err != nil {
		return nil, fmt.Errorf("query critical events: %w", err)
	}
	defer rows.Close()

	var out []model.CriticalEvent
	for rows.Next() {
		var e model.CriticalEvent
		if err := rows.Scan(&e.ID, &e.Name, &e.Kind, &e.Start, &e.End, pq.Array(&e.AffectedMarket), &e.PreserveRaw); err != nil {
			return nil, fmt.Errorf("scan critical event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
